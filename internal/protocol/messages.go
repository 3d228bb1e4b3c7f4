// Package protocol defines the transport-agnostic wire messages of
// spec.md §4.4/§4.5/§6: edit ops, file chunks, and the small query/response
// pairs around them. Nothing in this package assumes a particular
// transport — internal/wsconn frames Op/OpAck/StateQuery, internal/server's
// HTTP handlers frame FileChunk and send FileInfo/FileListResponse as plain
// JSON.
package protocol

// OpKind distinguishes an Op's payload.
type OpKind string

const (
	OpInsert OpKind = "INSERT"
	OpDelete OpKind = "DELETE"
)

// Op is one CRDT operation in flight between client and server
// (spec.md §4.4). Content is exactly one codepoint for INSERT; the
// OriginLeft* / Target* fields are populated according to Kind.
type Op struct {
	Kind   OpKind `json:"kind"`
	Doc    string `json:"doc"`
	Site   string `json:"site"`
	Clock  uint32 `json:"clock"`
	Content string `json:"content,omitempty"`

	OriginLeftSite  string `json:"origin_left_site,omitempty"`
	OriginLeftClock uint32 `json:"origin_left_clock,omitempty"`

	TargetSite  string `json:"target_site,omitempty"`
	TargetClock uint32 `json:"target_clock,omitempty"`
}

// OpAck acknowledges an Op after the server has applied it locally.
// The protocol is fire-and-apply (spec.md §4.4): the server never
// broadcasts, and ok=true only means "applied to my own replica".
type OpAck struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// StateQuery asks the server for the current text of Doc.
type StateQuery struct {
	Doc string `json:"doc"`
}

// StateSnapshot is the server's answer to a StateQuery.
type StateSnapshot struct {
	Content string `json:"content"`
}

// LocalEditRequest asks the server to perform the client-side half of an
// edit — translating a user-visible index into an RGA operation via the
// manager's own index-to-origin lookup, applying it, and acknowledging —
// on behalf of Site. The one-shot CLI (spec.md §6) has no persistent local
// replica to run that translation against itself, so it delegates it to
// the server's own copy of the document instead of carrying an Op directly.
type LocalEditRequest struct {
	Doc          string `json:"doc"`
	Site         string `json:"site"`
	VisibleIndex int    `json:"visible_index"`
	Content      string `json:"content,omitempty"`
	Delete       bool   `json:"delete,omitempty"`
}

// FileChunk is one piece of a file-transfer stream (spec.md §4.5). The
// first chunk of a download carries TotalSize; clientapi.Client.Upload does
// not set it, and the server does not read it on upload. The last chunk of
// either direction sets IsLastChunk. FileHash is populated on the server's final
// chunk of a download's trailing metadata, and is otherwise empty.
type FileChunk struct {
	Name        string `json:"name"`
	ChunkIndex  int    `json:"chunk_index"`
	Data        []byte `json:"data"`
	IsLastChunk bool   `json:"is_last_chunk"`
	TotalSize   int64  `json:"total_size,omitempty"`
	FileHash    string `json:"file_hash,omitempty"`
}

// FileRequest names the file a client wants to download.
type FileRequest struct {
	Name string `json:"name"`
}

// FileInfo is the catalog-facing view of one file.
type FileInfo struct {
	Name      string `json:"name"`
	Version   int    `json:"version"`
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	Timestamp int64  `json:"timestamp"`
}

// FileListResponse answers a file-listing request.
type FileListResponse struct {
	Files []FileInfo `json:"files"`
}

// HeartbeatRequest is an empty liveness probe.
type HeartbeatRequest struct{}

// HeartbeatResponse answers a HeartbeatRequest.
type HeartbeatResponse struct {
	Alive bool `json:"alive"`
}

// ChunkSize is the fixed chunk size used by both upload and download
// streams (spec.md §4.5).
const ChunkSize = 1 << 20 // 1 MiB
