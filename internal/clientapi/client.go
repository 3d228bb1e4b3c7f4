// Package clientapi is the single HTTP+WebSocket client used by both the
// CLI (cmd/filesync) and the sync reconciler (internal/reconcile) to talk
// to a filesync server — grounded on edirooss-zmux-server's pattern of one
// thin client package shared by its own CLI and its internal callers.
package clientapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cshekharsharma/filesync/internal/ferr"
	"github.com/cshekharsharma/filesync/internal/protocol"
	"github.com/cshekharsharma/filesync/internal/wsconn"
)

// Client talks HTTP to a filesync server's File Transfer / Catalog /
// Heartbeat surface, and opens WebSocket connections for the Edit Protocol.
type Client struct {
	baseURL    string
	wsAddr     string
	httpClient *http.Client
}

// New returns a Client targeting serverAddr (host:port, no scheme).
func New(serverAddr string) *Client {
	return &Client{
		baseURL:    "http://" + serverAddr,
		wsAddr:     serverAddr,
		httpClient: http.DefaultClient,
	}
}

// ListFiles returns every live file the server's catalog knows about.
func (c *Client) ListFiles() ([]protocol.FileInfo, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/v1/files")
	if err != nil {
		return nil, ferr.Wrap(ferr.StreamBroken, err, "list files")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp)
	}
	var out protocol.FileListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ferr.Wrap(ferr.MalformedOp, err, "decode file list")
	}
	return out.Files, nil
}

// FileInfo returns the catalog record for one file.
func (c *Client) FileInfo(name string) (*protocol.FileInfo, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/v1/files/" + name + "/info")
	if err != nil {
		return nil, ferr.Wrap(ferr.StreamBroken, err, "get file info %s", name)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ferr.New(ferr.NotFound, "file %s not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp)
	}
	var info protocol.FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, ferr.Wrap(ferr.MalformedOp, err, "decode file info")
	}
	return &info, nil
}

// Upload reads all of r and streams it to the server in fixed-size chunks.
func (c *Client) Upload(name string, r io.Reader) error {
	pr, pw := io.Pipe()
	enc := protocol.NewEncoder(pw)

	go func() {
		buf := make([]byte, protocol.ChunkSize)
		index := 0
		sentLast := false
		for {
			n, readErr := r.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				isLast := readErr == io.EOF
				chunk := protocol.FileChunk{Name: name, ChunkIndex: index, Data: data, IsLastChunk: isLast}
				if err := enc.Encode(&chunk); err != nil {
					pw.CloseWithError(err)
					return
				}
				sentLast = isLast
				index++
			}
			if readErr == io.EOF {
				if !sentLast {
					enc.Encode(&protocol.FileChunk{Name: name, ChunkIndex: index, IsLastChunk: true})
				}
				pw.Close()
				return
			}
			if readErr != nil {
				pw.CloseWithError(readErr)
				return
			}
		}
	}()

	resp, err := c.httpClient.Post(c.baseURL+"/v1/files/"+name, "application/octet-stream", pr)
	if err != nil {
		return ferr.Wrap(ferr.StreamBroken, err, "upload %s", name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusErr(resp)
	}
	return nil
}

// Download writes name's content to w.
func (c *Client) Download(name string, w io.Writer) error {
	resp, err := c.httpClient.Get(c.baseURL + "/v1/files/" + name)
	if err != nil {
		return ferr.Wrap(ferr.StreamBroken, err, "download %s", name)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ferr.New(ferr.NotFound, "file %s not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		return statusErr(resp)
	}

	dec := protocol.NewDecoder(resp.Body)
	for {
		var chunk protocol.FileChunk
		if err := dec.Decode(&chunk); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(chunk.Data) > 0 {
			if _, err := w.Write(chunk.Data); err != nil {
				return ferr.Wrap(ferr.IOFailure, err, "write downloaded data for %s", name)
			}
		}
		if chunk.IsLastChunk {
			return nil
		}
	}
}

// Heartbeat asks the server whether it is alive.
func (c *Client) Heartbeat() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/v1/heartbeat")
	if err != nil {
		return false, ferr.Wrap(ferr.StreamBroken, err, "heartbeat")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, statusErr(resp)
	}
	var out protocol.HeartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, ferr.Wrap(ferr.MalformedOp, err, "decode heartbeat response")
	}
	return out.Alive, nil
}

// EditSession is a live WebSocket connection to the server's Edit Protocol
// endpoint (spec.md §4.4).
type EditSession struct {
	conn *wsconn.Conn
}

// DialEdit opens a new edit session against the server.
func (c *Client) DialEdit() (*EditSession, error) {
	conn, err := wsconn.Dial(c.wsAddr, "/v1/edit")
	if err != nil {
		return nil, err
	}
	return &EditSession{conn: conn}, nil
}

// SendOp submits one CRDT operation and waits for its acknowledgement.
func (s *EditSession) SendOp(op protocol.Op) (*protocol.OpAck, error) {
	if err := s.writeJSON(&op); err != nil {
		return nil, err
	}
	var ack protocol.OpAck
	if err := s.readJSON(&ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// InsertAt asks the server to insert content (one codepoint) at visibleIndex
// in doc on behalf of siteID, without requiring the caller to maintain its
// own CRDT replica (spec.md §6's stateless one-shot CLI).
func (s *EditSession) InsertAt(doc, siteID string, visibleIndex int, content string) (*protocol.OpAck, error) {
	req := protocol.LocalEditRequest{Doc: doc, Site: siteID, VisibleIndex: visibleIndex, Content: content}
	if err := s.writeJSON(&req); err != nil {
		return nil, err
	}
	var ack protocol.OpAck
	if err := s.readJSON(&ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Query fetches the current text of a document.
func (s *EditSession) Query(doc string) (string, error) {
	if err := s.writeJSON(&protocol.StateQuery{Doc: doc}); err != nil {
		return "", err
	}
	var snap protocol.StateSnapshot
	if err := s.readJSON(&snap); err != nil {
		return "", err
	}
	return snap.Content, nil
}

// Close ends the session.
func (s *EditSession) Close() error { return s.conn.Close() }

func (s *EditSession) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return ferr.Wrap(ferr.MalformedOp, err, "encode edit message")
	}
	return s.conn.WriteMessage(b)
}

func (s *EditSession) readJSON(v any) error {
	b, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return ferr.Wrap(ferr.MalformedOp, err, "decode edit message")
	}
	return nil
}

func statusErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return ferr.New(ferr.StreamBroken, "unexpected status %s: %s", resp.Status, bytes.TrimSpace(body))
}
