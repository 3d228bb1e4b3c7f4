package protocol

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/cshekharsharma/filesync/internal/ferr"
)

// maxFrameBytes bounds a single framed message; well above ChunkSize plus
// JSON/base64 overhead so a legitimate FileChunk never trips it.
const maxFrameBytes = 8 << 20

// Encoder writes a sequence of length-prefixed JSON messages to w. Used to
// stream FileChunk values over an HTTP request/response body, which (unlike
// a WebSocket) has no built-in message framing of its own.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Encode writes one length-prefixed JSON-encoded message.
func (e *Encoder) Encode(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return ferr.Wrap(ferr.MalformedOp, err, "encode frame")
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := e.w.Write(hdr[:]); err != nil {
		return ferr.Wrap(ferr.StreamBroken, err, "write frame header")
	}
	if _, err := e.w.Write(b); err != nil {
		return ferr.Wrap(ferr.StreamBroken, err, "write frame body")
	}
	return nil
}

// Decoder reads a sequence of length-prefixed JSON messages from r.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

// Decode reads one frame into v. Returns io.EOF (unwrapped) when the stream
// ends cleanly between frames.
func (d *Decoder) Decode(v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return ferr.Wrap(ferr.StreamBroken, err, "read frame header")
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return ferr.New(ferr.MalformedOp, "frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return ferr.Wrap(ferr.StreamBroken, err, "read frame body")
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return ferr.Wrap(ferr.MalformedOp, err, "decode frame")
	}
	return nil
}
