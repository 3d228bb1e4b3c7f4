// Package wsconn is a minimal RFC 6455 WebSocket implementation (stdlib
// only, text frames only) used to carry the bidirectional Edit Protocol
// (spec.md §4.4) between client and server. gRPC-layer framing is out of
// scope for this spec (treated as an opaque "typed request/response and
// bidirectional streams" concern); this package is the concrete choice —
// grounded on Polqt/crdtcollab's transport/ws.go, which sketches the same
// handshake-then-frame shape for the same kind of CRDT-broadcast traffic.
package wsconn

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/cshekharsharma/filesync/internal/ferr"
)

const (
	opContinuation byte = 0x0
	opText         byte = 0x1
	opClose        byte = 0x8
	opPing         byte = 0x9
	opPong         byte = 0xA
)

// maxFramePayload bounds a single WebSocket frame payload. Edit ops and
// snapshots are small; this is generous headroom, not a working limit.
const maxFramePayload = 16 << 20

// Conn is one WebSocket connection, server- or client-side. Reads and
// writes may happen concurrently from different goroutines; Write calls
// are serialized internally.
type Conn struct {
	nc       net.Conn
	isClient bool // client frames must be masked; server frames must not be.

	writeMu sync.Mutex
}

// newConn wraps an already-upgraded net.Conn.
func newConn(nc net.Conn, isClient bool) *Conn {
	return &Conn{nc: nc, isClient: isClient}
}

// WriteMessage sends payload as a single unfragmented text frame.
func (c *Conn) WriteMessage(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeFrame(opText, payload)
}

func (c *Conn) writeFrame(opcode byte, payload []byte) error {
	if len(payload) > maxFramePayload {
		return ferr.New(ferr.MalformedOp, "frame payload of %d bytes exceeds limit", len(payload))
	}

	var header []byte
	first := 0x80 | opcode // FIN=1

	maskBit := byte(0)
	if c.isClient {
		maskBit = 0x80
	}

	switch {
	case len(payload) < 126:
		header = []byte{first, maskBit | byte(len(payload))}
	case len(payload) <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = first
		header[1] = maskBit | 126
		binary.BigEndian.PutUint16(header[2:], uint16(len(payload)))
	default:
		header = make([]byte, 10)
		header[0] = first
		header[1] = maskBit | 127
		binary.BigEndian.PutUint64(header[2:], uint64(len(payload)))
	}

	if _, err := c.nc.Write(header); err != nil {
		return ferr.Wrap(ferr.StreamBroken, err, "write frame header")
	}

	if !c.isClient {
		if _, err := c.nc.Write(payload); err != nil {
			return ferr.Wrap(ferr.StreamBroken, err, "write frame payload")
		}
		return nil
	}

	var maskKey [4]byte
	if _, err := rand.Read(maskKey[:]); err != nil {
		return ferr.Wrap(ferr.IOFailure, err, "generate mask key")
	}
	if _, err := c.nc.Write(maskKey[:]); err != nil {
		return ferr.Wrap(ferr.StreamBroken, err, "write mask key")
	}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ maskKey[i%4]
	}
	if _, err := c.nc.Write(masked); err != nil {
		return ferr.Wrap(ferr.StreamBroken, err, "write masked payload")
	}
	return nil
}

// ReadMessage reads the next complete text message, transparently answering
// pings and skipping pongs. Returns io.EOF when the peer closes cleanly.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		opcode, payload, err := c.readFrame()
		if err != nil {
			return nil, err
		}
		switch opcode {
		case opText, opContinuation:
			return payload, nil
		case opPing:
			if err := c.pong(payload); err != nil {
				return nil, err
			}
		case opPong:
			// no-op: we don't send application pings yet.
		case opClose:
			return nil, io.EOF
		default:
			return nil, ferr.New(ferr.MalformedOp, "unsupported websocket opcode %#x", opcode)
		}
	}
}

func (c *Conn) pong(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeFrame(opPong, payload)
}

func (c *Conn) readFrame() (byte, []byte, error) {
	var head [2]byte
	if _, err := io.ReadFull(c.nc, head[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, ferr.Wrap(ferr.StreamBroken, err, "read frame header")
	}

	opcode := head[0] & 0x0F
	masked := head[1]&0x80 != 0
	length := uint64(head[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(c.nc, ext[:]); err != nil {
			return 0, nil, ferr.Wrap(ferr.StreamBroken, err, "read extended length")
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(c.nc, ext[:]); err != nil {
			return 0, nil, ferr.Wrap(ferr.StreamBroken, err, "read extended length")
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > maxFramePayload {
		return 0, nil, ferr.New(ferr.MalformedOp, "incoming frame of %d bytes exceeds limit", length)
	}

	var maskKey [4]byte
	if masked {
		if _, err := io.ReadFull(c.nc, maskKey[:]); err != nil {
			return 0, nil, ferr.Wrap(ferr.StreamBroken, err, "read mask key")
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		return 0, nil, ferr.Wrap(ferr.StreamBroken, err, "read frame payload")
	}
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}
	return opcode, payload, nil
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.writeFrame(opClose, nil)
	c.writeMu.Unlock()
	return c.nc.Close()
}

// RemoteAddr returns the peer address string.
func (c *Conn) RemoteAddr() string {
	if c.nc == nil {
		return ""
	}
	return c.nc.RemoteAddr().String()
}
