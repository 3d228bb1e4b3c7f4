package wsconn

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	"github.com/cshekharsharma/filesync/internal/ferr"
)

// handshakeGUID is the fixed RFC 6455 accept-key salt.
const handshakeGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Upgrade hijacks an incoming HTTP request that carries a WebSocket upgrade
// header and returns a ready-to-use server-side Conn.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return nil, ferr.New(ferr.MalformedOp, "not a websocket upgrade request")
	}
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, ferr.New(ferr.MalformedOp, "missing Sec-WebSocket-Key")
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, ferr.New(ferr.IOFailure, "response writer does not support hijacking")
	}
	nc, rw, err := hj.Hijack()
	if err != nil {
		return nil, ferr.Wrap(ferr.IOFailure, err, "hijack connection")
	}

	accept := acceptKey(key)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := rw.WriteString(resp); err != nil {
		nc.Close()
		return nil, ferr.Wrap(ferr.StreamBroken, err, "write upgrade response")
	}
	if err := rw.Flush(); err != nil {
		nc.Close()
		return nil, ferr.Wrap(ferr.StreamBroken, err, "flush upgrade response")
	}

	return newConn(bufConn{Conn: nc, r: rw.Reader}, false), nil
}

func acceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey + handshakeGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// bufConn lets post-handshake reads come from the bufio.Reader the HTTP
// server already buffered the hijacked connection into, instead of the
// raw net.Conn (which could otherwise drop already-buffered bytes).
type bufConn struct {
	net.Conn
	r *bufio.Reader
}

func (b bufConn) Read(p []byte) (int, error) { return b.r.Read(p) }
