package wsconn

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/cshekharsharma/filesync/internal/ferr"
)

// Dial opens a TCP connection to addr, performs the RFC 6455 client
// handshake against path, and returns a ready-to-use client-side Conn.
func Dial(addr, path string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, ferr.Wrap(ferr.StreamBroken, err, "dial %s", addr)
	}

	var keyRaw [16]byte
	if _, err := rand.Read(keyRaw[:]); err != nil {
		nc.Close()
		return nil, ferr.Wrap(ferr.IOFailure, err, "generate websocket key")
	}
	key := base64.StdEncoding.EncodeToString(keyRaw[:])

	req := fmt.Sprintf(
		"GET %s HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Key: %s\r\n"+
			"Sec-WebSocket-Version: 13\r\n\r\n",
		path, addr, key,
	)
	if _, err := nc.Write([]byte(req)); err != nil {
		nc.Close()
		return nil, ferr.Wrap(ferr.StreamBroken, err, "write handshake request")
	}

	br := bufio.NewReader(nc)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		nc.Close()
		return nil, ferr.Wrap(ferr.StreamBroken, err, "read handshake response")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		nc.Close()
		return nil, ferr.New(ferr.StreamBroken, "handshake rejected: %s", resp.Status)
	}
	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		nc.Close()
		return nil, ferr.New(ferr.MalformedOp, "server did not upgrade to websocket")
	}
	want := acceptKey(key)
	got := resp.Header.Get("Sec-WebSocket-Accept")
	if !strings.EqualFold(textproto.TrimString(got), want) {
		nc.Close()
		return nil, ferr.New(ferr.MalformedOp, "websocket accept key mismatch")
	}

	return newConn(bufConn{Conn: nc, r: br}, true), nil
}
