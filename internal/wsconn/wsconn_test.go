package wsconn

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestUpgradeAndDial_Roundtrip(t *testing.T) {
	var serverConn *Conn
	ready := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			close(ready)
			return
		}
		serverConn = c
		close(ready)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	client, err := Dial(u.Host, "/ws")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server upgrade")
	}
	if serverConn == nil {
		t.Fatal("server connection not established")
	}
	defer serverConn.Close()

	if err := client.WriteMessage([]byte("hello")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	got, err := serverConn.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}

	// Exercise a payload long enough to require the 16-bit extended length
	// path (>= 126 bytes) and the server->client (unmasked) write path.
	long := make([]byte, 5000)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	if err := serverConn.WriteMessage(long); err != nil {
		t.Fatalf("server write: %v", err)
	}
	got, err = client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(got) != string(long) {
		t.Fatalf("long payload roundtrip mismatch")
	}
}
