package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cshekharsharma/filesync/internal/catalog"
	"github.com/cshekharsharma/filesync/internal/clientapi"
	"github.com/cshekharsharma/filesync/internal/crdt"
	"github.com/cshekharsharma/filesync/internal/protocol"
	"github.com/cshekharsharma/filesync/internal/transfer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestManager() *crdt.Manager {
	return crdt.NewManager("test-server")
}

func newTestRouter(h *handlers) *gin.Engine {
	e := gin.New()
	h.registerRoutes(e)
	return e
}

func newTestHandlers(t *testing.T) *handlers {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.Open(filepath.Join(dir, "filesync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	store, err := transfer.New(filepath.Join(dir, "storage"), cat, zap.NewNop())
	require.NoError(t, err)

	h := &handlers{
		catalog: cat,
		store:   store,
		manager: newTestManager(),
		hub:     newHub(zap.NewNop()),
		log:     zap.NewNop(),
	}
	return h
}

func TestHandlers_UploadListDownload(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)
	srv := httptest.NewServer(router)
	defer srv.Close()

	content := []byte("hello from the handler test")
	body := encodeChunksForUpload(t, content)

	resp, err := http.Post(srv.URL+"/v1/files/greeting.txt", "application/octet-stream", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/files")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/files/greeting.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dec := protocol.NewDecoder(resp.Body)
	var out []byte
	for {
		var chunk protocol.FileChunk
		if err := dec.Decode(&chunk); err != nil {
			break
		}
		out = append(out, chunk.Data...)
		if chunk.IsLastChunk {
			break
		}
	}
	require.Equal(t, content, out)
}

func TestHandlers_Heartbeat(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/heartbeat")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlers_EditSession_InsertAndQuery(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)
	srv := httptest.NewServer(router)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	client := clientapi.New(u.Host)
	session, err := client.DialEdit()
	require.NoError(t, err)
	defer session.Close()

	ack, err := session.InsertAt("notes", "client-a", 0, "h")
	require.NoError(t, err)
	require.True(t, ack.OK)

	ack, err = session.InsertAt("notes", "client-a", 1, "i")
	require.NoError(t, err)
	require.True(t, ack.OK)

	text, err := session.Query("notes")
	require.NoError(t, err)
	require.Equal(t, "hi", text)
}

func TestHandlers_EditSession_DeleteWithoutTargetIsMalformed(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)
	srv := httptest.NewServer(router)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	client := clientapi.New(u.Host)
	session, err := client.DialEdit()
	require.NoError(t, err)
	defer session.Close()

	ack, err := session.SendOp(protocol.Op{Kind: protocol.OpDelete, Doc: "notes"})
	require.NoError(t, err)
	require.False(t, ack.OK, "a DELETE with no target must be rejected, not silently applied")
}

func encodeChunksForUpload(t *testing.T, data []byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := protocol.NewEncoder(&buf)
	require.NoError(t, enc.Encode(&protocol.FileChunk{ChunkIndex: 0, Data: data, IsLastChunk: true, TotalSize: int64(len(data))}))
	return &buf
}
