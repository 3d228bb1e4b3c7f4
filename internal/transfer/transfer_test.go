package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cshekharsharma/filesync/internal/catalog"
	"github.com/cshekharsharma/filesync/internal/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.Open(filepath.Join(dir, "filesync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	s, err := New(filepath.Join(dir, "storage"), cat, zap.NewNop())
	require.NoError(t, err)
	return s
}

func encodeChunks(t *testing.T, data []byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := protocol.NewEncoder(&buf)

	const chunkSize = 7
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := protocol.FileChunk{
			ChunkIndex:  i / chunkSize,
			Data:        data[i:end],
			IsLastChunk: end == len(data),
		}
		if i == 0 {
			chunk.TotalSize = int64(len(data))
		}
		require.NoError(t, enc.Encode(&chunk))
	}
	if len(data) == 0 {
		require.NoError(t, enc.Encode(&protocol.FileChunk{IsLastChunk: true}))
	}
	return &buf
}

func TestStore_UploadDownload_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	content := []byte("the quick brown fox jumps over the lazy dog, repeated for good measure")

	rec, err := s.Upload("doc.txt", protocol.NewDecoder(encodeChunks(t, content)), 1000)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Version)
	require.Equal(t, int64(len(content)), rec.Size)

	var out bytes.Buffer
	require.NoError(t, s.Download("doc.txt", protocol.NewEncoder(&out)))

	dec := protocol.NewDecoder(&out)
	var reassembled []byte
	var lastHash string
	for {
		var chunk protocol.FileChunk
		if err := dec.Decode(&chunk); err != nil {
			break
		}
		reassembled = append(reassembled, chunk.Data...)
		if chunk.FileHash != "" {
			lastHash = chunk.FileHash
		}
		if chunk.IsLastChunk {
			break
		}
	}
	require.Equal(t, content, reassembled)
	require.Equal(t, rec.Hash, lastHash)
}

func TestStore_Upload_WritesBothPrimaryAndBackup(t *testing.T) {
	s := newTestStore(t)
	content := []byte("hello world")

	_, err := s.Upload("a.txt", protocol.NewDecoder(encodeChunks(t, content)), 1)
	require.NoError(t, err)

	primaryData, err := os.ReadFile(filepath.Join(s.primaryRoot, "a.txt"))
	require.NoError(t, err)
	backupData, err := os.ReadFile(filepath.Join(s.backupRoot, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, content, primaryData)
	require.Equal(t, content, backupData)
}

func TestStore_Upload_RecordsChunkPlacementBackupOverwritesPrimary(t *testing.T) {
	s := newTestStore(t)
	content := []byte("abcdefghijklmnopqrstuvwxyz")

	_, err := s.Upload("c.txt", protocol.NewDecoder(encodeChunks(t, content)), 1)
	require.NoError(t, err)

	// Every chunk gets one placement row keyed by (file, chunk_index,
	// shard_index=0): the "backup" upsert follows "primary" for the same
	// key and wins, matching original_source/src/server/server.cpp's own
	// back-to-back AddChunk(..., "primary")/AddChunk(..., "backup") calls.
	chunks, err := s.catalog.ListChunks("c.txt")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		require.Equal(t, "backup", ch.NodeID)
	}
}

func TestStore_Download_FailsOverToBackupWhenPrimaryMissing(t *testing.T) {
	s := newTestStore(t)
	content := []byte("backup wins")

	_, err := s.Upload("b.txt", protocol.NewDecoder(encodeChunks(t, content)), 1)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(s.primaryRoot, "b.txt")))

	var out bytes.Buffer
	require.NoError(t, s.Download("b.txt", protocol.NewEncoder(&out)))

	dec := protocol.NewDecoder(&out)
	var reassembled []byte
	for {
		var chunk protocol.FileChunk
		if err := dec.Decode(&chunk); err != nil {
			break
		}
		reassembled = append(reassembled, chunk.Data...)
		if chunk.IsLastChunk {
			break
		}
	}
	require.Equal(t, content, reassembled)
}

func TestStore_Download_NotFoundWhenMissingEverywhere(t *testing.T) {
	s := newTestStore(t)
	var out bytes.Buffer
	err := s.Download("nope.txt", protocol.NewEncoder(&out))
	require.Error(t, err)
}

func TestStore_Upload_RejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Upload("../evil.txt", protocol.NewDecoder(encodeChunks(t, []byte("x"))), 1)
	require.Error(t, err)
}
