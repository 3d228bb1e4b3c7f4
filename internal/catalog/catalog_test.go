package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "filesync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog_UpsertFile_CreatesAtVersionOne(t *testing.T) {
	c := openTest(t)

	rec, err := c.UpsertFile("notes.txt", "abc123", 42, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Version)

	got, err := c.GetFile("notes.txt")
	require.NoError(t, err)
	require.Equal(t, "notes.txt", got.Name)
	require.Equal(t, 1, got.Version)
	require.Equal(t, "abc123", got.Hash)
	require.Equal(t, int64(42), got.Size)
	require.False(t, got.Deleted)
}

func TestCatalog_UpsertFile_IncrementsVersionOnReupload(t *testing.T) {
	c := openTest(t)

	_, err := c.UpsertFile("notes.txt", "hash1", 10, 1000)
	require.NoError(t, err)
	rec2, err := c.UpsertFile("notes.txt", "hash2", 20, 2000)
	require.NoError(t, err)
	require.Equal(t, 2, rec2.Version)

	got, err := c.GetFile("notes.txt")
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)
	require.Equal(t, "hash2", got.Hash)
	require.Equal(t, int64(20), got.Size)
}

func TestCatalog_GetFile_NotFound(t *testing.T) {
	c := openTest(t)

	_, err := c.GetFile("missing.txt")
	require.Error(t, err)
}

func TestCatalog_ListLiveFiles_ExcludesDeleted(t *testing.T) {
	c := openTest(t)

	_, err := c.UpsertFile("a.txt", "h1", 1, 100)
	require.NoError(t, err)
	_, err = c.UpsertFile("b.txt", "h2", 2, 200)
	require.NoError(t, err)

	_, err = c.db.Exec(`UPDATE files SET deleted = 1 WHERE name = ?`, "b.txt")
	require.NoError(t, err)

	live, err := c.ListLiveFiles()
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, "a.txt", live[0].Name)
}

func TestCatalog_UpsertChunk_OverwritesNodeID(t *testing.T) {
	c := openTest(t)

	require.NoError(t, c.UpsertChunk("big.bin", 0, 0, "primary"))
	require.NoError(t, c.UpsertChunk("big.bin", 0, 0, "backup"))

	var rec ChunkRecord
	err := c.db.Get(&rec, `SELECT file_name, chunk_index, shard_index, node_id FROM chunks WHERE file_name = ? AND chunk_index = ? AND shard_index = ?`, "big.bin", 0, 0)
	require.NoError(t, err)
	require.Equal(t, "backup", rec.NodeID)
}

func TestCatalog_ListChunks_OrdersByIndex(t *testing.T) {
	c := openTest(t)

	require.NoError(t, c.UpsertChunk("big.bin", 1, 0, "primary"))
	require.NoError(t, c.UpsertChunk("big.bin", 0, 0, "primary"))
	require.NoError(t, c.UpsertChunk("big.bin", 0, 0, "backup"))

	chunks, err := c.ListChunks("big.bin")
	require.NoError(t, err)
	// (big.bin, 0, 0) is one primary-key row: the second upsert overwrites
	// its node_id from "primary" to "backup" rather than adding a row.
	require.Len(t, chunks, 2)
	require.Equal(t, 0, chunks[0].ChunkIndex)
	require.Equal(t, "backup", chunks[0].NodeID)
	require.Equal(t, 1, chunks[1].ChunkIndex)
}
