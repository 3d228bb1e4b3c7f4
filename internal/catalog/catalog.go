// Package catalog is the persistent metadata store of spec.md §4.6: a
// files(name, version, hash, size, deleted, timestamp) relation and a
// chunks((file_name, chunk_index, shard_index), node_id) relation, backed
// by SQLite — matching the schema and default filename
// (original_source/src/db/db_manager.cpp, "filesync.db") of the C++
// implementation this spec was distilled from.
package catalog

import (
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cshekharsharma/filesync/internal/ferr"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	name      TEXT PRIMARY KEY,
	version   INTEGER NOT NULL,
	hash      TEXT NOT NULL,
	size      INTEGER NOT NULL,
	deleted   INTEGER NOT NULL DEFAULT 0,
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	file_name   TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	shard_index INTEGER NOT NULL DEFAULT 0,
	node_id     TEXT NOT NULL,
	PRIMARY KEY (file_name, chunk_index, shard_index)
);
`

// FileRecord is one row of the files relation.
type FileRecord struct {
	Name      string `db:"name"`
	Version   int    `db:"version"`
	Hash      string `db:"hash"`
	Size      int64  `db:"size"`
	Deleted   bool   `db:"deleted"`
	Timestamp int64  `db:"timestamp"`
}

// ChunkRecord is one row of the chunks relation.
type ChunkRecord struct {
	FileName   string `db:"file_name"`
	ChunkIndex int    `db:"chunk_index"`
	ShardIndex int    `db:"shard_index"`
	NodeID     string `db:"node_id"`
}

// Catalog is a durable key-value store over two relations (spec.md §4.6).
// All operations are strongly consistent point operations; SQLite's own
// file locking plus writeMu below serialize writers, matching the spec's
// "no transactions span multiple operations" requirement — each exported
// method is exactly one logical operation.
type Catalog struct {
	db *sqlx.DB

	writeMu sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*Catalog, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, ferr.Wrap(ferr.CatalogFailure, err, "open catalog %s", path)
	}
	// SQLite serializes writers at the file level; a single connection
	// avoids "database is locked" races under our own writeMu discipline.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) init() error {
	if _, err := c.db.Exec(schema); err != nil {
		return ferr.Wrap(ferr.CatalogFailure, err, "apply catalog schema")
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// UpsertFile inserts name or, if it already exists, updates it in place and
// increments its version (spec.md §3: "updated in place on re-upload").
func (c *Catalog) UpsertFile(name, hash string, size, timestamp int64) (*FileRecord, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	existing, err := c.getFileLocked(name)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	version := 1
	if existing != nil {
		version = existing.Version + 1
	}

	_, err = c.db.Exec(
		`INSERT INTO files (name, version, hash, size, deleted, timestamp)
		 VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT(name) DO UPDATE SET
			version=excluded.version, hash=excluded.hash, size=excluded.size,
			deleted=0, timestamp=excluded.timestamp`,
		name, version, hash, size, timestamp,
	)
	if err != nil {
		return nil, ferr.Wrap(ferr.CatalogFailure, err, "upsert file %s", name)
	}

	return &FileRecord{Name: name, Version: version, Hash: hash, Size: size, Timestamp: timestamp}, nil
}

// GetFile returns the catalog record for name.
func (c *Catalog) GetFile(name string) (*FileRecord, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.getFileLocked(name)
}

func (c *Catalog) getFileLocked(name string) (*FileRecord, error) {
	var rec FileRecord
	err := c.db.Get(&rec, `SELECT name, version, hash, size, deleted, timestamp FROM files WHERE name = ?`, name)
	if err == sql.ErrNoRows {
		return nil, ferr.New(ferr.NotFound, "file %s not in catalog", name)
	}
	if err != nil {
		return nil, ferr.Wrap(ferr.CatalogFailure, err, "get file %s", name)
	}
	return &rec, nil
}

// ListLiveFiles returns every file record with deleted=0.
func (c *Catalog) ListLiveFiles() ([]FileRecord, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var recs []FileRecord
	err := c.db.Select(&recs, `SELECT name, version, hash, size, deleted, timestamp FROM files WHERE deleted = 0 ORDER BY name`)
	if err != nil {
		return nil, ferr.Wrap(ferr.CatalogFailure, err, "list live files")
	}
	return recs, nil
}

// UpsertChunk records (or overwrites) one chunk placement hint.
func (c *Catalog) UpsertChunk(fileName string, chunkIndex, shardIndex int, nodeID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.db.Exec(
		`INSERT INTO chunks (file_name, chunk_index, shard_index, node_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(file_name, chunk_index, shard_index) DO UPDATE SET node_id=excluded.node_id`,
		fileName, chunkIndex, shardIndex, nodeID,
	)
	if err != nil {
		return ferr.Wrap(ferr.CatalogFailure, err, "upsert chunk %s[%d/%d]", fileName, chunkIndex, shardIndex)
	}
	return nil
}

// ListChunks returns every chunk placement record for fileName, ordered by
// chunk index then shard index.
func (c *Catalog) ListChunks(fileName string) ([]ChunkRecord, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var recs []ChunkRecord
	err := c.db.Select(&recs,
		`SELECT file_name, chunk_index, shard_index, node_id FROM chunks
		 WHERE file_name = ? ORDER BY chunk_index, shard_index`, fileName)
	if err != nil {
		return nil, ferr.Wrap(ferr.CatalogFailure, err, "list chunks for %s", fileName)
	}
	return recs, nil
}

func isNotFound(err error) bool {
	fe, ok := err.(*ferr.Error)
	return ok && fe.Kind == ferr.NotFound
}
