// Package transfer implements the File Transfer component of spec.md §4.5:
// chunked upload and download against a primary/backup storage pair, with
// the catalog's file record only upserted once an upload stream has
// completed in full (spec.md §5: a cancelled upload must not leave a partial
// file visible in the catalog). Chunk placement rows are written as each
// chunk arrives.
package transfer

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cshekharsharma/filesync/internal/catalog"
	"github.com/cshekharsharma/filesync/internal/digest"
	"github.com/cshekharsharma/filesync/internal/ferr"
	"github.com/cshekharsharma/filesync/internal/protocol"
)

// Store writes every uploaded file synchronously to both a primary and a
// backup root (spec.md §4.5 "replicated write"), and serves downloads from
// the primary, falling back to the backup on failure.
type Store struct {
	primaryRoot string
	backupRoot  string
	catalog     *catalog.Catalog
	log         *zap.Logger
}

// New creates a Store rooted at storageRoot/primary and storageRoot/backup,
// creating both directories if they do not already exist.
func New(storageRoot string, cat *catalog.Catalog, log *zap.Logger) (*Store, error) {
	primary := filepath.Join(storageRoot, "primary")
	backup := filepath.Join(storageRoot, "backup")
	for _, dir := range []string{primary, backup} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ferr.Wrap(ferr.IOFailure, err, "create storage directory %s", dir)
		}
	}
	return &Store{primaryRoot: primary, backupRoot: backup, catalog: cat, log: log}, nil
}

// Upload consumes a sequence of FileChunk frames from dec, writing each
// chunk synchronously to both the primary and backup path, and only
// upserts the catalog file entry after the final chunk has been written
// successfully to both. Any failure mid-stream leaves no new file record —
// the previous version (if any) remains visible; the chunk placement rows
// already upserted for the chunks received so far are not removed.
func (s *Store) Upload(name string, dec *protocol.Decoder, timestamp int64) (*catalog.FileRecord, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	primaryPath := filepath.Join(s.primaryRoot, name)
	backupPath := filepath.Join(s.backupRoot, name)

	primaryTmp, err := os.CreateTemp(s.primaryRoot, "upload-*")
	if err != nil {
		return nil, ferr.Wrap(ferr.IOFailure, err, "create primary temp file for %s", name)
	}
	defer func() {
		primaryTmp.Close()
		os.Remove(primaryTmp.Name())
	}()

	backupTmp, err := os.CreateTemp(s.backupRoot, "upload-*")
	if err != nil {
		return nil, ferr.Wrap(ferr.IOFailure, err, "create backup temp file for %s", name)
	}
	defer func() {
		backupTmp.Close()
		os.Remove(backupTmp.Name())
	}()

	digestWriter := digest.NewWriter(io.MultiWriter(primaryTmp, backupTmp))

	var total int64
	for {
		var chunk protocol.FileChunk
		if err := dec.Decode(&chunk); err != nil {
			return nil, ferr.Wrap(ferr.StreamBroken, err, "read upload chunk for %s", name)
		}
		if len(chunk.Data) > 0 {
			if _, err := digestWriter.Write(chunk.Data); err != nil {
				return nil, ferr.Wrap(ferr.IOFailure, err, "write chunk %d for %s", chunk.ChunkIndex, name)
			}
			total += int64(len(chunk.Data))
		}
		if err := s.catalog.UpsertChunk(name, chunk.ChunkIndex, 0, "primary"); err != nil {
			return nil, err
		}
		if err := s.catalog.UpsertChunk(name, chunk.ChunkIndex, 0, "backup"); err != nil {
			return nil, err
		}
		if chunk.IsLastChunk {
			break
		}
	}

	if err := primaryTmp.Sync(); err != nil {
		return nil, ferr.Wrap(ferr.IOFailure, err, "sync primary file for %s", name)
	}
	if err := backupTmp.Sync(); err != nil {
		return nil, ferr.Wrap(ferr.IOFailure, err, "sync backup file for %s", name)
	}
	primaryTmp.Close()
	backupTmp.Close()

	if err := os.Rename(primaryTmp.Name(), primaryPath); err != nil {
		return nil, ferr.Wrap(ferr.IOFailure, err, "commit primary file for %s", name)
	}
	if err := os.Rename(backupTmp.Name(), backupPath); err != nil {
		return nil, ferr.Wrap(ferr.IOFailure, err, "commit backup file for %s", name)
	}

	hash := digestWriter.Sum()
	rec, err := s.catalog.UpsertFile(name, hash, total, timestamp)
	if err != nil {
		return nil, err
	}
	s.log.Info("upload complete", zap.String("name", name), zap.Int64("size", total), zap.String("hash", hash))
	return rec, nil
}

// Download streams name's content in fixed-size chunks via enc, reading
// from the primary path and transparently failing over to the backup path
// if the primary is missing or unreadable (spec.md §4.5/§7).
func (s *Store) Download(name string, enc *protocol.Encoder) error {
	if err := validName(name); err != nil {
		return err
	}

	path := filepath.Join(s.primaryRoot, name)
	f, err := os.Open(path)
	if err != nil {
		s.log.Warn("primary read failed, failing over to backup",
			zap.String("name", name), zap.Error(err))
		path = filepath.Join(s.backupRoot, name)
		f, err = os.Open(path)
		if err != nil {
			return ferr.New(ferr.NotFound, "file %s not found on primary or backup", name)
		}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ferr.Wrap(ferr.IOFailure, err, "stat %s", name)
	}
	total := info.Size()

	buf := make([]byte, protocol.ChunkSize)
	digestReader := digest.NewWriter(io.Discard)
	var sent int64
	index := 0
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			sent += int64(n)
			data := make([]byte, n)
			copy(data, buf[:n])
			digestReader.Write(data)

			chunk := protocol.FileChunk{
				Name:       name,
				ChunkIndex: index,
				Data:       data,
			}
			if index == 0 {
				chunk.TotalSize = total
			}
			isLast := readErr == io.EOF || sent >= total
			chunk.IsLastChunk = isLast
			if isLast {
				chunk.FileHash = digestReader.Sum()
			}
			if err := enc.Encode(&chunk); err != nil {
				return err
			}
			index++
			if isLast {
				return nil
			}
		}
		if readErr == io.EOF {
			// Zero-byte file: emit one empty final chunk.
			if index == 0 {
				return enc.Encode(&protocol.FileChunk{
					Name:        name,
					ChunkIndex:  0,
					IsLastChunk: true,
					TotalSize:   0,
					FileHash:    digestReader.Sum(),
				})
			}
			return nil
		}
		if readErr != nil {
			return ferr.Wrap(ferr.IOFailure, readErr, "read %s", name)
		}
	}
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return ferr.New(ferr.MalformedOp, "invalid file name %q", name)
	}
	return nil
}
