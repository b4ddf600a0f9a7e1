// Package storage is the durable home for FileRecord metadata and their
// embedding vectors: a SQLite table for the metadata, plus a flat
// append-only blob file addressed by (offset, length) for the vectors
// themselves. Grounded on the original Rust storage.rs's schema and
// upsert-reuse logic, with the SQLite open/pragma/pool setup adapted from
// vvoland-cagent's sqliteutil.OpenDB helper.
package storage

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Saurav-kan/gist/internal/giserr"
)

// FileRecord is the metadata row for one indexed file (or file section).
type FileRecord struct {
	ID              int64
	FilePath        string
	FileName        string
	FileSize        int64
	ModifiedTime    int64
	FileType        string
	EmbeddingOffset int64
	EmbeddingLength int64
}

// HasVector reports whether this record has an embedding stored.
func (r FileRecord) HasVector() bool { return r.EmbeddingLength > 0 }

const vectorReadRetries = 5
const vectorReadBackoff = 100 * time.Millisecond

// Storage owns the metadata DB and the embeddings blob file. Reads are
// unsynchronized beyond what SQLite itself provides; blob appends are
// serialized by mu so that concurrent Upserts never interleave appends,
// while SQL row writes go through the single pooled connection.
type Storage struct {
	log      *slog.Logger
	db       *sql.DB
	blobPath string

	mu   sync.Mutex // serializes blob appends + offset allocation
	blob *os.File
}

// Open opens (creating if necessary) the metadata DB at dataDir/metadata.db
// and the embeddings blob at dataDir/embeddings.bin.
func Open(dataDir string, log *slog.Logger) (*Storage, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.db")
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	// SQLite only tolerates one writer; serialize the connection pool the
	// way vvoland-cagent's sqliteutil does, so "database is locked" never
	// surfaces from within this process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT UNIQUE NOT NULL,
			file_name TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			modified_time INTEGER NOT NULL,
			file_type TEXT NOT NULL,
			embedding_offset INTEGER NOT NULL DEFAULT 0,
			embedding_length INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_file_path ON files(file_path);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	blobPath := filepath.Join(dataDir, "embeddings.bin")
	blob, err := os.OpenFile(blobPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open embeddings blob: %w", err)
	}

	log.Info("storage opened", "data_dir", dataDir)
	return &Storage{log: log, db: db, blobPath: blobPath, blob: blob}, nil
}

// Close checkpoints the WAL and closes both the DB and blob handles.
func (s *Storage) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn("wal checkpoint failed on close", "error", err)
	}
	err1 := s.db.Close()
	err2 := s.blob.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// encodeVector frames a []float32 as a flat little-endian byte sequence,
// with no header — the stored embedding_length is the authoritative span
// (see SPEC_FULL.md's Open Question resolution on blob framing).
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// appendVector appends vector bytes under mu and returns (offset, length).
func (s *Storage) appendVector(v []float32) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := encodeVector(v)
	off, err := s.blob.Seek(0, os.SEEK_END)
	if err != nil {
		return 0, 0, fmt.Errorf("seek embeddings blob: %w", err)
	}
	if _, err := s.blob.Write(buf); err != nil {
		return 0, 0, fmt.Errorf("append embeddings blob: %w", err)
	}
	return off, int64(len(buf)), nil
}

// Upsert stores record, reusing the existing blob slice when modified_time,
// file_size and vector byte length are unchanged from the prior row for the
// same path (the original Rust storage.rs's reuse-if-unchanged rule). A nil
// vector writes a metadata-only row (embedding_length = 0).
func (s *Storage) Upsert(record *FileRecord, vector []float32) error {
	existing, err := s.Get(record.FilePath)
	if err != nil && giserr.KindOf(err) != giserr.NotFound {
		return err
	}

	var offset, length int64
	reused := false
	if existing != nil && vector != nil {
		wantLen := int64(4 * len(vector))
		if existing.ModifiedTime == record.ModifiedTime &&
			existing.FileSize == record.FileSize &&
			existing.EmbeddingLength == wantLen {
			offset, length = existing.EmbeddingOffset, existing.EmbeddingLength
			reused = true
		}
	}

	if !reused && vector != nil {
		offset, length, err = s.appendVector(vector)
		if err != nil {
			return err
		}
	}

	record.EmbeddingOffset = offset
	record.EmbeddingLength = length

	_, err = s.db.Exec(`
		INSERT INTO files (file_path, file_name, file_size, modified_time, file_type, embedding_offset, embedding_length)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			modified_time = excluded.modified_time,
			file_type = excluded.file_type,
			embedding_offset = excluded.embedding_offset,
			embedding_length = excluded.embedding_length
	`, record.FilePath, record.FileName, record.FileSize, record.ModifiedTime, record.FileType, record.EmbeddingOffset, record.EmbeddingLength)
	if err != nil {
		return giserr.Wrap(giserr.Transient, "upsert file record", err)
	}
	return nil
}

func scanRecord(row interface{ Scan(...any) error }) (*FileRecord, error) {
	var r FileRecord
	if err := row.Scan(&r.ID, &r.FilePath, &r.FileName, &r.FileSize, &r.ModifiedTime, &r.FileType, &r.EmbeddingOffset, &r.EmbeddingLength); err != nil {
		return nil, err
	}
	return &r, nil
}

// Get looks up one record by path. Returns a NotFound giserr.Error if absent.
func (s *Storage) Get(path string) (*FileRecord, error) {
	row := s.db.QueryRow(`SELECT id, file_path, file_name, file_size, modified_time, file_type, embedding_offset, embedding_length FROM files WHERE file_path = ?`, path)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, giserr.New(giserr.NotFound, "no record for "+path)
	}
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, "get file record", err)
	}
	return r, nil
}

// ListAll returns every record, including metadata-only ones.
func (s *Storage) ListAll() ([]FileRecord, error) {
	rows, err := s.db.Query(`SELECT id, file_path, file_name, file_size, modified_time, file_type, embedding_offset, embedding_length FROM files`)
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, "list files", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, giserr.Wrap(giserr.Transient, "scan file record", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListWithoutVector returns only the metadata-only records, used by the
// SearchEngine's keyword sweep (spec §4.8 step 7).
func (s *Storage) ListWithoutVector() ([]FileRecord, error) {
	rows, err := s.db.Query(`SELECT id, file_path, file_name, file_size, modified_time, file_type, embedding_offset, embedding_length FROM files WHERE embedding_length = 0`)
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, "list vectorless files", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, giserr.Wrap(giserr.Transient, "scan file record", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Delete removes one record by exact path. Missing paths are not an error.
func (s *Storage) Delete(path string) error {
	_, err := s.db.Exec(`DELETE FROM files WHERE file_path = ?`, path)
	if err != nil {
		return giserr.Wrap(giserr.Transient, "delete file record", err)
	}
	return nil
}

// DeleteWithSections removes the primary record at path plus any large-file
// section records sharing it (file_path = "path#sectionK"), per spec §3's
// large-file section records. Used before reindexing a changed file so a
// file that shrinks below the sectioning threshold doesn't leave stale
// section records behind (see DESIGN.md's Open Question decision).
func (s *Storage) DeleteWithSections(path string) error {
	_, err := s.db.Exec(`DELETE FROM files WHERE file_path = ? OR file_path LIKE ?`, path, path+"#section%")
	if err != nil {
		return giserr.Wrap(giserr.Transient, "delete with sections", err)
	}
	return nil
}

// DeleteByPrefix removes the record at prefix itself and every record nested
// under it (file_path beginning with prefix plus the path separator), used
// by FileWatcher's directory-removal handling (spec §4.6).
func (s *Storage) DeleteByPrefix(prefix string) error {
	_, err := s.db.Exec(`DELETE FROM files WHERE file_path = ? OR file_path LIKE ?`, prefix, prefix+string(filepath.Separator)+"%")
	if err != nil {
		return giserr.Wrap(giserr.Transient, "delete by prefix", err)
	}
	return nil
}

// LoadVector reads the (offset, length) span for record, retrying a bounded
// number of times on transient read errors (filesystem contention under
// concurrent blob appends).
func (s *Storage) LoadVector(record FileRecord) ([]float32, error) {
	if record.EmbeddingLength == 0 {
		return nil, giserr.New(giserr.NotFound, "record has no embedding")
	}

	var lastErr error
	for attempt := 0; attempt < vectorReadRetries; attempt++ {
		buf := make([]byte, record.EmbeddingLength)
		n, err := s.blob.ReadAt(buf, record.EmbeddingOffset)
		if err == nil && int64(n) == record.EmbeddingLength {
			return decodeVector(buf), nil
		}
		lastErr = err
		time.Sleep(vectorReadBackoff)
	}
	return nil, giserr.Wrap(giserr.Transient, "load vector after retries", lastErr)
}

// VectorPair bundles a record with its loaded vector.
type VectorPair struct {
	Record FileRecord
	Vector []float32
}

// BulkLoadAllVectors returns every (record, vector) pair with a stored
// embedding. Individual read failures are logged and skipped unless every
// single record fails to load, in which case the whole call errors.
func (s *Storage) BulkLoadAllVectors() ([]VectorPair, error) {
	records, err := s.ListAll()
	if err != nil {
		return nil, err
	}

	var out []VectorPair
	failures := 0
	withVector := 0
	for _, r := range records {
		if !r.HasVector() {
			continue
		}
		withVector++
		vec, err := s.LoadVector(r)
		if err != nil {
			s.log.Warn("skipping unreadable vector", "path", r.FilePath, "error", err)
			failures++
			continue
		}
		out = append(out, VectorPair{Record: r, Vector: vec})
	}

	if withVector > 0 && failures == withVector {
		return nil, giserr.New(giserr.Corrupt, "all embedding reads failed")
	}
	return out, nil
}

// ClearAll truncates the metadata table and empties the embeddings blob.
func (s *Storage) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM files`); err != nil {
		return giserr.Wrap(giserr.Transient, "clear metadata", err)
	}
	if err := s.blob.Truncate(0); err != nil {
		return giserr.Wrap(giserr.Transient, "truncate embeddings blob", err)
	}
	if _, err := s.blob.Seek(0, os.SEEK_SET); err != nil {
		return giserr.Wrap(giserr.Transient, "rewind embeddings blob", err)
	}
	return nil
}
