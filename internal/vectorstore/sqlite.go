package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	// IndexFileName is the name of the active index inside the store dir.
	IndexFileName = "index.db"
	tmpSuffix     = ".db.tmp"
)

// sidecarSuffixes are the files SQLite may leave next to a database that was
// not closed cleanly.
var sidecarSuffixes = []string{"-journal", "-wal", "-shm"}

const sqliteSchema = `
CREATE TABLE manifest (
	id   TEXT PRIMARY KEY,
	body TEXT NOT NULL
);
CREATE TABLE chunks (
	seq         INTEGER PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	unit_index  INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL,
	content     TEXT NOT NULL,
	metadata    TEXT NOT NULL,
	embedding   BLOB NOT NULL
);
`

// SQLiteStore keeps the index in a single SQLite file and serves queries
// from an in-memory snapshot. Rebuilds write a temporary file and rename it
// over the active one.
type SQLiteStore struct {
	dir      string
	mu       sync.Mutex
	snapshot atomic.Pointer[memorySnapshot]
}

// OpenSQLiteStore opens the store rooted at dir, loading an existing index
// if there is one. Leftover temporary files from interrupted builds are
// removed.
func OpenSQLiteStore(ctx context.Context, dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	s := &SQLiteStore{dir: dir}
	s.removeStaleTemps()

	snap, err := loadSQLiteIndex(ctx, s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to load index %s: %w", s.Path(), err)
	}
	s.snapshot.Store(snap)
	log.Printf("vectorstore: loaded index %s (%d chunks)", snap.manifest.ID, len(snap.chunks))
	return s, nil
}

// Path returns the active index file path.
func (s *SQLiteStore) Path() string {
	return filepath.Join(s.dir, IndexFileName)
}

func (s *SQLiteStore) Current(ctx context.Context) (Snapshot, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, nil
	}
	return snap, nil
}

func (s *SQLiteStore) Replace(ctx context.Context, manifest *domain.IndexManifest, chunks []domain.Chunk) error {
	if err := ValidateIndex(manifest, chunks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := filepath.Join(s.dir, "index-"+uuid.NewString()+tmpSuffix)
	if err := writeSQLiteIndex(ctx, tmp, manifest, chunks); err != nil {
		removeTemp(tmp)
		return err
	}
	if err := syncFile(tmp); err != nil {
		removeTemp(tmp)
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		removeTemp(tmp)
		return fmt.Errorf("failed to swap index file: %w", err)
	}
	_ = syncFile(s.dir)

	stored := make([]domain.Chunk, len(chunks))
	copy(stored, chunks)
	s.snapshot.Store(newMemorySnapshot(manifest, stored))
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove index file: %w", err)
	}
	s.snapshot.Store(nil)
	return nil
}

func (s *SQLiteStore) Close() error {
	return nil
}

func (s *SQLiteStore) removeStaleTemps() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && isTempName(e.Name()) {
			_ = os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
}

func isTempName(name string) bool {
	if !strings.HasPrefix(name, "index-") {
		return false
	}
	if strings.HasSuffix(name, tmpSuffix) {
		return true
	}
	for _, suffix := range sidecarSuffixes {
		if strings.HasSuffix(name, tmpSuffix+suffix) {
			return true
		}
	}
	return false
}

// removeTemp deletes a temporary index file and its sidecars.
func removeTemp(path string) {
	_ = os.Remove(path)
	for _, suffix := range sidecarSuffixes {
		_ = os.Remove(path + suffix)
	}
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func writeSQLiteIndex(ctx context.Context, path string, manifest *domain.IndexManifest, chunks []domain.Chunk) error {
	db, err := openSQLite(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create index schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	body, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO manifest (id, body) VALUES (?, ?)`, manifest.ID, string(body)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (seq, id, unit_index, chunk_index, chunk_count, content, metadata, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, i, c.ID, c.UnitIndex, c.ChunkIndex, c.ChunkCount, c.Content, string(meta), vectorToBlob(c.Embedding)); err != nil {
			return fmt.Errorf("failed to write chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func loadSQLiteIndex(ctx context.Context, path string) (*memorySnapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var body string
	if err := db.QueryRowContext(ctx, `SELECT body FROM manifest LIMIT 1`).Scan(&body); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest domain.IndexManifest
	if err := json.Unmarshal([]byte(body), &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, unit_index, chunk_index, chunk_count, content, metadata, embedding
		 FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0, manifest.ChunkCount)
	for rows.Next() {
		var (
			c    domain.Chunk
			meta string
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.UnitIndex, &c.ChunkIndex, &c.ChunkCount, &c.Content, &meta, &blob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
		}
		c.Embedding = blobToVector(blob)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := ValidateIndex(&manifest, chunks); err != nil {
		return nil, fmt.Errorf("index file is inconsistent: %w", err)
	}

	return newMemorySnapshot(&manifest, chunks), nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// vectorToBlob encodes a vector as little-endian float32s.
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func blobToVector(blob []byte) []float32 {
	count := len(blob) / 4
	vector := make([]float32, count)
	for i := 0; i < count; i++ {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}
