package cache

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cryguy/qjs/internal/core"
	"go.uber.org/zap"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS bytecode (
	key        TEXT PRIMARY KEY,
	code       BLOB NOT NULL,
	size       INTEGER NOT NULL,
	hits       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	used_at    INTEGER NOT NULL
)`

// SQLiteStore keeps brotli-compressed bytecode in a SQLite database so the
// cache survives restarts and can be shared by processes.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

var _ core.BytecodeStore = (*SQLiteStore)(nil)

// OpenSQLiteStore opens or creates the database at path. ":memory:" gives
// a private in-memory store.
func OpenSQLiteStore(path string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening bytecode cache %q: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		_, _ = db.Exec("PRAGMA journal_mode=WAL")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bytecode table: %w", err)
	}
	return &SQLiteStore{db: db, log: log.Named("cache"), now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT code FROM bytecode WHERE key = ?", key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading bytecode: %w", err)
	}
	code, err := decompress(blob)
	if err != nil {
		s.log.Warn("dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		_ = s.Delete(key)
		return nil, false, nil
	}
	if _, err := s.db.Exec("UPDATE bytecode SET hits = hits + 1, used_at = ? WHERE key = ?", s.now().UnixMilli(), key); err != nil {
		s.log.Debug("updating hit count", zap.Error(err))
	}
	return code, true, nil
}

func (s *SQLiteStore) Put(key string, code []byte) error {
	blob, err := compress(code)
	if err != nil {
		return err
	}
	now := s.now().UnixMilli()
	_, err = s.db.Exec(`INSERT INTO bytecode (key, code, size, hits, created_at, used_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET code = excluded.code, size = excluded.size, used_at = excluded.used_at`,
		key, blob, len(code), now, now)
	if err != nil {
		return fmt.Errorf("storing bytecode: %w", err)
	}
	s.log.Debug("stored bytecode", zap.String("key", key), zap.Int("size", len(code)), zap.Int("compressed", len(blob)))
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM bytecode WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting bytecode: %w", err)
	}
	return nil
}

// Prune removes entries not used within maxAge and reports how many were
// removed.
func (s *SQLiteStore) Prune(maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixMilli()
	res, err := s.db.Exec("DELETE FROM bytecode WHERE used_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning bytecode cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("pruned bytecode cache", zap.Int64("removed", n))
	}
	return n, nil
}

// Stats summarises the store.
type Stats struct {
	Entries int64
	Hits    int64
	Bytes   int64 // uncompressed
}

// Stats reports entry count, total hits and total bytecode size.
func (s *SQLiteStore) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(hits), 0), COALESCE(SUM(size), 0) FROM bytecode").
		Scan(&st.Entries, &st.Hits, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	return st, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compressing bytecode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing bytecode: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(blob []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(blob)))
}
