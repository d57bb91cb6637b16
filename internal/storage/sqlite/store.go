// Package sqlite provides an embedded SQLite implementation of storage.GraphStore.
// Vector similarity is computed in Go over little-endian float32 BLOBs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/rallygraph/internal/storage"
)

// Options configures a GraphStore.
type Options struct {
	// Dimension is the embedding dimension D of this deployment. Chunks with
	// a different length are rejected. Zero disables the check.
	Dimension int

	Logger *zap.Logger
}

// GraphStore implements storage.GraphStore using SQLite.
type GraphStore struct {
	db        *sql.DB
	dimension int
	logger    *zap.Logger
}

// NewGraphStore opens (creating if needed) the SQLite database at dsn and
// applies the schema. If the first open fails because of stale WAL files
// left by a crashed process, it verifies no other process holds them and
// retries once after removing them.
func NewGraphStore(dsn string, opts Options) (*GraphStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "sqlite"))

	store, err := openGraphStore(dsn, opts.Dimension, logger)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath, logger)

	store, retryErr := openGraphStore(dsn, opts.Dimension, logger)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	logger.Info("recovered from stale WAL files", zap.String("path", dbPath))
	return store, nil
}

func openGraphStore(dsn string, dimension int, logger *zap.Logger) (*GraphStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite supports one writer; a single connection serialises access and
	// keeps an in-memory database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &GraphStore{db: db, dimension: dimension, logger: logger}, nil
}

// Ping verifies the database connection.
func (s *GraphStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// EmbeddingDimensions returns the distinct dimensions of stored chunk embeddings.
func (s *GraphStore) EmbeddingDimensions(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT dimension FROM chunks WHERE embedding IS NOT NULL ORDER BY dimension`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read embedding dimensions: %w", err)
	}
	defer rows.Close()

	var dims []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan dimension: %w", err)
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}

// Close releases the database connection.
func (s *GraphStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths and file: URIs. Returns "" for in-memory databases.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError matches the errors stale WAL files produce after a
// crash (SIGKILL, OOM).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist for dbPath and no process
// holds them open. Without lsof it conservatively reports false.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits 1 when nothing holds the files.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string, logger *zap.Logger) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove stale WAL file", zap.String("path", path), zap.Error(err))
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var _ storage.GraphStore = (*GraphStore)(nil)
