package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// SQLiteIndex implements VectorIndex on a single SQLite table. Vectors are
// stored as little-endian float32 blobs and ranked in Go.
type SQLiteIndex struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteIndex opens (creating if needed) the index at dbPath and applies
// migrations. Use ":memory:" for a throwaway index.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create index directory: %w", err)
			}
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteIndex{db: db, path: dbPath}, nil
}

// Path returns the database path the index was opened with
func (s *SQLiteIndex) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteIndex) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, rolling back on error
func (s *SQLiteIndex) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) upsertEntryWithQuerier(ctx context.Context, q querier, e Entry, now time.Time) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", e.ChunkID, err)
	}

	query := `
		INSERT INTO chunks (chunk_id, article_id, session_id, category, text, metadata, vector, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			article_id = excluded.article_id,
			session_id = excluded.session_id,
			category = excluded.category,
			text = excluded.text,
			metadata = excluded.metadata,
			vector = excluded.vector,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		e.ChunkID, e.Metadata.ArticleID, e.Metadata.SessionID, e.Metadata.Category,
		e.Text, string(metadata), serializeVector(e.Vector), len(e.Vector), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", e.ChunkID, err)
	}
	return nil
}

// Add stores a single entry, overwriting any entry with the same chunk id
func (s *SQLiteIndex) Add(ctx context.Context, chunkID string, vector []float32, metadata types.ChunkMetadata, text string) error {
	return s.AddBatch(ctx, []Entry{{ChunkID: chunkID, Vector: vector, Metadata: metadata, Text: text}})
}

// AddBatch stores all entries in one transaction. Either every entry is
// written or none is.
func (s *SQLiteIndex) AddBatch(ctx context.Context, entries []Entry) error {
	if s.closed.Load() {
		return types.NewIndexError("add", ErrClosed)
	}
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return types.NewIndexError("add", err)
		}
	}

	now := time.Now()
	err := s.withTx(ctx, func(q querier) error {
		for _, e := range entries {
			if err := s.upsertEntryWithQuerier(ctx, q, e, now); err != nil {
				return err
			}
		}
		return nil
	})
	return types.NewIndexError("add", err)
}

// applyFilter appends WHERE conditions for filter
func applyFilter(query string, args []interface{}, filter *Filter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	return query, args
}

// Query returns the k entries nearest to vector by cosine distance. Entries
// of a different dimension are never candidates.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if s.closed.Load() {
		return nil, types.NewIndexError("query", ErrClosed)
	}
	if k <= 0 {
		return []Match{}, nil
	}
	if len(vector) == 0 {
		return nil, types.NewIndexError("query", ErrEmptyVector)
	}

	query := `SELECT chunk_id, text, metadata, vector FROM chunks WHERE dimension = ?`
	args := []interface{}{len(vector)}
	query, args = applyFilter(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.NewIndexError("query", fmt.Errorf("failed to query chunks: %w", err))
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]candidate, 0, 256)
	for rows.Next() {
		var (
			c          candidate
			rawMeta    string
			vectorBlob []byte
		)
		if err := rows.Scan(&c.chunkID, &c.text, &rawMeta, &vectorBlob); err != nil {
			return nil, types.NewIndexError("query", fmt.Errorf("failed to scan chunk: %w", err))
		}
		if err := json.Unmarshal([]byte(rawMeta), &c.metadata); err != nil {
			return nil, types.NewIndexError("query", fmt.Errorf("failed to decode metadata for %s: %w", c.chunkID, err))
		}
		stored := deserializeVector(vectorBlob)
		if len(stored) != len(vector) {
			continue
		}
		c.distance = cosineDistance(vector, stored)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewIndexError("query", err)
	}

	return topMatches(candidates, k), nil
}

// Count returns the number of entries that pass filter
func (s *SQLiteIndex) Count(ctx context.Context, filter *Filter) (int, error) {
	if s.closed.Load() {
		return 0, types.NewIndexError("count", ErrClosed)
	}
	query, args := applyFilter(`SELECT COUNT(*) FROM chunks WHERE 1 = 1`, nil, filter)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, types.NewIndexError("count", fmt.Errorf("failed to count chunks: %w", err))
	}
	return count, nil
}

// SchemaVersion returns the applied schema version, or "" before any
// migration ran.
func (s *SQLiteIndex) SchemaVersion(ctx context.Context) (string, error) {
	v, err := appliedVersion(ctx, s.db)
	if err != nil {
		return "", types.NewIndexError("schema_version", err)
	}
	if v.Equal(zeroVersion) {
		return "", nil
	}
	return v.Original(), nil
}
