package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps the whole index in a single-file database, which makes it
// the zero-infrastructure default: no managed vector service, no
// server process, nothing to pay for. Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments on free or hobby tiers
//   - Corpora up to tens of thousands of chunks
//
// Vectors are stored as little-endian float32 BLOBs and scored with an
// exact cosine scan in Go. WAL mode keeps concurrent reads cheap.
//
// Schema:
//   - vectors: id, embedding BLOB, dim, meta JSON
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location; ":memory:"
// creates an in-memory database whose contents are lost on close.
//
// The store automatically creates the schema, enables WAL mode, and
// sets a 5 second busy timeout.
//
// Example:
//
//	store, err := vectorstore.NewSQLiteStore("./index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// createTables creates the schema if it doesn't exist.
func (s *SQLiteStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS vectors (
			id TEXT NOT NULL PRIMARY KEY,
			embedding BLOB NOT NULL,
			dim INTEGER NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create vectors table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_vectors_dim ON vectors(dim)"); err != nil {
		return fmt.Errorf("failed to create idx_vectors_dim: %w", err)
	}
	return nil
}

// Upsert implements Store.
//
// Items are written in a single transaction so a batch either lands
// completely or not at all.
func (s *SQLiteStore) Upsert(ctx context.Context, items []Item) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	dim, err := s.storedDim(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO vectors (id, embedding, dim, meta)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding = excluded.embedding,
			dim = excluded.dim,
			meta = excluded.meta,
			updated_at = CURRENT_TIMESTAMP
	`

	for _, item := range items {
		if item.ID == "" {
			err = fmt.Errorf("item with empty ID")
			return err
		}
		if dim == 0 {
			dim = len(item.Vector)
		}
		if len(item.Vector) != dim {
			err = fmt.Errorf("%w: store has %d, item %q has %d", ErrDimension, dim, item.ID, len(item.Vector))
			return err
		}

		var metaJSON []byte
		metaJSON, err = json.Marshal(item.Meta)
		if err != nil {
			err = fmt.Errorf("failed to marshal meta for %q: %w", item.ID, err)
			return err
		}

		if _, err = tx.ExecContext(ctx, query, item.ID, encodeVector(item.Vector), dim, string(metaJSON)); err != nil {
			err = fmt.Errorf("failed to upsert %q: %w", item.ID, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Query implements Store.
//
// Scans every row, decoding and scoring in Go. Exact results, no index
// structure to maintain.
func (s *SQLiteStore) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Match{}, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, embedding, dim, meta FROM vectors")
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	collector := newTopKCollector(topK)
	for rows.Next() {
		var (
			id       string
			blob     []byte
			dim      int
			metaJSON string
		)
		if err := rows.Scan(&id, &blob, &dim, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		if dim != len(vec) {
			return nil, fmt.Errorf("%w: store has %d, query has %d", ErrDimension, dim, len(vec))
		}

		stored, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt vector %q: %w", id, err)
		}

		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("corrupt meta for %q: %w", id, err)
		}

		collector.add(Match{ID: id, Score: Cosine(vec, stored), Meta: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector rows: %w", err)
	}

	return collector.results(), nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := ""
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}

	// #nosec G201 -- placeholders are "?" marks, not user input
	query := fmt.Sprintf("DELETE FROM vectors WHERE id IN (%s)", placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return count, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// storedDim returns the dimensionality of existing rows, 0 when empty.
func (s *SQLiteStore) storedDim(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, "SELECT dim FROM vectors LIMIT 1").Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stored dimension: %w", err)
	}
	return dim, nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
