package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL implementation of Store.
//
// Useful when several replicas need a shared index but the corpus is
// still small enough for exact scanning, and a relational database is
// already provisioned. Same BLOB layout and scoring as SQLiteStore.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// Example DSN: "user:pass@tcp(127.0.0.1:3306)/ragdb"
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS vectors (
			id VARCHAR(512) NOT NULL PRIMARY KEY,
			embedding MEDIUMBLOB NOT NULL,
			dim INT NOT NULL,
			meta JSON NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create vectors table: %w", err)
	}
	return nil
}

// Upsert implements Store.
func (s *MySQLStore) Upsert(ctx context.Context, items []Item) error {
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
		ON DUPLICATE KEY UPDATE
			embedding = VALUES(embedding),
			dim = VALUES(dim),
			meta = VALUES(meta)
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
func (s *MySQLStore) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
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
func (s *MySQLStore) Delete(ctx context.Context, ids []string) error {
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
func (s *MySQLStore) Count(ctx context.Context) (int, error) {
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
func (s *MySQLStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection. Double-close is a no-op.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *MySQLStore) storedDim(ctx context.Context) (int, error) {
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

func (s *MySQLStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
