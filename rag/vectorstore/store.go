// Package vectorstore provides pluggable vector storage and similarity search.
//
// Four backends are provided:
//   - MemoryStore: process-local, for tests and ephemeral indexes.
//   - SQLiteStore: single-file local database, the zero-cost default.
//   - MySQLStore: shared relational backend for small multi-replica setups.
//   - WeaviateStore: a managed vector database for large corpora.
//
// The SQLite and MySQL backends score vectors with a brute-force cosine
// scan. That is exact (no recall loss) and entirely adequate up to tens
// of thousands of chunks, which covers a single Drive folder plus web
// captures without paying for a dedicated vector service.
package vectorstore

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested item does not exist in the store.
var ErrNotFound = errors.New("item not found")

// ErrDimension indicates a vector's dimensionality conflicts with the
// store's configured dimension.
var ErrDimension = errors.New("vector dimension mismatch")

// Item is a stored vector with its identifying metadata.
type Item struct {
	// ID uniquely identifies the item. Upserting an existing ID
	// replaces the stored vector and metadata.
	ID string

	// Vector is the embedding. All items in a store share one
	// dimensionality.
	Vector []float32

	// Meta carries retrieval metadata (document name, source).
	Meta map[string]string
}

// Match is a single similarity search hit.
type Match struct {
	// ID of the matched item.
	ID string

	// Score is cosine similarity in [-1, 1]; higher is more similar.
	Score float64

	// Meta is the metadata stored with the item.
	Meta map[string]string
}

// Store is the interface all vector backends implement.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert inserts or replaces items by ID.
	Upsert(ctx context.Context, items []Item) error

	// Query returns up to topK items most similar to vec, ordered by
	// descending score. An empty store returns an empty slice, not an
	// error.
	Query(ctx context.Context, vec []float32, topK int) ([]Match, error)

	// Delete removes items by ID. Absent IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
