// Package cache provides byte-oriented caches for embeddings and answers.
//
// Per-call provider pricing makes repeated embedding and completion work
// the dominant cost of a RAG deployment; caching identical inputs is the
// cheapest optimization available. Two backends are provided: an
// in-process memory cache with TTL and LRU eviction, and a Redis cache
// for deployments with more than one replica.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is a byte-oriented key/value cache with per-entry TTL.
//
// Implementations must be safe for concurrent use. A miss is not an
// error: Get returns (nil, false, nil) when the key is absent or expired.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A zero TTL means the
	// implementation's default; a negative TTL is invalid.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}

// Key derives a deterministic cache key from a namespace and content.
//
// The content is hashed so arbitrarily large texts produce fixed-size
// keys, and the namespace keeps embeddings, answers, and documents from
// colliding:
//
//	key := cache.Key("embed", model+"\x00"+text)
func Key(namespace, content string) string {
	sum := sha256.Sum256([]byte(content))
	return namespace + ":" + hex.EncodeToString(sum[:])
}
