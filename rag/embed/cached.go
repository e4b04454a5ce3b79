package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/zero1hq/rag-assistant/rag/cache"
)

// Cached wraps an Embedder with a cache keyed by model name and text
// content. Only cache misses are forwarded to the inner Embedder, in a
// single call, and results are merged back into input order.
//
// Re-indexing a mostly unchanged corpus hits the cache for every
// unchanged chunk, so only new or edited text reaches the provider.
type Cached struct {
	inner Embedder
	store cache.Cache
	ttl   time.Duration

	// hit and miss are invoked per text for metrics; may be nil.
	onHit  func()
	onMiss func()
}

// NewCached creates a caching Embedder.
//
// ttl controls how long embeddings stay cached; zero means the cache
// backend's default. Entries are content-addressed with the model name
// in the key, so long TTLs are safe: a model change produces new keys.
func NewCached(inner Embedder, store cache.Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, store: store, ttl: ttl}
}

// OnHit registers a callback invoked once per cache hit.
func (c *Cached) OnHit(fn func()) { c.onHit = fn }

// OnMiss registers a callback invoked once per cache miss.
func (c *Cached) OnMiss(fn func()) { c.onMiss = fn }

// Embed implements Embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := c.key(text)
		data, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("embedding cache get failed: %w", err)
		}
		if ok {
			vec, err := decodeVector(data)
			if err == nil && len(vec) == c.inner.Dimensions() {
				out[i] = vec
				if c.onHit != nil {
					c.onHit()
				}
				continue
			}
			// Corrupt or stale-dimension entry: treat as a miss.
			_ = c.store.Delete(ctx, key)
		}
		if c.onMiss != nil {
			c.onMiss()
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vectors, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vectors {
			out[missIdx[j]] = vec
			// Cache write failures only cost a future recompute.
			_ = c.store.Set(ctx, c.key(missTexts[j]), encodeVector(vec), c.ttl)
		}
	}

	return out, nil
}

// Dimensions implements Embedder.
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// ModelName implements Embedder.
func (c *Cached) ModelName() string { return c.inner.ModelName() }

func (c *Cached) key(text string) string {
	return cache.Key("embed", c.inner.ModelName()+"\x00"+text)
}

// encodeVector packs a vector as little-endian float32 bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks little-endian float32 bytes.
func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector payload length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
