// Package embed provides text embedding generation for similarity search.
//
// The package centers on the Embedder interface and a set of composable
// decorators implementing the cost controls a production deployment
// needs: request batching (Batcher), result caching (Cached), and
// client-side rate limiting (Limited). A typical wiring stacks all
// three around a provider backend, with the limiter innermost so each
// batch the batcher issues pays a token:
//
//	base := embed.NewOpenAIEmbedder(apiKey, "")
//	e := embed.NewCached(embed.NewBatcher(embed.NewLimited(base, 5, 5), 0, 0), store, ttl)
package embed

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyInput indicates Embed was called with no texts.
var ErrEmptyInput = errors.New("no input texts to embed")

// Embedder generates vector embeddings from text.
//
// Implementations must return exactly one vector per input text, in
// input order, all with Dimensions() elements.
type Embedder interface {
	// Embed returns one embedding vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 1536).
	Dimensions() int

	// ModelName returns the name of the embedding model in use.
	ModelName() string
}

// MockEmbedder is a test implementation of Embedder.
//
// By default it derives a deterministic vector from each text so tests
// can assert stable similarity orderings without a provider.
type MockEmbedder struct {
	// Dim is the vector size to produce. Zero means 4.
	Dim int

	// Err, if set, is returned by Embed instead of vectors.
	Err error

	// Fn, if set, overrides the default deterministic vector derivation.
	Fn func(text string) []float32

	mu    sync.Mutex
	calls [][]string
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	m.mu.Lock()
	recorded := make([]string, len(texts))
	copy(recorded, texts)
	m.calls = append(m.calls, recorded)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.Fn != nil {
			out[i] = m.Fn(text)
			continue
		}
		out[i] = m.deterministic(text)
	}
	return out, nil
}

// deterministic hashes the text bytes into a small repeatable vector.
func (m *MockEmbedder) deterministic(text string) []float32 {
	dim := m.Dimensions()
	vec := make([]float32, dim)
	for i, b := range []byte(text) {
		vec[i%dim] += float32(b) / 255
	}
	return vec
}

// Dimensions implements Embedder.
func (m *MockEmbedder) Dimensions() int {
	if m.Dim <= 0 {
		return 4
	}
	return m.Dim
}

// ModelName implements Embedder.
func (m *MockEmbedder) ModelName() string { return "mock" }

// Calls returns a copy of all recorded Embed invocations.
func (m *MockEmbedder) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.calls))
	copy(out, m.calls)
	return out
}
