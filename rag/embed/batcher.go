package embed

import (
	"context"
)

// Default batching limits. The token budget is conservative against the
// API's per-request input cap; the item limit keeps individual requests
// from growing unboundedly when texts are tiny.
const (
	DefaultBatchItems  = 64
	DefaultBatchTokens = 8000
)

// Batcher wraps an Embedder and splits large inputs into multiple
// underlying calls bounded by item count and an approximate token budget.
//
// Sending many texts per request instead of one request per text is the
// single largest embedding cost and latency saving available: provider
// billing is per token, but each request carries fixed overhead and
// counts against request-rate limits.
//
// Output order matches input order across batch boundaries. A text whose
// estimated tokens exceed the budget on its own is sent as a batch of one
// rather than rejected.
type Batcher struct {
	inner     Embedder
	maxItems  int
	maxTokens int
}

// NewBatcher creates a Batcher around inner.
//
// Zero or negative limits select DefaultBatchItems / DefaultBatchTokens.
func NewBatcher(inner Embedder, maxItems, maxTokens int) *Batcher {
	if maxItems <= 0 {
		maxItems = DefaultBatchItems
	}
	if maxTokens <= 0 {
		maxTokens = DefaultBatchTokens
	}
	return &Batcher{inner: inner, maxItems: maxItems, maxTokens: maxTokens}
}

// Embed implements Embedder.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, 0, len(texts))

	start := 0
	tokens := 0
	for i, text := range texts {
		t := EstimateTokens(text)
		full := i-start >= b.maxItems || (i > start && tokens+t > b.maxTokens)
		if full {
			vectors, err := b.inner.Embed(ctx, texts[start:i])
			if err != nil {
				return nil, err
			}
			out = append(out, vectors...)
			start = i
			tokens = 0
		}
		tokens += t
	}

	vectors, err := b.inner.Embed(ctx, texts[start:])
	if err != nil {
		return nil, err
	}
	out = append(out, vectors...)

	return out, nil
}

// Dimensions implements Embedder.
func (b *Batcher) Dimensions() int { return b.inner.Dimensions() }

// ModelName implements Embedder.
func (b *Batcher) ModelName() string { return b.inner.ModelName() }

// EstimateTokens approximates the token count of a text.
//
// Uses the rough 4-characters-per-token heuristic for English prose.
// Always at least 1 so empty strings still consume budget.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
