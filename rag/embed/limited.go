package embed

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited wraps an Embedder with a client-side token-bucket rate limit
// on API calls.
//
// Provider-side 429 responses still cost a request and trigger backoff
// penalties; pacing requests locally keeps bulk indexing jobs inside the
// account's rate tier instead of bouncing off it.
type Limited struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewLimited creates a rate-limited Embedder allowing rps requests per
// second with the given burst. Non-positive values default to 5/5.
func NewLimited(inner Embedder, rps float64, burst int) *Limited {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return &Limited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed implements Embedder. It blocks until the limiter grants a slot
// or the context is cancelled.
func (l *Limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}
	return l.inner.Embed(ctx, texts)
}

// Dimensions implements Embedder.
func (l *Limited) Dimensions() int { return l.inner.Dimensions() }

// ModelName implements Embedder.
func (l *Limited) ModelName() string { return l.inner.ModelName() }
