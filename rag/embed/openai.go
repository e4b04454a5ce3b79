package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the embedding model used when none is configured.
//
// text-embedding-3-small produces 1536-dimension vectors at roughly a
// fifth of ada-002's price with better retrieval quality.
const DefaultModel = "text-embedding-3-small"

// modelDimensions maps known OpenAI embedding models to their vector sizes.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder implements Embedder using OpenAI's embeddings API.
//
// The API accepts an array of inputs per request, so one call to Embed
// is one HTTP request regardless of batch size. Transient failures are
// retried with the same policy as the chat adapter.
type OpenAIEmbedder struct {
	modelName  string
	dimensions int
	client     embeddingClient
	maxRetries int
	retryDelay time.Duration
}

// embeddingClient defines the interface for the underlying API call.
// This allows for easy mocking in tests.
type embeddingClient interface {
	createEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// NewOpenAIEmbedder creates an OpenAI-backed Embedder.
//
// An empty modelName selects DefaultModel. Unknown model names default
// to 1536 dimensions.
func NewOpenAIEmbedder(apiKey, modelName string) *OpenAIEmbedder {
	if modelName == "" {
		modelName = DefaultModel
	}
	dims, ok := modelDimensions[modelName]
	if !ok {
		dims = 1536
	}
	return &OpenAIEmbedder{
		modelName:  modelName,
		dimensions: dims,
		client:     &sdkEmbeddingClient{apiKey: apiKey},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		vectors, err := e.client.createEmbeddings(ctx, e.modelName, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(vectors))
			}
			return vectors, nil
		}

		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
		if attempt >= e.maxRetries {
			break
		}

		delay := e.retryDelay
		if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
			delay = e.retryDelay * time.Duration(attempt+1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("embeddings API failed after %d retries: %w", e.maxRetries, lastErr)
}

// Dimensions implements Embedder.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// ModelName implements Embedder.
func (e *OpenAIEmbedder) ModelName() string { return e.modelName }

// isTransient determines if an embedding error should trigger a retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msgLower := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "429", "timeout", "network", "connection", "temporary", "500", "502", "503"} {
		if strings.Contains(msgLower, pattern) {
			return true
		}
	}
	return false
}

// sdkEmbeddingClient wraps the official openai-go SDK.
type sdkEmbeddingClient struct {
	apiKey string
	client *openai.Client
}

func (c *sdkEmbeddingClient) createEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if c.apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if c.client == nil {
		client := openai.NewClient(option.WithAPIKey(c.apiKey))
		c.client = &client
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, err
	}

	// The API documents index-ordered data, but be explicit about it.
	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[idx] = vec
	}
	return vectors, nil
}
