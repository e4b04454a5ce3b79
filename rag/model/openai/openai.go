// Package openai provides a ChatModel backed by OpenAI's chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/zero1hq/rag-assistant/rag/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4"

// ChatModel implements model.ChatModel for OpenAI's API.
//
// Provides access to GPT models with:
//   - Automatic retry logic for transient errors
//   - Rate limit handling with growing backoff
//   - Context cancellation
//
// Example usage:
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "What drives our burn rate?"},
//	})
type ChatModel struct {
	modelName   string
	temperature float64
	client      completionClient
	maxRetries  int
	retryDelay  time.Duration
}

// completionClient defines the interface for the underlying API call.
// This allows for easy mocking in tests.
type completionClient interface {
	createChatCompletion(ctx context.Context, messages []model.Message) (model.ChatOut, error)
}

// Option customizes a ChatModel.
type Option func(*ChatModel)

// WithTemperature sets the sampling temperature for completions.
func WithTemperature(t float64) Option {
	return func(m *ChatModel) { m.temperature = t }
}

// WithMaxRetries overrides the default retry count for transient errors.
func WithMaxRetries(n int) Option {
	return func(m *ChatModel) { m.maxRetries = n }
}

// NewChatModel creates a new OpenAI ChatModel.
//
// Parameters:
//   - apiKey: OpenAI API key
//   - modelName: model to use (e.g. "gpt-4", "gpt-4o-mini"). Empty uses DefaultModel.
//
// Returns a ChatModel configured with 3 retry attempts, a 1 second base
// delay, and linearly growing backoff for rate limits.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}

	m := &ChatModel{
		modelName:   modelName,
		temperature: 0.7,
		maxRetries:  3,
		retryDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.client = &sdkClient{apiKey: apiKey, modelName: modelName, temperature: m.temperature}
	return m
}

// Chat implements the model.ChatModel interface.
//
// Sends messages to OpenAI's API and returns the response, retrying on
// transient errors (network issues, rate limits, 5xx).
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.client.createChatCompletion(ctx, messages)
		if err == nil {
			return out, nil
		}

		lastErr = err

		if !isTransientError(err) {
			return model.ChatOut{}, err
		}
		if attempt >= m.maxRetries {
			break
		}

		// Rate limits back off harder than plain network blips.
		delay := m.retryDelay
		if isRateLimitError(err) {
			delay = m.retryDelay * time.Duration(attempt+1)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}

	return model.ChatOut{}, fmt.Errorf("OpenAI API failed after %d retries: %w", m.maxRetries, lastErr)
}

// isTransientError determines if an error should trigger a retry.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msgLower := strings.ToLower(err.Error())
	transientPatterns := []string{
		"rate limit",
		"429",
		"timeout",
		"network",
		"connection",
		"temporary",
		"503",
		"502",
		"500",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msgLower, pattern) {
			return true
		}
	}
	return false
}

// isRateLimitError checks if the error indicates rate limiting.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msgLower := strings.ToLower(err.Error())
	return strings.Contains(msgLower, "rate limit") ||
		strings.Contains(msgLower, "429") ||
		strings.Contains(msgLower, "too many requests")
}

// sdkClient wraps the official openai-go SDK.
type sdkClient struct {
	apiKey      string
	modelName   string
	temperature float64

	client *openai.Client
}

func (c *sdkClient) createChatCompletion(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("OpenAI API key is required")
	}
	if c.client == nil {
		client := openai.NewClient(option.WithAPIKey(c.apiKey))
		c.client = &client
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.modelName),
		Messages:    convertMessages(messages),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return model.ChatOut{}, err
	}

	if len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("no response from OpenAI API")
	}

	return model.ChatOut{
		Text:       completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}

// convertMessages maps the standard message format to SDK params.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		case model.RoleAssistant:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		default:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		}
	}
	return params
}
