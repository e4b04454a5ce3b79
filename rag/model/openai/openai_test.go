package openai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zero1hq/rag-assistant/rag/model"
)

// mockCompletionClient is a configurable fake for the completion API.
type mockCompletionClient struct {
	response  string
	errs      []error
	callCount int
}

func (m *mockCompletionClient) createChatCompletion(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	idx := m.callCount
	m.callCount++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return model.ChatOut{}, m.errs[idx]
	}
	return model.ChatOut{Text: m.response, TokensUsed: 42}, nil
}

func TestChatModel_Construction(t *testing.T) {
	t.Run("creates model with API key", func(t *testing.T) {
		m := NewChatModel("test-api-key", "gpt-4")
		if m == nil {
			t.Fatal("expected non-nil model")
		}
	})

	t.Run("empty model name uses default", func(t *testing.T) {
		m := NewChatModel("test-api-key", "")
		if m.modelName != DefaultModel {
			t.Errorf("expected default model %q, got %q", DefaultModel, m.modelName)
		}
	})

	t.Run("options apply", func(t *testing.T) {
		m := NewChatModel("k", "gpt-4", WithTemperature(0.2), WithMaxRetries(5))
		if m.temperature != 0.2 {
			t.Errorf("expected temperature 0.2, got %v", m.temperature)
		}
		if m.maxRetries != 5 {
			t.Errorf("expected maxRetries 5, got %d", m.maxRetries)
		}
	})
}

func TestChatModel_Chat(t *testing.T) {
	t.Run("sends messages and returns response", func(t *testing.T) {
		mockClient := &mockCompletionClient{response: "Hello! How can I help?"}
		m := &ChatModel{client: mockClient, modelName: "gpt-4", maxRetries: 3, retryDelay: time.Millisecond}

		out, err := m.Chat(context.Background(), []model.Message{
			{Role: model.RoleSystem, Content: "You are helpful."},
			{Role: model.RoleUser, Content: "Hi there!"},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Text != "Hello! How can I help?" {
			t.Errorf("unexpected text %q", out.Text)
		}
		if out.TokensUsed != 42 {
			t.Errorf("expected 42 tokens, got %d", out.TokensUsed)
		}
		if mockClient.callCount != 1 {
			t.Errorf("expected 1 API call, got %d", mockClient.callCount)
		}
	})

	t.Run("retries transient errors", func(t *testing.T) {
		mockClient := &mockCompletionClient{
			response: "recovered",
			errs:     []error{errors.New("connection reset"), errors.New("503 service unavailable")},
		}
		m := &ChatModel{client: mockClient, modelName: "gpt-4", maxRetries: 3, retryDelay: time.Millisecond}

		out, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "q"}})
		if err != nil {
			t.Fatalf("expected recovery, got %v", err)
		}
		if out.Text != "recovered" {
			t.Errorf("unexpected text %q", out.Text)
		}
		if mockClient.callCount != 3 {
			t.Errorf("expected 3 attempts, got %d", mockClient.callCount)
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		mockClient := &mockCompletionClient{
			errs: []error{errors.New("invalid api key")},
		}
		m := &ChatModel{client: mockClient, modelName: "gpt-4", maxRetries: 3, retryDelay: time.Millisecond}

		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "q"}})
		if err == nil {
			t.Fatal("expected error")
		}
		if mockClient.callCount != 1 {
			t.Errorf("permanent error should not retry, got %d attempts", mockClient.callCount)
		}
	})

	t.Run("exhausted retries wrap last error", func(t *testing.T) {
		mockClient := &mockCompletionClient{
			errs: []error{
				errors.New("timeout"), errors.New("timeout"),
				errors.New("timeout"), errors.New("timeout"),
			},
		}
		m := &ChatModel{client: mockClient, modelName: "gpt-4", maxRetries: 3, retryDelay: time.Millisecond}

		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "q"}})
		if err == nil {
			t.Fatal("expected error after exhausted retries")
		}
		if !strings.Contains(err.Error(), "after 3 retries") {
			t.Errorf("expected retry count in error, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		m := &ChatModel{client: &mockCompletionClient{}, modelName: "gpt-4", maxRetries: 3, retryDelay: time.Millisecond}
		_, err := m.Chat(ctx, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"429", errors.New("HTTP 429"), true},
		{"timeout", errors.New("request timeout"), true},
		{"server error", errors.New("502 bad gateway"), true},
		{"auth", errors.New("invalid api key"), false},
		{"quota", errors.New("insufficient_quota"), false},
		{"cancelled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
