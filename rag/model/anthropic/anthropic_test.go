package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/zero1hq/rag-assistant/rag/model"
)

type mockMessageClient struct {
	response     string
	err          error
	gotSystem    string
	gotMessages  []model.Message
	callCount    int
}

func (m *mockMessageClient) createMessage(ctx context.Context, systemPrompt string, messages []model.Message) (model.ChatOut, error) {
	m.callCount++
	m.gotSystem = systemPrompt
	m.gotMessages = messages
	if m.err != nil {
		return model.ChatOut{}, m.err
	}
	return model.ChatOut{Text: m.response}, nil
}

func TestChatModel_Construction(t *testing.T) {
	m := NewChatModel("test-key", "")
	if m.modelName != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, m.modelName)
	}
}

func TestChatModel_SystemPromptExtraction(t *testing.T) {
	mock := &mockMessageClient{response: "answer"}
	m := &ChatModel{modelName: "claude-3-5-sonnet-20241022", client: mock}

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "You are a strategy assistant."},
		{Role: model.RoleUser, Content: "question"},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if out.Text != "answer" {
		t.Errorf("unexpected text %q", out.Text)
	}
	if mock.gotSystem != "You are a strategy assistant." {
		t.Errorf("system prompt not extracted, got %q", mock.gotSystem)
	}
	if len(mock.gotMessages) != 1 || mock.gotMessages[0].Role != model.RoleUser {
		t.Errorf("expected only the user message to remain, got %v", mock.gotMessages)
	}
}

func TestExtractSystemPrompt_MultipleSystemMessages(t *testing.T) {
	system, conv := extractSystemPrompt([]model.Message{
		{Role: model.RoleSystem, Content: "first"},
		{Role: model.RoleUser, Content: "u1"},
		{Role: model.RoleSystem, Content: "second"},
		{Role: model.RoleAssistant, Content: "a1"},
	})

	if system != "first\n\nsecond" {
		t.Errorf("expected concatenated system prompt, got %q", system)
	}
	if len(conv) != 2 {
		t.Fatalf("expected 2 conversation messages, got %d", len(conv))
	}
	if conv[0].Content != "u1" || conv[1].Content != "a1" {
		t.Errorf("conversation order not preserved: %v", conv)
	}
}

func TestChatModel_PropagatesErrors(t *testing.T) {
	apiErr := errors.New("overloaded_error")
	m := &ChatModel{modelName: "m", client: &mockMessageClient{err: apiErr}}

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "q"}})
	if !errors.Is(err, apiErr) {
		t.Errorf("expected API error to propagate, got %v", err)
	}
}

func TestChatModel_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &mockMessageClient{response: "never"}
	m := &ChatModel{modelName: "m", client: mock}
	_, err := m.Chat(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if mock.callCount != 0 {
		t.Errorf("cancelled context must not reach the API, got %d calls", mock.callCount)
	}
}
