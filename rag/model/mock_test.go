package model

import (
	"context"
	"errors"
	"testing"
)

func TestMockChatModel_ResponseSequence(t *testing.T) {
	ctx := context.Background()
	mock := &MockChatModel{
		Responses: []ChatOut{
			{Text: "first"},
			{Text: "second"},
		},
	}

	msgs := []Message{{Role: RoleUser, Content: "hello"}}

	out, err := mock.Chat(ctx, msgs)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if out.Text != "first" {
		t.Errorf("expected 'first', got %q", out.Text)
	}

	out, _ = mock.Chat(ctx, msgs)
	if out.Text != "second" {
		t.Errorf("expected 'second', got %q", out.Text)
	}

	// Exhausted responses repeat the last one.
	out, _ = mock.Chat(ctx, msgs)
	if out.Text != "second" {
		t.Errorf("expected repeated 'second', got %q", out.Text)
	}

	if mock.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", mock.CallCount())
	}
}

func TestMockChatModel_ErrorInjection(t *testing.T) {
	injected := errors.New("API error")
	mock := &MockChatModel{Err: injected}

	_, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if !errors.Is(err, injected) {
		t.Errorf("expected injected error, got %v", err)
	}

	// The failed call is still recorded.
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 recorded call, got %d", mock.CallCount())
	}
}

func TestMockChatModel_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := &MockChatModel{Responses: []ChatOut{{Text: "never"}}}
	_, err := mock.Chat(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if mock.CallCount() != 0 {
		t.Errorf("cancelled call should not be recorded, got %d", mock.CallCount())
	}
}

func TestMockChatModel_Reset(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "a"}, {Text: "b"}}}
	ctx := context.Background()

	_, _ = mock.Chat(ctx, nil)
	_, _ = mock.Chat(ctx, nil)
	mock.Reset()

	if mock.CallCount() != 0 {
		t.Errorf("expected 0 calls after Reset, got %d", mock.CallCount())
	}

	out, _ := mock.Chat(ctx, nil)
	if out.Text != "a" {
		t.Errorf("expected sequence restart with 'a', got %q", out.Text)
	}
}
