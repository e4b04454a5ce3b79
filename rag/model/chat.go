// Package model provides LLM chat adapters for answer generation.
package model

import "context"

// ChatModel defines the interface for LLM chat providers.
//
// This interface abstracts the differences between providers (OpenAI,
// Anthropic, Google) behind a unified API so the answering pipeline can
// swap providers through configuration alone.
//
// Implementations should:
//   - Handle provider-specific authentication.
//   - Convert the standard Message format to the provider's wire format.
//   - Respect context cancellation and timeouts.
//   - Retry transient failures and surface permanent ones.
//
// Example usage:
//
//	m := openai.NewChatModel(apiKey, "gpt-4")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "You are a strategy assistant."},
//	    {Role: model.RoleUser, Content: "Summarize our capex position."},
//	})
type ChatModel interface {
	// Chat sends the conversation to the LLM and returns its reply.
	//
	// Returns ChatOut with the generated text and token usage, or an
	// error for authentication failures, invalid requests, exhausted
	// retries, or context cancellation.
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
//
// Messages follow the common chat format shared by OpenAI, Anthropic,
// and Google: an optional leading system message followed by alternating
// user and assistant turns.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	// RoleSystem sets behavior and context, typically the first message.
	RoleSystem = "system"

	// RoleUser carries the human question or input data.
	RoleUser = "user"

	// RoleAssistant carries a prior LLM response.
	RoleAssistant = "assistant"
)

// ChatOut represents the output of a chat completion.
type ChatOut struct {
	// Text is the generated response. Never empty on success.
	Text string

	// TokensUsed is the total token count reported by the provider,
	// or 0 when the provider does not report usage.
	TokensUsed int
}
