// Package google provides a ChatModel backed by Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zero1hq/rag-assistant/rag/model"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// The client is created lazily on first use so construction never needs
// a context or performs network work. Close releases the underlying
// gRPC connection.
type ChatModel struct {
	apiKey    string
	modelName string
	client    generateClient
}

// generateClient defines the interface for the underlying API call.
// This allows for easy mocking in tests.
type generateClient interface {
	generate(ctx context.Context, systemPrompt string, messages []model.Message) (model.ChatOut, error)
	close() error
}

// NewChatModel creates a new Gemini ChatModel.
//
// An empty modelName selects DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey, modelName: modelName},
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	// Gemini takes system instructions separately, like Anthropic.
	var systemPrompt string
	var conversation []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}

	return m.client.generate(ctx, systemPrompt, conversation)
}

// Close releases the underlying client connection.
func (m *ChatModel) Close() error {
	return m.client.close()
}

// sdkClient wraps the official generative-ai-go client.
type sdkClient struct {
	apiKey    string
	modelName string

	client *genai.Client
}

func (c *sdkClient) generate(ctx context.Context, systemPrompt string, messages []model.Message) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("Gemini API key is required")
	}
	if c.client == nil {
		client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
		if err != nil {
			return model.ChatOut{}, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		c.client = client
	}

	gm := c.client.GenerativeModel(c.modelName)
	if systemPrompt != "" {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	// All turns but the last seed the chat history; the last is the prompt.
	if len(messages) == 0 {
		return model.ChatOut{}, errors.New("no messages to send")
	}

	session := gm.StartChat()
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
	if err != nil {
		return model.ChatOut{}, err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ChatOut{}, errors.New("no candidates in Gemini response")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	if text == "" {
		return model.ChatOut{}, errors.New("no text content in Gemini response")
	}

	out := model.ChatOut{Text: text}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func (c *sdkClient) close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
