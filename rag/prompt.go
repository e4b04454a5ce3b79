package rag

import (
	"strings"

	"github.com/zero1hq/rag-assistant/rag/model"
	"github.com/zero1hq/rag-assistant/rag/vectorstore"
)

// systemPrompt sets the assistant's persona for every chat call.
const systemPrompt = "You are a Zero1 strategy assistant."

// contextSeparator joins retrieved passages in the user prompt.
const contextSeparator = "\n\n---\n\n"

// buildContext renders retrieved matches into the context block sent
// to the model. Each passage is prefixed with its source label so the
// model can attribute claims.
func buildContext(matches []vectorstore.Match) string {
	passages := make([]string, 0, len(matches))
	for _, m := range matches {
		text := m.Meta["text"]
		if strings.TrimSpace(text) == "" {
			continue
		}
		label := m.Meta["name"]
		if label == "" {
			label = m.Meta["source"]
		}
		if label != "" {
			passages = append(passages, "source: "+label+"\n"+text)
		} else {
			passages = append(passages, text)
		}
	}
	return strings.Join(passages, contextSeparator)
}

// buildMessages assembles the chat request for a question and its
// retrieved context. An empty context block still produces a valid
// request; the model just answers without grounding.
func buildMessages(question, contextBlock string) []model.Message {
	var sb strings.Builder
	if contextBlock != "" {
		sb.WriteString("Use the following context to answer the question.\n\n")
		sb.WriteString(contextBlock)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)

	return []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: sb.String()},
	}
}

// sourceLabels extracts the distinct source labels from matches, in
// rank order.
func sourceLabels(matches []vectorstore.Match) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		label := m.Meta["name"]
		if label == "" {
			label = m.Meta["source"]
		}
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}
