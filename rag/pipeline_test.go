package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/zero1hq/rag-assistant/rag/cache"
	"github.com/zero1hq/rag-assistant/rag/embed"
	"github.com/zero1hq/rag-assistant/rag/ingest"
	"github.com/zero1hq/rag-assistant/rag/model"
	"github.com/zero1hq/rag-assistant/rag/search"
	"github.com/zero1hq/rag-assistant/rag/vectorstore"
)

// mockLoader implements DocumentLoader.
type mockLoader struct {
	docs     []ingest.Document
	warnings []string
	err      error
}

func (m *mockLoader) Load(_ context.Context, _ string) ([]ingest.Document, []string, error) {
	return m.docs, m.warnings, m.err
}

// mockSearcher implements search.Searcher.
type mockSearcher struct {
	results []search.Result
	err     error
}

func (m *mockSearcher) Search(_ context.Context, _ string, topK int) ([]search.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.results) > topK {
		return m.results[:topK], nil
	}
	return m.results, nil
}

// mockFetcher implements PageFetcher.
type mockFetcher struct {
	pages map[string]ingest.Document
	errs  map[string]error
}

func (m *mockFetcher) Fetch(_ context.Context, url string) (ingest.Document, error) {
	if err := m.errs[url]; err != nil {
		return ingest.Document{}, err
	}
	doc, ok := m.pages[url]
	if !ok {
		return ingest.Document{}, fmt.Errorf("no page for %q", url)
	}
	return doc, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAssistant(t *testing.T, chat *model.MockChatModel, opts ...Option) (*Assistant, *vectorstore.MemoryStore) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	assistant, err := NewAssistant(chat, &embed.MockEmbedder{Dim: 8}, store, opts...)
	if err != nil {
		t.Fatalf("NewAssistant failed: %v", err)
	}
	return assistant, store
}

func TestNewAssistantValidation(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	emb := &embed.MockEmbedder{}
	chat := &model.MockChatModel{}

	if _, err := NewAssistant(nil, emb, store); err == nil {
		t.Error("expected error for nil chat model")
	}
	if _, err := NewAssistant(chat, nil, store); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewAssistant(chat, emb, nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestAssistantAsk(t *testing.T) {
	ctx := context.Background()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "Retention is the focus."}}}
	assistant, _ := newTestAssistant(t, chat, WithDriveLoader(&mockLoader{docs: []ingest.Document{
		{ID: "doc-1", Name: "Strategy", Source: "drive", Content: "Our plan is to grow retention."},
	}}))

	if _, err := assistant.IndexDrive(ctx, "folder"); err != nil {
		t.Fatalf("IndexDrive failed: %v", err)
	}

	answer, err := assistant.Ask(ctx, "What is the plan?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer.Text != "Retention is the focus." {
		t.Errorf("unexpected answer: %q", answer.Text)
	}
	if answer.FromCache {
		t.Error("first answer must not come from cache")
	}
	if len(answer.Sources) != 1 || answer.Sources[0] != "Strategy" {
		t.Errorf("unexpected sources: %v", answer.Sources)
	}

	// The retrieved passage must reach the model.
	if chat.CallCount() != 1 {
		t.Fatalf("expected 1 chat call, got %d", chat.CallCount())
	}
	prompt := chat.Calls[0][1].Content
	if !strings.Contains(prompt, "grow retention") {
		t.Errorf("retrieved context missing from prompt: %q", prompt)
	}
}

func TestAssistantAskEmptyIndex(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "I have no documents yet."}}}
	assistant, _ := newTestAssistant(t, chat)

	answer, err := assistant.Ask(context.Background(), "Anything?")
	if err != nil {
		t.Fatalf("Ask on empty index failed: %v", err)
	}
	if answer.Text == "" {
		t.Error("expected an answer even with an empty index")
	}
	if len(answer.Sources) != 0 {
		t.Errorf("expected no sources, got %v", answer.Sources)
	}
}

func TestAssistantAskValidation(t *testing.T) {
	assistant, _ := newTestAssistant(t, &model.MockChatModel{})

	if _, err := assistant.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
	if _, err := assistant.Ask(context.Background(), strings.Repeat("x", maxQuestionLength+1)); err == nil {
		t.Error("expected error for oversized question")
	}
}

func TestAssistantAskChatError(t *testing.T) {
	chat := &model.MockChatModel{Err: errors.New("rate limited")}
	assistant, _ := newTestAssistant(t, chat)

	if _, err := assistant.Ask(context.Background(), "question"); err == nil {
		t.Error("expected chat error to propagate")
	}
}

func TestAssistantAnswerCache(t *testing.T) {
	ctx := context.Background()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "cached answer"}}}
	assistant, _ := newTestAssistant(t, chat, WithAnswerCache(cache.NewMemoryCache(0, 0)))

	first, err := assistant.Ask(ctx, "repeat me")
	if err != nil {
		t.Fatalf("first Ask failed: %v", err)
	}
	if first.FromCache {
		t.Error("first answer must not be cached")
	}

	second, err := assistant.Ask(ctx, "repeat me")
	if err != nil {
		t.Fatalf("second Ask failed: %v", err)
	}
	if !second.FromCache {
		t.Error("second identical question must hit the answer cache")
	}
	if second.Text != first.Text {
		t.Errorf("cached answer differs: %q vs %q", second.Text, first.Text)
	}
	if chat.CallCount() != 1 {
		t.Errorf("expected exactly 1 model call, got %d", chat.CallCount())
	}
}

func TestIndexDriveSkipsEmptyDocuments(t *testing.T) {
	assistant, store := newTestAssistant(t, &model.MockChatModel{}, WithDriveLoader(&mockLoader{docs: []ingest.Document{
		{ID: "a", Name: "full", Content: "real content here"},
		{ID: "b", Name: "empty", Content: "   "},
	}}))

	report, err := assistant.IndexDrive(context.Background(), "folder")
	if err != nil {
		t.Fatalf("IndexDrive failed: %v", err)
	}
	if report.Indexed != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}

	count, _ := store.Count(context.Background())
	if count != report.Chunks {
		t.Errorf("store has %d items, report says %d chunks", count, report.Chunks)
	}
}

func TestIndexDriveReportsUnreadableFiles(t *testing.T) {
	assistant, _ := newTestAssistant(t, &model.MockChatModel{}, WithDriveLoader(&mockLoader{
		docs: []ingest.Document{
			{ID: "a", Name: "readable", Content: "real content here"},
		},
		warnings: []string{"locked.pdf: permission denied"},
	}))

	report, err := assistant.IndexDrive(context.Background(), "folder")
	if err != nil {
		t.Fatalf("IndexDrive failed: %v", err)
	}
	if report.Indexed != 1 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "locked.pdf") {
		t.Errorf("expected the unreadable file in report errors, got %v", report.Errors)
	}
}

func TestIndexDriveReindexOverwrites(t *testing.T) {
	ctx := context.Background()
	loader := &mockLoader{docs: []ingest.Document{{ID: "a", Name: "doc", Content: "version one"}}}
	assistant, store := newTestAssistant(t, &model.MockChatModel{}, WithDriveLoader(loader))

	if _, err := assistant.IndexDrive(ctx, "folder"); err != nil {
		t.Fatalf("first index failed: %v", err)
	}
	loader.docs[0].Content = "version two"
	if _, err := assistant.IndexDrive(ctx, "folder"); err != nil {
		t.Fatalf("second index failed: %v", err)
	}

	// Same chunk IDs, so the item count must not grow.
	count, _ := store.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 item after reindex, got %d", count)
	}
}

func TestIndexDriveNotConfigured(t *testing.T) {
	assistant, _ := newTestAssistant(t, &model.MockChatModel{})
	if _, err := assistant.IndexDrive(context.Background(), "folder"); err == nil {
		t.Error("expected error without a drive loader")
	}
}

func TestIndexDriveLoadError(t *testing.T) {
	assistant, _ := newTestAssistant(t, &model.MockChatModel{},
		WithDriveLoader(&mockLoader{err: errors.New("folder not found")}))
	if _, err := assistant.IndexDrive(context.Background(), "folder"); err == nil {
		t.Error("expected load error to propagate")
	}
}

func TestIndexWeb(t *testing.T) {
	searcher := &mockSearcher{results: []search.Result{
		{Title: "A", Link: "https://a"},
		{Title: "B", Link: "https://b"},
		{Title: "C", Link: "https://c"},
	}}
	fetcher := &mockFetcher{
		pages: map[string]ingest.Document{
			"https://a": {ID: "https://a", Name: "A", Source: "https://a", Content: "page a text"},
			"https://c": {ID: "https://c", Name: "C", Source: "https://c", Content: "page c text"},
		},
		errs: map[string]error{"https://b": errors.New("timeout")},
	}

	assistant, store := newTestAssistant(t, &model.MockChatModel{},
		WithSearcher(searcher), WithPageFetcher(fetcher))

	report, err := assistant.IndexWeb(context.Background(), "fintech news", 0)
	if err != nil {
		t.Fatalf("IndexWeb failed: %v", err)
	}
	if report.Indexed != 2 {
		t.Errorf("expected 2 indexed pages, got %d", report.Indexed)
	}
	if report.Failed != 1 || len(report.Errors) != 1 {
		t.Errorf("expected 1 failed page, got %+v", report)
	}

	count, _ := store.Count(context.Background())
	if count == 0 {
		t.Error("expected chunks in the store")
	}
}

func TestIndexWebValidation(t *testing.T) {
	assistant, _ := newTestAssistant(t, &model.MockChatModel{})
	if _, err := assistant.IndexWeb(context.Background(), "query", 0); err == nil {
		t.Error("expected error without a searcher")
	}

	assistant, _ = newTestAssistant(t, &model.MockChatModel{}, WithSearcher(&mockSearcher{}))
	if _, err := assistant.IndexWeb(context.Background(), "  ", 0); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestIndexWebRespectsWebTopK(t *testing.T) {
	searcher := &mockSearcher{results: []search.Result{
		{Link: "https://a"}, {Link: "https://b"}, {Link: "https://c"}, {Link: "https://d"},
	}}
	fetcher := &mockFetcher{pages: map[string]ingest.Document{
		"https://a": {ID: "https://a", Content: "a"},
		"https://b": {ID: "https://b", Content: "b"},
	}}

	assistant, _ := newTestAssistant(t, &model.MockChatModel{},
		WithSearcher(searcher), WithPageFetcher(fetcher), WithWebTopK(2))

	report, err := assistant.IndexWeb(context.Background(), "query", 0)
	if err != nil {
		t.Fatalf("IndexWeb failed: %v", err)
	}
	if report.Indexed+report.Failed != 2 {
		t.Errorf("expected only 2 pages processed, got %+v", report)
	}

	// An explicit topK overrides the configured default.
	report, err = assistant.IndexWeb(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("IndexWeb with explicit topK failed: %v", err)
	}
	if report.Indexed+report.Failed != 3 {
		t.Errorf("expected 3 pages processed with explicit topK, got %+v", report)
	}
}

func TestAskUsesTopK(t *testing.T) {
	ctx := context.Background()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "ok"}}}
	assistant, _ := newTestAssistant(t, chat,
		WithTopK(2),
		WithDriveLoader(&mockLoader{docs: []ingest.Document{
			{ID: "a", Name: "A", Content: "alpha"},
			{ID: "b", Name: "B", Content: "beta"},
			{ID: "c", Name: "C", Content: "gamma"},
		}}))

	if _, err := assistant.IndexDrive(ctx, "folder"); err != nil {
		t.Fatalf("IndexDrive failed: %v", err)
	}

	answer, err := assistant.Ask(ctx, "alpha")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if len(answer.Sources) > 2 {
		t.Errorf("expected at most 2 sources, got %v", answer.Sources)
	}
}
