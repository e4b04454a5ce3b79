// Package rag implements the retrieval pipeline behind the assistant.
//
// The pipeline ties the other packages together:
//
//	ingest -> chunk -> embed -> vectorstore          (indexing)
//	embed -> vectorstore -> prompt -> model          (answering)
//
// An Assistant owns one chat model, one embedder, and one vector
// store, and exposes three operations: IndexDrive, IndexWeb, and Ask.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero1hq/rag-assistant/rag/cache"
	"github.com/zero1hq/rag-assistant/rag/embed"
	"github.com/zero1hq/rag-assistant/rag/ingest"
	"github.com/zero1hq/rag-assistant/rag/model"
	"github.com/zero1hq/rag-assistant/rag/search"
	"github.com/zero1hq/rag-assistant/rag/vectorstore"
)

// Defaults for retrieval and indexing behavior.
const (
	DefaultTopK       = 5
	DefaultWebTopK    = 3
	DefaultWorkers    = 4
	DefaultAnswerTTL  = 10 * time.Minute
	maxQuestionLength = 8192
)

// ErrEmptyQuestion is returned by Ask for blank input.
var ErrEmptyQuestion = fmt.Errorf("question is empty")

// DocumentLoader loads documents from a Google Drive folder. The
// warnings slice carries one entry per file that could not be read.
type DocumentLoader interface {
	Load(ctx context.Context, folderID string) ([]ingest.Document, []string, error)
}

// PageFetcher downloads a single web page as a document.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (ingest.Document, error)
}

// Answer is the result of one Ask call.
type Answer struct {
	// Text is the model's answer.
	Text string `json:"text"`

	// Sources lists the distinct source labels of the passages the
	// answer was grounded on, in rank order.
	Sources []string `json:"sources,omitempty"`

	// FromCache reports whether the answer was served from the answer
	// cache without calling the model.
	FromCache bool `json:"from_cache"`
}

// IndexReport summarizes one indexing run.
type IndexReport struct {
	// Indexed is the number of documents whose chunks were written.
	Indexed int `json:"indexed"`

	// Skipped counts documents with no usable text.
	Skipped int `json:"skipped"`

	// Failed counts documents that could not be processed.
	Failed int `json:"failed"`

	// Chunks is the total number of chunks written.
	Chunks int `json:"chunks"`

	// Errors holds one message per failed document.
	Errors []string `json:"errors,omitempty"`
}

// Assistant answers questions grounded on an indexed corpus.
//
// Construction wires the required collaborators; the optional ones
// (searcher, drive loader, caches, metrics) enable the corresponding
// features when set.
//
// Example:
//
//	assistant, err := rag.NewAssistant(chatModel, embedder, store,
//	    rag.WithSearcher(serp),
//	    rag.WithDriveLoader(drive),
//	    rag.WithAnswerCache(memCache),
//	)
//	answer, err := assistant.Ask(ctx, "What changed in the RBI guidelines?")
type Assistant struct {
	chat     model.ChatModel
	embedder embed.Embedder
	store    vectorstore.Store

	searcher search.Searcher
	drive    DocumentLoader
	web      PageFetcher
	answers  cache.Cache

	chunker   *Chunker
	topK      int
	webTopK   int
	workers   int
	answerTTL time.Duration

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithTopK sets how many passages are retrieved per question.
func WithTopK(k int) Option {
	return func(a *Assistant) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithWebTopK sets how many search results IndexWeb fetches.
func WithWebTopK(k int) Option {
	return func(a *Assistant) {
		if k > 0 {
			a.webTopK = k
		}
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *Chunker) Option {
	return func(a *Assistant) {
		if c != nil {
			a.chunker = c
		}
	}
}

// WithSearcher enables IndexWeb with the given search client.
func WithSearcher(s search.Searcher) Option {
	return func(a *Assistant) {
		a.searcher = s
	}
}

// WithDriveLoader enables IndexDrive with the given loader.
func WithDriveLoader(l DocumentLoader) Option {
	return func(a *Assistant) {
		a.drive = l
	}
}

// WithPageFetcher replaces the default web page fetcher.
func WithPageFetcher(f PageFetcher) Option {
	return func(a *Assistant) {
		a.web = f
	}
}

// WithAnswerCache enables answer caching. Identical questions within
// the TTL are served without a model call.
func WithAnswerCache(c cache.Cache) Option {
	return func(a *Assistant) {
		a.answers = c
	}
}

// WithAnswerTTL sets how long cached answers stay valid.
func WithAnswerTTL(ttl time.Duration) Option {
	return func(a *Assistant) {
		if ttl > 0 {
			a.answerTTL = ttl
		}
	}
}

// WithWorkers sets the number of concurrent page fetches in IndexWeb.
func WithWorkers(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(a *Assistant) {
		a.metrics = m
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assistant) {
		a.tracer = t
	}
}

// NewAssistant creates an Assistant. The chat model, embedder, and
// vector store are required.
func NewAssistant(chat model.ChatModel, embedder embed.Embedder, store vectorstore.Store, opts ...Option) (*Assistant, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}

	a := &Assistant{
		chat:      chat,
		embedder:  embedder,
		store:     store,
		web:       ingest.NewWebFetcher(nil),
		chunker:   NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		topK:      DefaultTopK,
		webTopK:   DefaultWebTopK,
		workers:   DefaultWorkers,
		answerTTL: DefaultAnswerTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Ask answers a question using the indexed corpus.
//
// The question is embedded, the top passages are retrieved, and the
// chat model answers with those passages as context. An empty index is
// not an error; the model answers without grounding and Sources is
// empty.
func (a *Assistant) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	if len(question) > maxQuestionLength {
		return Answer{}, fmt.Errorf("question exceeds %d characters", maxQuestionLength)
	}

	start := time.Now()
	ctx, span := startSpan(ctx, a.tracer, "rag.ask",
		attribute.Int("rag.top_k", a.topK),
	)
	var askErr error
	defer func() { endSpan(span, askErr) }()

	if cached, ok := a.cachedAnswer(ctx, question); ok {
		a.metrics.ObserveQuestion("success", "hit", time.Since(start))
		span.SetAttributes(attribute.Bool("rag.answer_cached", true))
		return cached, nil
	}

	embedStart := time.Now()
	vecs, err := a.embedder.Embed(ctx, []string{question})
	if err != nil {
		askErr = fmt.Errorf("failed to embed question: %w", err)
		a.metrics.ObserveQuestion("error", "miss", time.Since(start))
		return Answer{}, askErr
	}
	a.metrics.ObserveStage("embed", time.Since(embedStart))

	retrieveStart := time.Now()
	matches, err := a.store.Query(ctx, vecs[0], a.topK)
	if err != nil {
		askErr = fmt.Errorf("failed to query vector store: %w", err)
		a.metrics.ObserveQuestion("error", "miss", time.Since(start))
		return Answer{}, askErr
	}
	a.metrics.ObserveStage("retrieve", time.Since(retrieveStart))
	span.SetAttributes(attribute.Int("rag.matches", len(matches)))

	chatStart := time.Now()
	out, err := a.chat.Chat(ctx, buildMessages(question, buildContext(matches)))
	if err != nil {
		askErr = fmt.Errorf("chat completion failed: %w", err)
		a.metrics.ObserveQuestion("error", "miss", time.Since(start))
		return Answer{}, askErr
	}
	a.metrics.ObserveStage("chat", time.Since(chatStart))

	answer := Answer{Text: out.Text, Sources: sourceLabels(matches)}
	a.storeAnswer(ctx, question, answer)
	a.metrics.ObserveQuestion("success", "miss", time.Since(start))
	return answer, nil
}

// IndexDrive indexes every readable document in a Google Drive folder.
// Requires a drive loader (see WithDriveLoader).
func (a *Assistant) IndexDrive(ctx context.Context, folderID string) (IndexReport, error) {
	if a.drive == nil {
		return IndexReport{}, fmt.Errorf("drive loading is not configured")
	}

	ctx, span := startSpan(ctx, a.tracer, "rag.index_drive",
		attribute.String("rag.folder_id", folderID),
	)
	var indexErr error
	defer func() { endSpan(span, indexErr) }()

	docs, warnings, err := a.drive.Load(ctx, folderID)
	if err != nil {
		indexErr = fmt.Errorf("failed to load Drive folder: %w", err)
		return IndexReport{}, indexErr
	}

	report := a.indexDocuments(ctx, "drive", docs)
	report.Failed += len(warnings)
	report.Errors = append(report.Errors, warnings...)
	for range warnings {
		a.metrics.CountDocument("drive", "failed")
	}
	span.SetAttributes(
		attribute.Int("rag.indexed", report.Indexed),
		attribute.Int("rag.chunks", report.Chunks),
	)
	return report, nil
}

// IndexWeb searches the web and indexes the top result pages.
// Requires a searcher (see WithSearcher). Non-positive topK uses the
// configured default.
//
// Pages are fetched concurrently; one unreachable page fails that
// document, not the run.
func (a *Assistant) IndexWeb(ctx context.Context, query string, topK int) (IndexReport, error) {
	if a.searcher == nil {
		return IndexReport{}, fmt.Errorf("web search is not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return IndexReport{}, fmt.Errorf("search query is empty")
	}
	if topK <= 0 {
		topK = a.webTopK
	}

	ctx, span := startSpan(ctx, a.tracer, "rag.index_web",
		attribute.String("rag.query", query),
		attribute.Int("rag.web_top_k", topK),
	)
	var indexErr error
	defer func() { endSpan(span, indexErr) }()

	results, err := a.searcher.Search(ctx, query, topK)
	if err != nil {
		indexErr = fmt.Errorf("web search failed: %w", err)
		return IndexReport{}, indexErr
	}

	docs, fetchErrs := a.fetchPages(ctx, results)
	report := a.indexDocuments(ctx, "web", docs)
	report.Failed += len(fetchErrs)
	report.Errors = append(report.Errors, fetchErrs...)
	for range fetchErrs {
		a.metrics.CountDocument("web", "failed")
	}

	span.SetAttributes(
		attribute.Int("rag.indexed", report.Indexed),
		attribute.Int("rag.chunks", report.Chunks),
	)
	return report, nil
}

// Ping verifies the assistant's backing store is reachable. Used by
// health checks.
func (a *Assistant) Ping(ctx context.Context) error {
	if _, err := a.store.Count(ctx); err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	return nil
}

// fetchPages downloads the result pages with a bounded worker pool.
// Failed fetches are reported as error strings, not fatal errors.
func (a *Assistant) fetchPages(ctx context.Context, results []search.Result) ([]ingest.Document, []string) {
	type fetched struct {
		doc ingest.Document
		err string
	}

	sem := make(chan struct{}, a.workers)
	out := make([]fetched, len(results))
	var wg sync.WaitGroup

	for i, r := range results {
		wg.Add(1)
		go func(i int, link string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			doc, err := a.web.Fetch(ctx, link)
			if err != nil {
				a.logger.Warn("failed to fetch page", "url", link, "error", err)
				out[i] = fetched{err: fmt.Sprintf("%s: %v", link, err)}
				return
			}
			out[i] = fetched{doc: doc}
		}(i, r.Link)
	}
	wg.Wait()

	var docs []ingest.Document
	var errs []string
	for _, f := range out {
		if f.err != "" {
			errs = append(errs, f.err)
			continue
		}
		docs = append(docs, f.doc)
	}
	return docs, errs
}

// indexDocuments chunks, embeds, and upserts a batch of documents.
func (a *Assistant) indexDocuments(ctx context.Context, source string, docs []ingest.Document) IndexReport {
	var report IndexReport

	for _, doc := range docs {
		if doc.Empty() {
			a.logger.Info("skipping empty document", "id", doc.ID, "name", doc.Name)
			a.metrics.CountDocument(source, "skipped")
			report.Skipped++
			continue
		}

		chunks := a.chunker.Split(doc)
		if err := a.upsertChunks(ctx, chunks); err != nil {
			a.logger.Error("failed to index document", "id", doc.ID, "name", doc.Name, "error", err)
			a.metrics.CountDocument(source, "failed")
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
			continue
		}

		a.metrics.CountDocument(source, "indexed")
		a.metrics.CountChunks(len(chunks))
		report.Indexed++
		report.Chunks += len(chunks)
	}
	return report
}

// upsertChunks embeds a document's chunks and writes them to the
// store. Chunk IDs are stable, so re-indexing a document overwrites
// its previous chunks.
func (a *Assistant) upsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := a.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	items := make([]vectorstore.Item, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]string, len(c.Meta)+1)
		for k, v := range c.Meta {
			meta[k] = v
		}
		meta["text"] = c.Text
		items[i] = vectorstore.Item{ID: c.ID, Vector: vecs[i], Meta: meta}
	}

	if err := a.store.Upsert(ctx, items); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

// cachedAnswer looks up a previously cached answer for the question.
func (a *Assistant) cachedAnswer(ctx context.Context, question string) (Answer, bool) {
	if a.answers == nil {
		return Answer{}, false
	}

	data, ok, err := a.answers.Get(ctx, answerKey(question))
	if err != nil {
		a.logger.Warn("answer cache lookup failed", "error", err)
		return Answer{}, false
	}
	if !ok {
		return Answer{}, false
	}

	var answer Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		_ = a.answers.Delete(ctx, answerKey(question))
		return Answer{}, false
	}
	answer.FromCache = true
	return answer, true
}

// storeAnswer writes an answer to the cache. Cache failures are logged
// and otherwise ignored.
func (a *Assistant) storeAnswer(ctx context.Context, question string, answer Answer) {
	if a.answers == nil {
		return
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := a.answers.Set(ctx, answerKey(question), data, a.answerTTL); err != nil {
		a.logger.Warn("answer cache write failed", "error", err)
	}
}

func answerKey(question string) string {
	return cache.Key("answer", question)
}
