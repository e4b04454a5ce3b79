// Command ragd runs the retrieval-augmented assistant as an HTTP
// service.
//
// Configuration is environment-driven; see the config package for the
// full variable list. A minimal local run needs only an OpenAI key:
//
//	OPENAI_API_KEY=sk-... ragd
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/zero1hq/rag-assistant/config"
	"github.com/zero1hq/rag-assistant/httpapi"
	"github.com/zero1hq/rag-assistant/rag"
	"github.com/zero1hq/rag-assistant/rag/cache"
	"github.com/zero1hq/rag-assistant/rag/embed"
	"github.com/zero1hq/rag-assistant/rag/ingest"
	"github.com/zero1hq/rag-assistant/rag/model"
	anthropicmodel "github.com/zero1hq/rag-assistant/rag/model/anthropic"
	googlemodel "github.com/zero1hq/rag-assistant/rag/model/google"
	openaimodel "github.com/zero1hq/rag-assistant/rag/model/openai"
	"github.com/zero1hq/rag-assistant/rag/search"
	"github.com/zero1hq/rag-assistant/rag/vectorstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("ragd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	metrics := rag.NewMetrics(registry)

	chat, err := buildChatModel(cfg)
	if err != nil {
		return err
	}

	answerCache, embedCache, err := buildCaches(ctx, cfg)
	if err != nil {
		return err
	}

	embedder := buildEmbedder(cfg, embedCache, metrics)

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("vector store close failed", "error", err)
		}
	}()

	opts := []rag.Option{
		rag.WithLogger(logger),
		rag.WithMetrics(metrics),
		rag.WithTopK(cfg.TopK),
		rag.WithWebTopK(cfg.WebTopK),
		rag.WithChunker(rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)),
		rag.WithWorkers(cfg.MaxConcurrency),
		rag.WithTracer(otel.Tracer("ragd")),
	}
	if answerCache != nil {
		opts = append(opts, rag.WithAnswerCache(answerCache), rag.WithAnswerTTL(cfg.AnswerTTL))
	}
	if cfg.SerpAPIKey != "" {
		serp, err := search.NewSerpAPIClient(cfg.SerpAPIKey)
		if err != nil {
			return fmt.Errorf("failed to create search client: %w", err)
		}
		opts = append(opts, rag.WithSearcher(serp))
	} else {
		logger.Info("SERPAPI_API_KEY not set, web indexing disabled")
	}
	if cfg.DriveCredentialsEnv != "" {
		loader, err := ingest.NewDriveLoader(ctx, []byte(cfg.DriveCredentialsEnv),
			ingest.WithDriveLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create Drive loader: %w", err)
		}
		opts = append(opts, rag.WithDriveLoader(loader))
	} else {
		logger.Info("GOOGLE_APPLICATION_CREDENTIALS_JSON not set, Drive indexing disabled")
	}

	assistant, err := rag.NewAssistant(chat, embedder, store, opts...)
	if err != nil {
		return fmt.Errorf("failed to create assistant: %w", err)
	}

	server := httpapi.NewServer(assistant, registry,
		httpapi.WithServerLogger(logger),
		httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		httpapi.WithDefaultDriveFolder(cfg.DriveFolderID),
	)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ragd listening",
			"addr", cfg.Addr,
			"provider", cfg.Provider,
			"vector_backend", cfg.VectorBackend,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// buildChatModel selects the chat provider from configuration.
func buildChatModel(cfg *config.Config) (model.ChatModel, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaimodel.NewChatModel(cfg.OpenAIAPIKey, cfg.ChatModel,
			openaimodel.WithTemperature(cfg.Temperature)), nil
	case config.ProviderAnthropic:
		return anthropicmodel.NewChatModel(cfg.AnthropicAPIKey, cfg.ChatModel), nil
	case config.ProviderGoogle:
		return googlemodel.NewChatModel(cfg.GeminiAPIKey, cfg.ChatModel), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// buildCaches returns the answer and embedding caches for the
// configured backend. Both are nil when caching is disabled.
func buildCaches(ctx context.Context, cfg *config.Config) (answers, embeds cache.Cache, err error) {
	switch cfg.CacheBackend {
	case config.CacheBackendNone:
		return nil, nil, nil
	case config.CacheBackendMemory:
		return cache.NewMemoryCache(0, cfg.AnswerTTL), cache.NewMemoryCache(0, cfg.EmbedTTL), nil
	case config.CacheBackendRedis:
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return redisCache, redisCache, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// buildEmbedder stacks the cost controls around the OpenAI embedder:
// rate limiting closest to the provider so every batch the batcher
// issues waits for a token, then batching, then caching outermost so
// hits skip both.
func buildEmbedder(cfg *config.Config, embedCache cache.Cache, metrics *rag.Metrics) embed.Embedder {
	var e embed.Embedder = embed.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbedModel)
	e = embed.NewLimited(e, cfg.EmbedRPS, cfg.EmbedBurst)
	e = embed.NewBatcher(e, cfg.EmbedBatchItems, cfg.EmbedBatchToken)
	if embedCache != nil {
		cached := embed.NewCached(e, embedCache, cfg.EmbedTTL)
		cached.OnHit(metrics.EmbedCacheHit)
		cached.OnMiss(metrics.EmbedCacheMiss)
		e = cached
	}
	return e
}

// buildStore selects the vector store backend from configuration.
func buildStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendMemory:
		return vectorstore.NewMemoryStore(), nil
	case config.VectorBackendSQLite:
		return vectorstore.NewSQLiteStore(cfg.SQLitePath)
	case config.VectorBackendMySQL:
		return vectorstore.NewMySQLStore(cfg.MySQLDSN)
	case config.VectorBackendWeaviate:
		return vectorstore.NewWeaviateStore(ctx, vectorstore.WeaviateConfig{
			Host:      cfg.WeaviateHost,
			APIKey:    cfg.WeaviateKey,
			ClassName: cfg.WeaviateClass,
		})
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}
