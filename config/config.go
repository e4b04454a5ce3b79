// Package config holds the runtime configuration for ragd.
//
// Configuration is read entirely from environment variables so the
// service runs unchanged across local, container, and managed
// deployments. LoadFromEnv applies defaults; Validate catches the
// combinations that cannot work before anything is wired up.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted in RAGD_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Vector store backends accepted in RAGD_VECTOR_BACKEND.
const (
	VectorBackendMemory   = "memory"
	VectorBackendSQLite   = "sqlite"
	VectorBackendMySQL    = "mysql"
	VectorBackendWeaviate = "weaviate"
)

// Cache backends accepted in RAGD_CACHE_BACKEND.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// Config holds all configuration for the ragd service.
type Config struct {
	// HTTP server
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int

	// Chat provider
	Provider    string
	ChatModel   string
	Temperature float64

	// Provider credentials
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string

	// Embeddings
	EmbedModel      string
	EmbedBatchItems int
	EmbedBatchToken int
	EmbedRPS        float64
	EmbedBurst      int

	// Retrieval
	TopK           int
	WebTopK        int
	ChunkSize      int
	ChunkOverlap   int
	MaxConcurrency int

	// Vector store
	VectorBackend string
	SQLitePath    string
	MySQLDSN      string
	WeaviateHost  string
	WeaviateKey   string
	WeaviateClass string

	// Caching
	CacheBackend string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	AnswerTTL    time.Duration
	EmbedTTL     time.Duration

	// Ingestion
	SerpAPIKey          string
	DriveCredentialsEnv string
	DriveFolderID       string
}

// LoadFromEnv loads configuration from environment variables with
// sensible defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Addr:            getEnv("RAGD_ADDR", ":8080"),
		ReadTimeout:     getEnvDuration("RAGD_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("RAGD_WRITE_TIMEOUT", 120*time.Second),
		ShutdownTimeout: getEnvDuration("RAGD_SHUTDOWN_TIMEOUT", 15*time.Second),
		RateLimitRPS:    getEnvFloat("RAGD_RATE_LIMIT_RPS", 5),
		RateLimitBurst:  getEnvInt("RAGD_RATE_LIMIT_BURST", 10),

		Provider:    strings.ToLower(getEnv("RAGD_PROVIDER", ProviderOpenAI)),
		ChatModel:   getEnv("RAGD_CHAT_MODEL", ""),
		Temperature: getEnvFloat("RAGD_TEMPERATURE", 0.7),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),

		EmbedModel:      getEnv("RAGD_EMBED_MODEL", ""),
		EmbedBatchItems: getEnvInt("RAGD_EMBED_BATCH_ITEMS", 64),
		EmbedBatchToken: getEnvInt("RAGD_EMBED_BATCH_TOKENS", 8000),
		EmbedRPS:        getEnvFloat("RAGD_EMBED_RPS", 5),
		EmbedBurst:      getEnvInt("RAGD_EMBED_BURST", 5),

		TopK:           getEnvInt("RAGD_TOP_K", 5),
		WebTopK:        getEnvInt("RAGD_WEB_TOP_K", 3),
		ChunkSize:      getEnvInt("RAGD_CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvInt("RAGD_CHUNK_OVERLAP", 200),
		MaxConcurrency: getEnvInt("RAGD_MAX_CONCURRENCY", 4),

		VectorBackend: strings.ToLower(getEnv("RAGD_VECTOR_BACKEND", VectorBackendSQLite)),
		SQLitePath:    getEnv("RAGD_SQLITE_PATH", "./ragd.db"),
		MySQLDSN:      os.Getenv("RAGD_MYSQL_DSN"),
		WeaviateHost:  os.Getenv("RAGD_WEAVIATE_HOST"),
		WeaviateKey:   os.Getenv("RAGD_WEAVIATE_API_KEY"),
		WeaviateClass: getEnv("RAGD_WEAVIATE_CLASS", "RagChunk"),

		CacheBackend: strings.ToLower(getEnv("RAGD_CACHE_BACKEND", CacheBackendMemory)),
		RedisAddr:    getEnv("RAGD_REDIS_ADDR", "localhost:6379"),
		RedisPass:    os.Getenv("RAGD_REDIS_PASSWORD"),
		RedisDB:      getEnvInt("RAGD_REDIS_DB", 0),
		AnswerTTL:    getEnvDuration("RAGD_ANSWER_TTL", 10*time.Minute),
		EmbedTTL:     getEnvDuration("RAGD_EMBED_TTL", 24*time.Hour),

		SerpAPIKey:          os.Getenv("SERPAPI_API_KEY"),
		DriveCredentialsEnv: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"),
		DriveFolderID:       os.Getenv("RAGD_DRIVE_FOLDER_ID"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderGoogle:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown provider %q (want %s, %s, or %s)",
			c.Provider, ProviderOpenAI, ProviderAnthropic, ProviderGoogle)
	}

	// Embeddings always go through OpenAI regardless of chat provider.
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for embeddings")
	}

	switch c.VectorBackend {
	case VectorBackendMemory:
	case VectorBackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("RAGD_SQLITE_PATH is required for the sqlite backend")
		}
	case VectorBackendMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("RAGD_MYSQL_DSN is required for the mysql backend")
		}
	case VectorBackendWeaviate:
		if c.WeaviateHost == "" {
			return fmt.Errorf("RAGD_WEAVIATE_HOST is required for the weaviate backend")
		}
	default:
		return fmt.Errorf("unknown vector backend %q", c.VectorBackend)
	}

	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendNone:
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("RAGD_REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}

	if c.TopK <= 0 || c.WebTopK <= 0 {
		return fmt.Errorf("RAGD_TOP_K and RAGD_WEB_TOP_K must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("RAGD_CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("RAGD_CHUNK_OVERLAP must be non-negative and smaller than RAGD_CHUNK_SIZE")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("RAGD_MAX_CONCURRENCY must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("RAGD_TEMPERATURE must be between 0 and 2")
	}
	return nil
}

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable. Unparseable
// values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvFloat retrieves a float environment variable.
func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// getEnvDuration retrieves a duration environment variable, e.g.
// "30s" or "5m".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
