// Package config loads all environment variables for the tokenwise service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the optimizer service.
type Config struct {
	// Server
	APIHost string
	APIPort string

	// Database (optional; the vector index is disabled when empty)
	DatabaseURL         string
	IndexRetentionHours int

	// Response cache (Redis when RedisAddr is set, memory otherwise)
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheTTLSeconds int

	// Embedding provider: "openai", "http" or "none"
	EmbedProvider    string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	EmbeddingModel   string
	EmbedEndpoint    string
	EmbeddingDim     int
	EmbedBatchSize   int
	EmbedConcurrency int
	EmbedTimeoutMS   int

	// Token counting
	TokenizerModel string

	// Optimization defaults
	DefaultTokenBudget   int
	ChunkStrategy        string
	DefaultChunkSize     int
	ChunkOverlap         int
	CostPerMillionTokens float64

	// Scoring
	EmbeddingWeight    float64
	KeywordWeight      float64
	RecencyWeight      float64
	RelationshipWeight float64
	BoostFactor        float64

	// AuthEnabled controls whether JWT auth is enforced
	AuthEnabled bool

	// JWTSecret is the HMAC-SHA256 signing key for JWT tokens
	JWTSecret string

	// JWTExpiryHours is the JWT token lifetime in hours (default 24)
	JWTExpiryHours int

	// Admin account for POST /v1/auth/login
	AdminEmail        string
	AdminPasswordHash string
	AdminTenantID     string

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIHost: envOr("API_HOST", "0.0.0.0"),
		APIPort: envOr("API_PORT", "8000"),

		DatabaseURL:         os.Getenv("DATABASE_URL"),
		IndexRetentionHours: envInt("INDEX_RETENTION_HOURS", 0),

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         envInt("REDIS_DB", 0),
		CacheTTLSeconds: envInt("CACHE_TTL_SECONDS", 3600),

		EmbedProvider:    envOr("EMBED_PROVIDER", "openai"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		EmbeddingModel:   envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbedEndpoint:    envOr("EMBED_ENDPOINT", "http://embed:8001/embed"),
		EmbeddingDim:     envInt("EMBEDDING_DIM", 1536),
		EmbedBatchSize:   envInt("EMBED_BATCH_SIZE", 64),
		EmbedConcurrency: envInt("EMBED_CONCURRENCY", 4),
		EmbedTimeoutMS:   envInt("EMBED_TIMEOUT_MS", 10000),

		TokenizerModel: envOr("TOKENIZER_MODEL", "gpt-3.5-turbo"),

		DefaultTokenBudget:   envInt("DEFAULT_TOKEN_BUDGET", 4000),
		ChunkStrategy:        envOr("CHUNK_STRATEGY", "semantic"),
		DefaultChunkSize:     envInt("DEFAULT_CHUNK_SIZE", 512),
		ChunkOverlap:         envInt("CHUNK_OVERLAP", 50),
		CostPerMillionTokens: envFloat("COST_PER_MILLION_TOKENS", 3.0),

		EmbeddingWeight:    envFloat("EMBEDDING_WEIGHT", 0.5),
		KeywordWeight:      envFloat("KEYWORD_WEIGHT", 0.2),
		RecencyWeight:      envFloat("RECENCY_WEIGHT", 0.15),
		RelationshipWeight: envFloat("RELATIONSHIP_WEIGHT", 0.1),
		BoostFactor:        envFloat("BOOST_FACTOR", 0.2),

		AuthEnabled:    envBool("AUTH_ENABLED", false),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTExpiryHours: envInt("JWT_EXPIRY_HOURS", 24),

		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AdminTenantID:     envOr("ADMIN_TENANT_ID", "default"),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // embedding large requests can be slow
		IdleTimeout:  60 * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.EmbedProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBED_PROVIDER=openai")
		}
	case "http", "none":
	default:
		return fmt.Errorf("EMBED_PROVIDER must be openai, http or none, got %q", c.EmbedProvider)
	}

	switch c.ChunkStrategy {
	case "fixed", "semantic", "sliding":
	default:
		return fmt.Errorf("CHUNK_STRATEGY must be fixed, semantic or sliding, got %q", c.ChunkStrategy)
	}

	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.AuthEnabled && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED=true")
	}
	return nil
}

// Addr returns the listen address as "host:port".
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.APIHost, c.APIPort)
}

// CacheTTL returns the response cache TTL as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// EmbedTimeout returns the embedding provider timeout as a time.Duration.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutMS) * time.Millisecond
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
