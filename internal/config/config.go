// Package config loads service configuration from the environment, with a
// .env file honored when present. Every knob has a default that works for
// local development without external services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Backend selectors.
const (
	VectorBackendMemory = "memory"
	VectorBackendChroma = "chroma"

	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"

	EmbeddingProviderLocal  = "local"
	EmbeddingProviderOpenAI = "openai"
)

// Config is the full service configuration.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration

	VectorBackend  string
	SessionBackend string

	EmbeddingProvider  string
	EmbeddingBaseURL   string
	EmbeddingModel     string
	EmbeddingDimension int

	GenerationBaseURL string
	GenerationModel   string

	RetrievalTopK          int
	RetrievalMinSimilarity float64
	NoMatchThreshold       float64

	ChromaHost       string
	ChromaPort       int
	ChromaTenant     string
	ChromaDatabase   string
	ChromaCollection string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,

		VectorBackend:  getEnv("VECTOR_BACKEND", VectorBackendMemory),
		SessionBackend: getEnv("SESSION_BACKEND", SessionBackendMemory),

		EmbeddingProvider:  getEnv("EMBEDDING_PROVIDER", EmbeddingProviderLocal),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 0),

		GenerationBaseURL: getEnv("GENERATION_BASE_URL", "https://api.openai.com/v1"),
		GenerationModel:   getEnv("GENERATION_MODEL", "gpt-4o-mini"),

		RetrievalTopK:          getEnvInt("RETRIEVAL_TOP_K", 5),
		RetrievalMinSimilarity: getEnvFloat("RETRIEVAL_MIN_SIMILARITY", 0.25),
		NoMatchThreshold:       getEnvFloat("NO_MATCH_THRESHOLD", 0.40),

		ChromaHost:       getEnv("CHROMA_HOST", "localhost"),
		ChromaPort:       getEnvInt("CHROMA_PORT", 8000),
		ChromaTenant:     getEnv("CHROMA_TENANT", "default_tenant"),
		ChromaDatabase:   getEnv("CHROMA_DATABASE", "default_database"),
		ChromaCollection: getEnv("CHROMA_COLLECTION", "textbook_content"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.VectorBackend {
	case VectorBackendMemory, VectorBackendChroma:
	default:
		return fmt.Errorf("unknown vector backend %q", c.VectorBackend)
	}
	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	switch c.EmbeddingProvider {
	case EmbeddingProviderLocal, EmbeddingProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive (rps %.1f, burst %d)", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.RetrievalTopK)
	}
	if c.NoMatchThreshold < c.RetrievalMinSimilarity {
		return fmt.Errorf("no-match threshold %.2f below min similarity %.2f", c.NoMatchThreshold, c.RetrievalMinSimilarity)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
