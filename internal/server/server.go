package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"textbook-rag/internal/chunker"
	"textbook-rag/internal/config"
	"textbook-rag/internal/db"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/handlers"
	"textbook-rag/internal/repositories"
	"textbook-rag/internal/routes"
	"textbook-rag/internal/services"
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies a global token bucket; over-limit requests
// get 429 with Retry-After.
func rateLimitMiddleware(limiter *rate.Limiter, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Printf("Rate limited %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":%q,"message":"request rate limit exceeded","status":429}`,
					http.StatusText(http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs every request with its duration.
func loggingMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Printf("%s %s from %s (%v)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
		})
	}
}

// NewServer wires the full service from config and returns a ready
// http.Server plus a shutdown hook for the backing stores.
func NewServer(cfg *config.Config) (*http.Server, func(), error) {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	index, err := buildVectorIndex(cfg, embedder.Dimension(), logger)
	if err != nil {
		return nil, nil, err
	}

	sessions, err := buildSessionStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	generator := services.NewOpenAIGenerator(services.OpenAIGeneratorConfig{
		BaseURL: cfg.GenerationBaseURL,
		Model:   cfg.GenerationModel,
	})
	logger.Printf("Generator: %s", generator.Name())

	ch := chunker.New(chunker.DefaultConfig())
	ingestionService := services.NewIngestionService(ch, embedder, index, logger)
	retrievalService := services.NewRetrievalService(embedder, index, services.RetrievalConfig{
		TopK:                cfg.RetrievalTopK,
		MinSimilarity:       float32(cfg.RetrievalMinSimilarity),
		ConfidenceThreshold: float32(cfg.NoMatchThreshold),
	}, logger)
	composerService := services.NewComposerService(generator, services.DefaultComposerConfig(), logger)
	chatService := services.NewChatService(sessions, retrievalService, composerService, logger)
	healthService := services.NewHealthService(index, sessions, embedder, generator, logger)

	h := &routes.Handlers{
		Chat:    handlers.NewChatHandler(chatService, logger),
		Ingest:  handlers.NewIngestHandler(ingestionService, logger),
		Session: handlers.NewSessionHandler(chatService, logger),
		Health:  handlers.NewHealthHandler(healthService, logger),
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	// Add Swagger endpoints
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Port)),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	handler := corsMiddleware(rateLimitMiddleware(limiter, logger)(loggingMiddleware(logger)(router)))

	cleanup := func() {
		if err := index.Close(); err != nil {
			logger.Printf("Vector index close failed: %v", err)
		}
		if err := sessions.Close(); err != nil {
			logger.Printf("Session store close failed: %v", err)
		}
	}

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}, cleanup, nil
}

// buildEmbedder selects the embedding provider from config.
func buildEmbedder(cfg *config.Config, logger *log.Logger) (*embedding.Gateway, error) {
	var provider embedding.Provider
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		p, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			BaseURL:   cfg.EmbeddingBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		provider = p
	default:
		provider = embedding.NewLocalProvider(cfg.EmbeddingDimension)
	}
	logger.Printf("Embedding provider: %s (dimension %d)", provider.Name(), provider.Dimension())
	return embedding.NewGateway(provider, embedding.DefaultConfig(), logger), nil
}

// buildVectorIndex selects the vector index backend from config.
func buildVectorIndex(cfg *config.Config, dimension int, logger *log.Logger) (repositories.VectorIndex, error) {
	if cfg.VectorBackend == config.VectorBackendChroma {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		chromaConfig := db.DefaultChromaDBConfig()
		chromaConfig.Host = cfg.ChromaHost
		chromaConfig.Port = cfg.ChromaPort
		chromaConfig.Tenant = cfg.ChromaTenant
		chromaConfig.Database = cfg.ChromaDatabase

		logger.Printf("Connecting to ChromaDB: %s:%d", chromaConfig.Host, chromaConfig.Port)
		client := db.NewChromaDBClient(chromaConfig)
		if err := client.Heartbeat(ctx); err != nil {
			return nil, fmt.Errorf("chromadb not reachable: %w", err)
		}
		index, err := repositories.NewChromaVectorIndex(ctx, client, cfg.ChromaCollection, dimension)
		if err != nil {
			return nil, err
		}
		logger.Println("ChromaDB connected successfully")
		return index, nil
	}
	logger.Println("Using in-memory vector index")
	return repositories.NewMemoryVectorIndex(dimension), nil
}

// buildSessionStore selects the session store backend from config.
func buildSessionStore(cfg *config.Config, logger *log.Logger) (repositories.SessionStore, error) {
	if cfg.SessionBackend == config.SessionBackendRedis {
		redisConfig := db.DefaultRedisConfig()
		redisConfig.Host = cfg.RedisHost
		redisConfig.Port = cfg.RedisPort
		redisConfig.Password = cfg.RedisPassword
		redisConfig.DB = cfg.RedisDB

		logger.Printf("Connecting to Redis: %s:%d (DB: %d)", redisConfig.Host, redisConfig.Port, redisConfig.DB)
		client, err := db.NewRedisClient(redisConfig)
		if err != nil {
			return nil, fmt.Errorf("redis client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis not reachable: %w", err)
		}
		logger.Println("Redis connected successfully")
		return repositories.NewRedisSessionStore(client.GetClient()), nil
	}
	logger.Println("Using in-memory session store")
	return repositories.NewMemorySessionStore(), nil
}
