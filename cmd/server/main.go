package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jharjadi/tokenwise/internal/cache"
	"github.com/jharjadi/tokenwise/internal/config"
	"github.com/jharjadi/tokenwise/internal/db"
	"github.com/jharjadi/tokenwise/internal/handler"
	authmw "github.com/jharjadi/tokenwise/internal/middleware"
	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/service"
	"github.com/jharjadi/tokenwise/internal/tokenizer"
)

const (
	serviceName    = "tokenwise"
	serviceVersion = "1.0.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize scoring pipeline
	counter := tokenizer.New(cfg.TokenizerModel)
	embedder, err := service.NewEmbedder(ctx, service.EmbedderConfig{
		Provider: cfg.EmbedProvider,
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
		Model:    cfg.EmbeddingModel,
		Endpoint: cfg.EmbedEndpoint,
		Dim:      cfg.EmbeddingDim,
		Timeout:  cfg.EmbedTimeout(),
	})
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	embedSvc := service.NewEmbedService(embedder, cfg.EmbeddingDim, cfg.EmbedBatchSize, cfg.EmbedConcurrency)

	weights := service.Weights{
		Embedding:    cfg.EmbeddingWeight,
		Keyword:      cfg.KeywordWeight,
		Recency:      cfg.RecencyWeight,
		Relationship: cfg.RelationshipWeight,
	}
	ranker := service.NewRanker(embedSvc, weights, cfg.BoostFactor)

	chunking := model.DefaultChunkingOptions()
	chunking.Strategy = model.ChunkingStrategy(cfg.ChunkStrategy)
	chunking.ChunkSize = cfg.DefaultChunkSize
	chunking.Overlap = cfg.ChunkOverlap

	optimizer := service.NewOptimizer(counter, ranker, service.OptimizerConfig{
		DefaultBudget:        cfg.DefaultTokenBudget,
		Chunking:             chunking,
		CostPerMillionTokens: cfg.CostPerMillionTokens,
	})

	// Vector index (optional)
	var (
		pool  *pgxpool.Pool
		index handler.VectorIndex
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := db.EnsureSchema(ctx, pool, cfg.EmbeddingDim); err != nil {
			slog.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		if err := db.StartupChecks(ctx, pool); err != nil {
			slog.Error("startup checks failed", "error", err)
			os.Exit(1)
		}
		if err := db.PruneStale(ctx, pool, cfg.IndexRetentionHours); err != nil {
			slog.Error("index retention prune failed", "error", err)
			// Non-fatal: continue startup
		}
		index = db.NewVectorStore(pool)
	} else {
		slog.Info("vector index disabled", "reason", "DATABASE_URL not set")
	}

	// Response cache: Redis when configured, in-memory otherwise
	var store cache.Store
	if cfg.RedisAddr != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
	} else {
		ms := cache.NewMemoryStore()
		go ms.RunSweeper(ctx, time.Minute)
		store = ms
	}
	respCache := cache.New(store, cfg.CacheTTL())

	// Initialize handlers
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiryHours)
	authHandler := handler.NewAuthHandler(authSvc, service.AdminAccount{
		Email:        cfg.AdminEmail,
		PasswordHash: cfg.AdminPasswordHash,
		TenantID:     cfg.AdminTenantID,
	})
	optimizeHandler := handler.NewOptimizeHandler(optimizer, respCache)
	indexHandler := handler.NewIndexHandler(index, optimizer.Chunker(), embedSvc, optimizer.DefaultChunking())
	cacheHandler := handler.NewCacheHandler(respCache)

	var ping func(*http.Request) error
	if pool != nil {
		ping = func(r *http.Request) error { return pool.Ping(r.Context()) }
	}
	statsHandler := handler.NewStatsHandler(handler.ServiceInfo{
		Name:               serviceName,
		Version:            serviceVersion,
		DefaultTokenBudget: cfg.DefaultTokenBudget,
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingProvider:  cfg.EmbedProvider,
		Weights:            weights,
	}, respCache, index, ping)

	// Build router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(authmw.Metrics)

	// Unauthenticated endpoints
	r.Get("/", statsHandler.Info)
	r.Get("/health", statsHandler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/auth/login", authHandler.Login)

	// Protected endpoints: JWT when AUTH_ENABLED=true, tenant_id param (or default) otherwise
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(authSvc, cfg.AuthEnabled))

		r.Post("/v1/optimize", optimizeHandler.Handle)
		r.Post("/v1/index", indexHandler.Index)
		r.Post("/v1/index/search", indexHandler.Search)
		r.Get("/v1/stats", statsHandler.Stats)
		r.Post("/v1/cache/clear", cacheHandler.Clear)

		// Admin-only endpoints (require admin role)
		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole("admin"))
			r.Post("/v1/index/clear", indexHandler.Clear)
		})
	})

	slog.Info("auth configuration",
		"auth_enabled", cfg.AuthEnabled,
		"jwt_expiry_hours", cfg.JWTExpiryHours,
		"admin_login", cfg.AdminEmail != "",
	)
	slog.Info("optimizer configuration",
		"embed_provider", cfg.EmbedProvider,
		"embedding_model", cfg.EmbeddingModel,
		"embedding_dim", cfg.EmbeddingDim,
		"tokenizer_model", cfg.TokenizerModel,
		"chunk_strategy", cfg.ChunkStrategy,
		"default_token_budget", cfg.DefaultTokenBudget,
		"cache_backend", respCache.Backend(),
		"vector_index", index != nil,
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(cancelCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
