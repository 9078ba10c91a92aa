package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/chunker"
	"github.com/smartbookqa/bookqa/internal/config"
	"github.com/smartbookqa/bookqa/internal/db"
	dbRedis "github.com/smartbookqa/bookqa/internal/db/redis"
	dbSqlite "github.com/smartbookqa/bookqa/internal/db/sqlite"
	logpkg "github.com/smartbookqa/bookqa/internal/logger"
	"github.com/smartbookqa/bookqa/internal/metrics"
	"github.com/smartbookqa/bookqa/internal/repository/embcache"
	indexrepo "github.com/smartbookqa/bookqa/internal/repository/index"
	"github.com/smartbookqa/bookqa/internal/transport/httpapi"
	ollamaGen "github.com/smartbookqa/bookqa/internal/transport/ollama"
	openaiTransport "github.com/smartbookqa/bookqa/internal/transport/openai"
	askuc "github.com/smartbookqa/bookqa/internal/usecase/ask"
	corpusuc "github.com/smartbookqa/bookqa/internal/usecase/corpus"
	embeddinguc "github.com/smartbookqa/bookqa/internal/usecase/embedding"
	generationuc "github.com/smartbookqa/bookqa/internal/usecase/generation"
	healthuc "github.com/smartbookqa/bookqa/internal/usecase/health"
	ingestuc "github.com/smartbookqa/bookqa/internal/usecase/ingest"
	"github.com/smartbookqa/bookqa/internal/usecase/retrieve"
	"github.com/smartbookqa/bookqa/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting bookqa API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
	)

	// Create the backing store based on driver
	var store db.Store
	switch cfg.Storage.Driver {
	case "sqlite":
		store, err = dbSqlite.NewStore(cfg.Storage.Path)
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Storage.Addrs,
			Password: cfg.Storage.Password,
		})
	default:
		logger.Fatal("Unknown storage driver", zap.String("driver", cfg.Storage.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Storage.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Connected to store")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Embedding strategy: remote when a key is configured and healthy,
	// local hashing vectorizer otherwise. Sticky for the process lifetime.
	var remote embeddinguc.Strategy
	if cfg.Embedding.APIKey != "" {
		remote = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			Logger:     logger,
		})
	}
	local := embeddinguc.NewLocalEmbedder(cfg.Embedding.LocalDimensions)

	provider := embeddinguc.NewProvider(ctx, remote, local, cfg.Embedding.BatchSize, logger)
	logger.Info("Embedding provider ready",
		zap.String("strategy", provider.Strategy()),
		zap.Int("dimensions", provider.Dimensions()),
	)

	// Query embeddings go through the cache; document batches hit the
	// provider directly since repeated chunk texts are rare.
	var queryEmbedder retrieve.Embedder = provider
	if cfg.Embedding.Cache {
		queryEmbedder = embcache.New(
			provider, store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger,
		)
	}

	// Generation strategy chain: remote first, local Ollama next, and the
	// extractive fallback guarantees the pipeline always answers.
	var genCandidates []generationuc.Generator
	if cfg.Generation.APIKey != "" {
		genCandidates = append(genCandidates, openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:  cfg.Generation.APIKey,
			BaseURL: cfg.Generation.BaseURL,
			Model:   cfg.Generation.Model,
			Timeout: time.Duration(cfg.Generation.TimeoutSec) * time.Second,
			Logger:  logger,
		}))
	}
	genCandidates = append(genCandidates, ollamaGen.NewGenerator(&ollamaGen.Config{
		BaseURL: cfg.Generation.Ollama.BaseURL,
		Model:   cfg.Generation.Ollama.Model,
		Timeout: time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		Logger:  logger,
	}))
	genCandidates = append(genCandidates, generationuc.NewExtractive())

	generator := generationuc.Resolve(ctx, logger, genCandidates...)

	// Repositories and services
	indexRepo := indexrepo.New(store, cfg.Storage.KeyPrefix,
		time.Duration(cfg.Storage.TimeoutSec)*time.Second)

	split, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	ingestSvc := ingestuc.New(split, provider, indexRepo, cfg.Embedding.BatchSize, logger)
	retrieveSvc := retrieve.New(queryEmbedder, indexRepo, cfg.Retrieval.TopK, cfg.Retrieval.MinScore)
	generationSvc := generationuc.New(
		generator, cfg.Generation.MaxAnswerTokens, cfg.Generation.MaxContextTokens, logger,
	)
	askSvc := askuc.New(retrieveSvc, generationSvc, logger)
	corpusSvc := corpusuc.New(indexRepo, logger)
	healthSvc := healthuc.New(store, provider, generationSvc)

	server := httpapi.NewServer(ingestSvc, askSvc, retrieveSvc, corpusSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpapi.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Group(server.Routes)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWith(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
