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
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/retidev/preciorag/internal/config"
	dbMilvus "github.com/retidev/preciorag/internal/db/milvus"
	dbRedis "github.com/retidev/preciorag/internal/db/redis"
	"github.com/retidev/preciorag/internal/domain"
	"github.com/retidev/preciorag/internal/domain/metric"
	logpkg "github.com/retidev/preciorag/internal/logger"
	"github.com/retidev/preciorag/internal/metrics"
	"github.com/retidev/preciorag/internal/repository/catalog"
	"github.com/retidev/preciorag/internal/repository/embcache"
	chiTransport "github.com/retidev/preciorag/internal/transport/chi"
	ollamaClient "github.com/retidev/preciorag/internal/transport/ollama"
	openaiEmb "github.com/retidev/preciorag/internal/transport/openai"
	answeruc "github.com/retidev/preciorag/internal/usecase/answer"
	healthuc "github.com/retidev/preciorag/internal/usecase/health"
	retrieveuc "github.com/retidev/preciorag/internal/usecase/retrieve"
	"github.com/retidev/preciorag/internal/version"
)

func main() {
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

	logger.Info("Starting preciorag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("milvus_host", cfg.Milvus.Host),
		zap.String("collection", cfg.Milvus.Collection),
		zap.String("embedding_backend", cfg.Embedding.Backend),
	)

	simMetric, err := metric.Parse(cfg.Milvus.Metric)
	if err != nil {
		logger.Fatal("Invalid similarity metric", zap.Error(err))
	}

	ctx := context.Background()
	store, err := dbMilvus.NewStore(ctx, dbMilvus.Config{
		Host:       cfg.Milvus.Host,
		Port:       cfg.Milvus.Port,
		Collection: cfg.Milvus.Collection,
		Index:      cfg.Milvus.Index,
		Metric:     simMetric,
		Timeout:    time.Duration(cfg.Milvus.TimeoutSec) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to vector store", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Connected to vector store")

	metrics.RegisterPipelineMetrics()

	// Optional embedding cache
	var kv *dbRedis.Store
	if len(cfg.Cache.Addrs) > 0 {
		kv, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to connect to cache", zap.Error(err))
		}
		defer kv.Close()
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	base, embedHealth := buildBaseEmbedder(cfg, logger)
	queryEmbedder := buildEmbedder(base, kv, cfg, cfg.Embedding.QueryPrefix, logger)
	logger.Info("Embedder created",
		zap.String("backend", cfg.Embedding.Backend),
		zap.String("model", cfg.Embedding.Model),
	)

	generator := ollamaClient.NewClient(&ollamaClient.Config{
		Host:     cfg.Generation.Host,
		GenModel: cfg.Generation.Model,
		Timeout:  time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		Logger:   logger,
	})

	catalogRepo := catalog.New(store)
	if err := catalogRepo.Provision(ctx, cfg.Milvus.Dim); err != nil {
		logger.Fatal("Failed to provision collection", zap.Error(err))
	}
	logger.Info("Collection ready",
		zap.String("collection", cfg.Milvus.Collection),
		zap.Int("dim", cfg.Milvus.Dim),
	)

	retrieveSvc := retrieveuc.New(catalogRepo, queryEmbedder, simMetric)
	answerSvc := answeruc.New(retrieveSvc, generator, simMetric, answeruc.Defaults{
		TopK:             cfg.Ask.TopK,
		AbstainThreshold: cfg.Ask.AbstainThreshold,
	})
	healthSvc := healthuc.New(store, embedHealth, generator)

	server := chiTransport.NewServer(retrieveSvc, answerSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.Origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

// buildBaseEmbedder selects the embedding backend once at startup.
func buildBaseEmbedder(cfg config.Config, logger *zap.Logger) (domain.Embedder, healthuc.BackendChecker) {
	switch cfg.Embedding.Backend {
	case "openai":
		e := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Logger:  logger,
		})
		return e, e
	default:
		c := ollamaClient.NewClient(&ollamaClient.Config{
			Host:       cfg.Embedding.Host,
			EmbedModel: cfg.Embedding.Model,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			Logger:     logger,
		})
		return c, c
	}
}

// buildEmbedder assembles the decorator chain: backend -> cached -> instruction.
// The instruction is outermost so the cache key includes it.
func buildEmbedder(
	base domain.Embedder,
	kv *dbRedis.Store,
	cfg config.Config,
	instruction string,
	logger *zap.Logger,
) domain.Embedder {
	embedder := base
	if kv != nil {
		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		embedder = embcache.New(base, kv, cfg.Embedding.Model, ttl, metrics.EmbeddingCacheTotal, logger)
	}
	return domain.NewInstructionEmbedder(embedder, instruction)
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
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
