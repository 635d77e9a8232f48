// Command ingest loads a catalog CSV into the vector store.
package main

import (
	"context"
	"flag"
	"time"

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
	ollamaClient "github.com/retidev/preciorag/internal/transport/ollama"
	openaiEmb "github.com/retidev/preciorag/internal/transport/openai"
	ingestuc "github.com/retidev/preciorag/internal/usecase/ingest"
)

func main() {
	_ = godotenv.Load()

	csvPath := flag.String("csv", "", "path to the catalog CSV (overrides config)")
	flag.Parse()

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

	path := cfg.Ingest.CSVPath
	if *csvPath != "" {
		path = *csvPath
	}

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

	metrics.RegisterPipelineMetrics()

	embedder := buildPassageEmbedder(cfg, logger)

	svc := ingestuc.New(catalog.New(store), embedder, cfg.Ingest.BatchSize, logger)

	start := time.Now()
	n, err := svc.Run(ctx, path)
	if err != nil {
		logger.Fatal("Ingestion failed", zap.String("csv", path), zap.Error(err))
	}

	logger.Info("Done",
		zap.String("csv", path),
		zap.Int("records", n),
		zap.Duration("took", time.Since(start)),
	)
}

// buildPassageEmbedder assembles the ingest-side embedder chain with the
// passage instruction outermost.
func buildPassageEmbedder(cfg config.Config, logger *zap.Logger) domain.Embedder {
	var base domain.Embedder
	switch cfg.Embedding.Backend {
	case "openai":
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Logger:  logger,
		})
	default:
		base = ollamaClient.NewClient(&ollamaClient.Config{
			Host:       cfg.Embedding.Host,
			EmbedModel: cfg.Embedding.Model,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			Logger:     logger,
		})
	}

	embedder := base
	if len(cfg.Cache.Addrs) > 0 {
		kv, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Warn("Cache unavailable, embedding without it", zap.Error(err))
		} else {
			ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
			embedder = embcache.New(base, kv, cfg.Embedding.Model, ttl, metrics.EmbeddingCacheTotal, logger)
		}
	}

	return domain.NewInstructionEmbedder(embedder, cfg.Embedding.PassagePrefix)
}
