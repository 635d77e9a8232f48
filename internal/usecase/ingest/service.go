// Package ingest loads a catalog CSV, embeds each record's canonical text
// and writes the batch into the vector store. Re-running the same file is
// idempotent by product id.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/retidev/preciorag/internal/domain"
	"github.com/retidev/preciorag/internal/metrics"
)

const defaultBatchSize = 512

// Service runs the ingestion pipeline.
type Service struct {
	repo      Repository
	embed     Embedder
	batchSize int
	logger    *zap.Logger
}

// New creates an ingestion service. batchSize <= 0 selects the default.
func New(repo Repository, embed Embedder, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{repo: repo, embed: embed, batchSize: batchSize, logger: logger}
}

// Run ingests the CSV at path: parse, embed, provision, upsert in batches,
// flush. Returns the number of records written.
func (s *Service) Run(ctx context.Context, path string) (int, error) {
	records, err := ReadRows(path)
	if err != nil {
		return 0, fmt.Errorf("read rows: %w", err)
	}
	if len(records) == 0 {
		s.logger.Warn("CSV contained no records", zap.String("path", path))
		return 0, nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.CanonicalText
	}

	vectors, dim, err := domain.EmbedAll(ctx, s.embed, texts)
	if err != nil {
		return 0, fmt.Errorf("embed records: %w", err)
	}
	for i := range records {
		records[i].Vector = vectors[i]
	}

	if err := s.repo.Provision(ctx, dim); err != nil {
		return 0, fmt.Errorf("provision collection: %w", err)
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.repo.UpsertRecords(ctx, records[start:end]); err != nil {
			return start, fmt.Errorf("upsert batch at %d: %w", start, err)
		}
		s.logger.Info("Upserted batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(records)),
		)
	}

	if err := s.repo.Flush(ctx); err != nil {
		return len(records), fmt.Errorf("flush: %w", err)
	}

	metrics.RecordsIngestedTotal.Add(float64(len(records)))
	s.logger.Info("Ingestion complete",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("dim", dim),
	)
	return len(records), nil
}
