package ingest

import (
	"context"

	"github.com/retidev/preciorag/internal/domain/product"
)

// Repository defines the catalog storage contract for ingestion.
type Repository interface {
	Provision(ctx context.Context, dim int) error
	UpsertRecords(ctx context.Context, records []product.Record) error
	Flush(ctx context.Context) error
}

// Embedder vectorizes canonical texts. The injected implementation already
// carries the passage-side instruction prefix.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
