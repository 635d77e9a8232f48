package retrieve

import (
	"context"

	"github.com/retidev/preciorag/internal/domain/product"
)

// Repository defines the catalog storage contract for retrieval.
type Repository interface {
	SearchHits(ctx context.Context, vector []float32, expr string, topK int) ([]product.Hit, error)
	ListRecords(ctx context.Context, expr string, offset, limit int) ([]product.Record, error)
}

// Embedder vectorizes question text. The injected implementation already
// carries the query-side instruction prefix.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
