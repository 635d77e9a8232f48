package retrieve

import (
	"context"

	"github.com/retidev/preciorag/internal/domain/product"
)

// mockRepo implements Repository for tests.
type mockRepo struct {
	searchFn func(ctx context.Context, vector []float32, expr string, topK int) ([]product.Hit, error)
	listFn   func(ctx context.Context, expr string, offset, limit int) ([]product.Record, error)
}

func (m *mockRepo) SearchHits(ctx context.Context, vector []float32, expr string, topK int) ([]product.Hit, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, vector, expr, topK)
	}
	return nil, nil
}

func (m *mockRepo) ListRecords(ctx context.Context, expr string, offset, limit int) ([]product.Record, error) {
	if m.listFn != nil {
		return m.listFn(ctx, expr, offset, limit)
	}
	return nil, nil
}

// mockEmbedder implements Embedder for tests.
type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}
