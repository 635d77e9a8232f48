package answer

import (
	"context"

	"github.com/retidev/preciorag/internal/domain/filter"
	"github.com/retidev/preciorag/internal/domain/product"
)

// mockRetriever implements Retriever for tests.
type mockRetriever struct {
	retrieveFn func(ctx context.Context, query string, filters filter.Spec, topK int, threshold float64) ([]product.Hit, error)
}

func (m *mockRetriever) Retrieve(
	ctx context.Context, query string, filters filter.Spec, topK int, threshold float64,
) ([]product.Hit, error) {
	if m.retrieveFn != nil {
		return m.retrieveFn(ctx, query, filters, topK, threshold)
	}
	return nil, nil
}

// mockGenerator implements Generator and records invocations.
type mockGenerator struct {
	generateFn func(ctx context.Context, prompt string) (string, error)
	streamFn   func(ctx context.Context, prompt string, emit func(string) error) error
	calls      int
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt)
	}
	return "respuesta", nil
}

func (m *mockGenerator) GenerateStream(ctx context.Context, prompt string, emit func(string) error) error {
	m.calls++
	if m.streamFn != nil {
		return m.streamFn(ctx, prompt, emit)
	}
	return emit("respuesta")
}
