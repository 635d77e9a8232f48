package answer

import (
	"context"

	"github.com/retidev/preciorag/internal/domain/filter"
	"github.com/retidev/preciorag/internal/domain/product"
)

// Retriever supplies threshold-gated evidence for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters filter.Spec, topK int, threshold float64) ([]product.Hit, error)
}

// Generator produces grounded answer text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, emit func(string) error) error
}
