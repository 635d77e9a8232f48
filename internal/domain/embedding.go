package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder vectorizes multiple texts in a single call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthChecker verifies backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbedAll vectorizes texts through e, using EmbedBatch when the backend
// supports it and falling back to one Embed call per text otherwise.
// Returns the vectors and their dimension, inferred from the first vector.
// All vectors in a batch must share that dimension.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, int, error) {
	var (
		vecs [][]float32
		err  error
	)
	if be, ok := e.(BatchEmbedder); ok {
		vecs, err = be.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, 0, fmt.Errorf("batch embed: %w", err)
		}
	} else {
		vecs = make([][]float32, len(texts))
		for i, t := range texts {
			vecs[i], err = e.Embed(ctx, t)
			if err != nil {
				return nil, 0, fmt.Errorf("embed [%d]: %w", i, err)
			}
		}
	}

	if len(vecs) == 0 {
		return nil, 0, nil
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) != dim {
			return nil, 0, fmt.Errorf("inconsistent embedding dimension at [%d]: got %d, want %d", i, len(v), dim)
		}
	}
	return vecs, dim, nil
}

// InstructionEmbedder prepends a retrieval-style instruction ("query: ",
// "passage: ") before embedding. Models trained with such framing need the
// same prefix at query and ingest time; the prefix comes from configuration.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
// An empty instruction returns the inner embedder unchanged.
func NewInstructionEmbedder(inner Embedder, instruction string) Embedder {
	if instruction == "" {
		return inner
	}
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prepends the instruction and delegates to the inner embedder.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return nil, fmt.Errorf("instruction embed: %w", err)
	}
	return vec, nil
}

// EmbedBatch prepends the instruction to each text and delegates batching
// to the inner embedder when supported.
func (e *InstructionEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}
	if be, ok := e.inner.(BatchEmbedder); ok {
		vecs, err := be.EmbedBatch(ctx, prefixed)
		if err != nil {
			return nil, fmt.Errorf("instruction batch embed: %w", err)
		}
		return vecs, nil
	}
	vecs := make([][]float32, len(prefixed))
	for i, t := range prefixed {
		v, err := e.inner.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("instruction embed [%d]: %w", i, err)
		}
		vecs[i] = v
	}
	return vecs, nil
}
