package catalog

import (
	"context"

	"github.com/retidev/preciorag/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	ensureFn func(ctx context.Context, dim int) error
	searchFn func(ctx context.Context, vector []float32, expr string, topK int) ([]db.Candidate, error)
	queryFn  func(ctx context.Context, expr string, offset, limit int) ([]db.Fields, error)
	upsertFn func(ctx context.Context, batch *db.RecordColumns) error
	flushFn  func(ctx context.Context) error
}

func (m *mockStore) EnsureCollection(ctx context.Context, dim int) error {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, dim)
	}
	return nil
}

func (m *mockStore) Search(ctx context.Context, vector []float32, expr string, topK int) ([]db.Candidate, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, vector, expr, topK)
	}
	return nil, nil
}

func (m *mockStore) Query(ctx context.Context, expr string, offset, limit int) ([]db.Fields, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, expr, offset, limit)
	}
	return nil, nil
}

func (m *mockStore) Upsert(ctx context.Context, batch *db.RecordColumns) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, batch)
	}
	return nil
}

func (m *mockStore) Flush(ctx context.Context) error {
	if m.flushFn != nil {
		return m.flushFn(ctx)
	}
	return nil
}
