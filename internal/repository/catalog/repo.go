// Package catalog persists product records in the vector store and maps
// between domain records and the store's column and field shapes.
package catalog

import (
	"context"
	"fmt"

	"github.com/retidev/preciorag/internal/db"
	"github.com/retidev/preciorag/internal/domain/product"
)

// store is the consumer interface for the catalog (ISP).
type store interface {
	EnsureCollection(ctx context.Context, dim int) error
	Search(ctx context.Context, vector []float32, expr string, topK int) ([]db.Candidate, error)
	Query(ctx context.Context, expr string, offset, limit int) ([]db.Fields, error)
	Upsert(ctx context.Context, batch *db.RecordColumns) error
	Flush(ctx context.Context) error
}

// Repo implements the catalog repository over a vector store.
type Repo struct {
	store store
}

// New creates a catalog repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Provision ensures the backing collection exists with the given vector
// dimension and is ready to serve.
func (r *Repo) Provision(ctx context.Context, dim int) error {
	if err := r.store.EnsureCollection(ctx, dim); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return nil
}

// SearchHits runs a similarity search and returns hits in the store's
// ranking order. Free-text fields are sanitized on the way out.
func (r *Repo) SearchHits(ctx context.Context, vector []float32, expr string, topK int) ([]product.Hit, error) {
	candidates, err := r.store.Search(ctx, vector, expr, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]product.Hit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, product.Hit{
			Record: recordFromFields(c.Fields),
			Score:  c.Score,
		})
	}
	return hits, nil
}

// ListRecords returns records matching an exact filter expression,
// paginated by offset and limit.
func (r *Repo) ListRecords(ctx context.Context, expr string, offset, limit int) ([]product.Record, error) {
	rows, err := r.store.Query(ctx, expr, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	records := make([]product.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, recordFromFields(row))
	}
	return records, nil
}

// UpsertRecords writes records keyed by product id. Records with an
// existing id are replaced.
func (r *Repo) UpsertRecords(ctx context.Context, records []product.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := r.store.Upsert(ctx, columnsFromRecords(records)); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

// Flush persists pending writes.
func (r *Repo) Flush(ctx context.Context) error {
	if err := r.store.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
