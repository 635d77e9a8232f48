// Package retrieve implements similarity retrieval, exact-match listing and
// price aggregation over the product catalog.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"github.com/retidev/preciorag/internal/domain"
	"github.com/retidev/preciorag/internal/domain/filter"
	"github.com/retidev/preciorag/internal/domain/metric"
	"github.com/retidev/preciorag/internal/domain/product"
)

// maxPage bounds listing and aggregation reads. Larger requests are
// answered with a truncated page, never an unbounded scan.
const maxPage = 1000

// groupKeys are the fields aggregation may group by.
var groupKeys = map[string]struct{}{
	"store":    {},
	"category": {},
	"country":  {},
	"brand":    {},
}

// Group is one price aggregation bucket.
type Group struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// Service handles catalog retrieval.
type Service struct {
	repo   Repository
	embed  Embedder
	metric metric.Metric
}

// New creates a retrieval service.
func New(repo Repository, embed Embedder, m metric.Metric) *Service {
	return &Service{repo: repo, embed: embed, metric: m}
}

// Retrieve embeds the question and returns the hits whose score passes the
// threshold, in the store's ranking order. Zero hits is a valid outcome.
func (s *Service) Retrieve(
	ctx context.Context, query string, filters filter.Spec, topK int, threshold float64,
) ([]product.Hit, error) {
	expr, err := filter.Expr(filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}

	vector, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	hits, err := s.repo.SearchHits(ctx, vector, expr, topK)
	if err != nil {
		return nil, fmt.Errorf("search hits: %w", err)
	}

	kept := hits[:0]
	for _, h := range hits {
		if s.metric.Accepts(h.Score, threshold) {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

// List returns records matching the filters, paginated. The page size is
// clamped to maxPage; truncated reports whether more records remained.
func (s *Service) List(
	ctx context.Context, filters filter.Spec, offset, limit int,
) ([]product.Record, bool, error) {
	expr, err := filter.Expr(filters)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPage {
		limit = maxPage
	}

	// One extra record detects truncation without a count query.
	records, err := s.repo.ListRecords(ctx, expr, offset, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("list records: %w", err)
	}

	truncated := len(records) > limit
	if truncated {
		records = records[:limit]
	}
	return records, truncated, nil
}

// Aggregate computes price statistics over at most one page of matching
// records, grouped by the given field. An empty groupBy yields one global
// group keyed "ALL"; records missing the group value fall into "N/A".
func (s *Service) Aggregate(
	ctx context.Context, filters filter.Spec, groupBy string,
) ([]Group, bool, error) {
	if groupBy != "" {
		if _, ok := groupKeys[groupBy]; !ok {
			return nil, false, fmt.Errorf("%w: cannot group by %q", domain.ErrBadRequest, groupBy)
		}
	}

	records, truncated, err := s.List(ctx, filters, 0, maxPage)
	if err != nil {
		return nil, false, err
	}

	buckets := make(map[string][]float64)
	for _, rec := range records {
		key := groupValue(rec, groupBy)
		buckets[key] = append(buckets[key], rec.Price)
	}

	groups := make([]Group, 0, len(buckets))
	for key, prices := range buckets {
		groups = append(groups, summarize(key, prices))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })

	return groups, truncated, nil
}

func groupValue(rec product.Record, groupBy string) string {
	if groupBy == "" {
		return "ALL"
	}
	var v string
	switch groupBy {
	case "store":
		v = rec.Store
	case "category":
		v = rec.Category
	case "country":
		v = rec.Country
	case "brand":
		v = rec.Brand
	}
	if v == "" {
		return "N/A"
	}
	return v
}

func summarize(key string, prices []float64) Group {
	g := Group{Key: key, Count: len(prices), Min: prices[0], Max: prices[0]}
	var sum float64
	for _, p := range prices {
		if p < g.Min {
			g.Min = p
		}
		if p > g.Max {
			g.Max = p
		}
		sum += p
	}
	g.Avg = sum / float64(len(prices))
	return g
}
