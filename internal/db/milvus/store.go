// Package milvus implements db.VectorStore over the Milvus Go SDK.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/retidev/preciorag/internal/db"
	"github.com/retidev/preciorag/internal/domain"
	"github.com/retidev/preciorag/internal/domain/metric"
)

// Compile-time check: Store implements db.VectorStore.
var _ db.VectorStore = (*Store)(nil)

// Index type names accepted in configuration.
const (
	IndexHNSW    = "hnsw"
	IndexIVFFlat = "ivf_flat"
)

// Config holds connection and collection parameters.
type Config struct {
	Host       string
	Port       int
	Collection string
	Index      string // hnsw, ivf_flat
	Metric     metric.Metric
	Timeout    time.Duration
}

// Store implements db.VectorStore via the Milvus gRPC client.
type Store struct {
	c          client.Client
	collection string
	index      string
	metricType entity.MetricType
	timeout    time.Duration
	loaded     bool
	// Set to false after the server rejects a native upsert; writes then
	// fall back to delete-matching-ids + insert.
	nativeUpsert bool
	logger       *zap.Logger
}

// NewStore dials the Milvus server. An unreachable server maps to
// domain.ErrConnection.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	mc, err := client.NewClient(dialCtx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("%w: dial milvus %s: %w", domain.ErrConnection, addr, err)
	}

	return &Store{
		c:            mc,
		collection:   cfg.Collection,
		index:        cfg.Index,
		metricType:   metricType(cfg.Metric),
		timeout:      cfg.Timeout,
		nativeUpsert: true,
		logger:       logger,
	}, nil
}

func metricType(m metric.Metric) entity.MetricType {
	switch m {
	case metric.Cosine:
		return entity.COSINE
	case metric.L2:
		return entity.L2
	default:
		return entity.IP
	}
}

// Ping checks server connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.c.ListCollections(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	_ = s.c.Close()
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureCollection creates the collection, index, and load state on first
// use; on later runs it validates the existing schema against dim.
func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	has, err := s.c.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: has collection: %w", domain.ErrConnection, err)
	}

	if !has {
		if err := s.create(ctx, dim); err != nil {
			return err
		}
	} else {
		desc, err := s.c.DescribeCollection(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("describe collection %q: %w", s.collection, err)
		}
		if err := validateSchema(desc.Schema, s.collection, dim); err != nil {
			return err
		}
	}

	if !s.loaded {
		if err := s.c.LoadCollection(ctx, s.collection, false); err != nil {
			return fmt.Errorf("load collection %q: %w", s.collection, err)
		}
		s.loaded = true
	}
	return nil
}

func (s *Store) create(ctx context.Context, dim int) error {
	schema := collectionSchema(s.collection, dim)
	if err := s.c.CreateCollection(ctx, schema, 1); err != nil {
		return fmt.Errorf("create collection %q: %w", s.collection, err)
	}

	idx, err := s.buildIndex()
	if err != nil {
		return err
	}
	if err := s.c.CreateIndex(ctx, s.collection, db.FieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("create index on %q: %w", s.collection, err)
	}

	s.logger.Info("created collection",
		zap.String("collection", s.collection),
		zap.Int("dim", dim),
		zap.String("index", s.index),
		zap.String("metric", string(s.metricType)),
	)
	return nil
}

func (s *Store) buildIndex() (entity.Index, error) {
	switch s.index {
	case IndexIVFFlat:
		idx, err := entity.NewIndexIvfFlat(s.metricType, 1024)
		if err != nil {
			return nil, fmt.Errorf("build ivf_flat index: %w", err)
		}
		return idx, nil
	default:
		idx, err := entity.NewIndexHNSW(s.metricType, 32, 200)
		if err != nil {
			return nil, fmt.Errorf("build hnsw index: %w", err)
		}
		return idx, nil
	}
}

func (s *Store) searchParam() (entity.SearchParam, error) {
	switch s.index {
	case IndexIVFFlat:
		sp, err := entity.NewIndexIvfFlatSearchParam(16)
		if err != nil {
			return nil, fmt.Errorf("build ivf_flat search param: %w", err)
		}
		return sp, nil
	default:
		sp, err := entity.NewIndexHNSWSearchParam(128)
		if err != nil {
			return nil, fmt.Errorf("build hnsw search param: %w", err)
		}
		return sp, nil
	}
}

// Search runs ANN search over the embedding field. Candidates come back in
// the server's ranking order with their raw scores.
func (s *Store) Search(ctx context.Context, vector []float32, expr string, topK int) ([]db.Candidate, error) {
	sp, err := s.searchParam()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	results, err := s.c.Search(
		ctx, s.collection, nil, expr, db.ScalarFields,
		[]entity.Vector{entity.FloatVector(vector)},
		db.FieldEmbedding, s.metricType, topK, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var out []db.Candidate
	for _, rs := range results {
		for i := 0; i < rs.ResultCount; i++ {
			fields, err := rowFields(rs.Fields, i)
			if err != nil {
				return nil, err
			}
			out = append(out, db.Candidate{
				Score:  float64(rs.Scores[i]),
				Fields: fields,
			})
		}
	}
	return out, nil
}

// Query returns records matching expr, paged by offset/limit. An empty expr
// matches the whole collection.
func (s *Store) Query(ctx context.Context, expr string, offset, limit int) ([]db.Fields, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rs, err := s.c.Query(
		ctx, s.collection, nil, expr, db.ScalarFields,
		client.WithOffset(int64(offset)), client.WithLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("milvus query: %w", err)
	}

	n := 0
	if len(rs) > 0 {
		n = rs[0].Len()
	}

	out := make([]db.Fields, 0, n)
	for i := 0; i < n; i++ {
		fields, err := rowFields(rs, i)
		if err != nil {
			return nil, err
		}
		out = append(out, fields)
	}
	return out, nil
}

func rowFields(cols []entity.Column, idx int) (db.Fields, error) {
	fields := make(db.Fields, len(cols))
	for _, col := range cols {
		v, err := col.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("read column %q row %d: %w", col.Name(), idx, err)
		}
		fields[col.Name()] = v
	}
	return fields, nil
}

// Upsert writes a batch keyed by product id. It prefers the server's atomic
// upsert and falls back to delete-then-insert when the server rejects it.
// Both paths are idempotent by id, so re-running a batch is safe.
func (s *Store) Upsert(ctx context.Context, batch *db.RecordColumns) error {
	if batch.Len() == 0 {
		return nil
	}
	cols, err := entityColumns(batch)
	if err != nil {
		return err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if s.nativeUpsert {
		_, err = s.c.Upsert(ctx, s.collection, "", cols...)
		if err == nil {
			return nil
		}
		if !isUnsupported(err) {
			return fmt.Errorf("milvus upsert: %w", err)
		}
		s.nativeUpsert = false
		s.logger.Warn("server does not support upsert, falling back to delete+insert", zap.Error(err))
	}

	if err := s.deleteByIDs(ctx, batch.IDs); err != nil {
		return err
	}
	if _, err := s.c.Insert(ctx, s.collection, "", cols...); err != nil {
		return fmt.Errorf("milvus insert: %w", err)
	}
	return nil
}

func (s *Store) deleteByIDs(ctx context.Context, ids []string) error {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	expr := fmt.Sprintf("%s in [%s]", db.FieldID, strings.Join(quoted, ", "))
	if err := s.c.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete existing ids: %w", err)
	}
	return nil
}

// Flush persists pending segments.
func (s *Store) Flush(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.c.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus flush: %w", err)
	}
	return nil
}

func entityColumns(batch *db.RecordColumns) ([]entity.Column, error) {
	if len(batch.Vectors) != batch.Len() {
		return nil, fmt.Errorf("batch has %d rows but %d vectors", batch.Len(), len(batch.Vectors))
	}
	dim := len(batch.Vectors[0])
	return []entity.Column{
		entity.NewColumnVarChar(db.FieldID, batch.IDs),
		entity.NewColumnVarChar(db.FieldName, batch.Names),
		entity.NewColumnVarChar(db.FieldBrand, batch.Brands),
		entity.NewColumnVarChar(db.FieldCategory, batch.Categories),
		entity.NewColumnVarChar(db.FieldStore, batch.Stores),
		entity.NewColumnVarChar(db.FieldCountry, batch.Countries),
		entity.NewColumnDouble(db.FieldPrice, batch.Prices),
		entity.NewColumnVarChar(db.FieldUnit, batch.Units),
		entity.NewColumnDouble(db.FieldSize, batch.Sizes),
		entity.NewColumnVarChar(db.FieldCurrency, batch.Currencies),
		entity.NewColumnInt64(db.FieldLastSeen, batch.LastSeen),
		entity.NewColumnVarChar(db.FieldURL, batch.URLs),
		entity.NewColumnVarChar(db.FieldCanonicalText, batch.CanonicalTexts),
		entity.NewColumnFloatVector(db.FieldEmbedding, dim, batch.Vectors),
	}, nil
}

func isUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not support") || strings.Contains(msg, "unsupported")
}
