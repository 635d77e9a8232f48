// Package db defines the storage contracts consumed by repositories. The
// vector store holds the catalog; the key-value store backs the optional
// embedding cache.
package db

import (
	"context"
	"errors"
	"time"
)

// Collection field names. The driver builds the schema from these; the
// repositories read result fields by them.
const (
	FieldID            = "product_id"
	FieldName          = "name"
	FieldBrand         = "brand"
	FieldCategory      = "category"
	FieldStore         = "store"
	FieldCountry       = "country"
	FieldPrice         = "price"
	FieldUnit          = "unit"
	FieldSize          = "size"
	FieldCurrency      = "currency"
	FieldLastSeen      = "last_seen"
	FieldURL           = "url"
	FieldCanonicalText = "canonical_text"
	FieldEmbedding     = "embedding"
)

// ScalarFields lists every non-vector field, in schema order.
var ScalarFields = []string{
	FieldID, FieldName, FieldBrand, FieldCategory, FieldStore, FieldCountry,
	FieldPrice, FieldUnit, FieldSize, FieldCurrency, FieldLastSeen, FieldURL,
	FieldCanonicalText,
}

// Fields is one record as returned by the store, keyed by field name.
// Value types vary by driver; repositories coerce them.
type Fields map[string]any

// Candidate is one ranked similarity-search result.
type Candidate struct {
	Score  float64
	Fields Fields
}

// RecordColumns carries one write batch in column orientation, matching the
// store's insert shape. All slices must have equal length.
type RecordColumns struct {
	IDs            []string
	Names          []string
	Brands         []string
	Categories     []string
	Stores         []string
	Countries      []string
	Prices         []float64
	Units          []string
	Sizes          []float64
	Currencies     []string
	LastSeen       []int64
	URLs           []string
	CanonicalTexts []string
	Vectors        [][]float32
}

// Len returns the batch row count.
func (rc *RecordColumns) Len() int { return len(rc.IDs) }

// VectorStore is the catalog storage contract.
type VectorStore interface {
	// EnsureCollection idempotently creates the collection and its index,
	// or validates schema and vector dimension when it already exists.
	EnsureCollection(ctx context.Context, dim int) error
	// Search runs a similarity search and returns candidates in the
	// store's native ranking order (best first).
	Search(ctx context.Context, vector []float32, expr string, topK int) ([]Candidate, error)
	// Query returns unranked records matching an exact filter expression.
	Query(ctx context.Context, expr string, offset, limit int) ([]Fields, error)
	// Upsert writes one column batch keyed by product id.
	Upsert(ctx context.Context, batch *RecordColumns) error
	// Flush persists pending writes.
	Flush(ctx context.Context) error

	Ping(ctx context.Context) error
	Close()
}

// KV is the key-value contract for the embedding cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close()
}

// ErrKeyNotFound signals a cache miss.
var ErrKeyNotFound = errors.New("db: key not found")
