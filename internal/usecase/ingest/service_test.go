package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/retidev/preciorag/internal/domain/product"
)

// mockRepo implements Repository and records the write sequence.
type mockRepo struct {
	provisionFn func(ctx context.Context, dim int) error
	upsertFn    func(ctx context.Context, records []product.Record) error
	flushed     bool
	batches     [][]product.Record
}

func (m *mockRepo) Provision(ctx context.Context, dim int) error {
	if m.provisionFn != nil {
		return m.provisionFn(ctx, dim)
	}
	return nil
}

func (m *mockRepo) UpsertRecords(ctx context.Context, records []product.Record) error {
	m.batches = append(m.batches, records)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, records)
	}
	return nil
}

func (m *mockRepo) Flush(context.Context) error {
	m.flushed = true
	return nil
}

// prefixEmbedder returns a fixed-dim vector and records inputs.
type prefixEmbedder struct {
	texts []string
}

func (e *prefixEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	return []float32{0.1, 0.2, 0.3}, nil
}

func csvWithRows(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("product_id,name,price\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "p-%04d,Producto %d,%d\n", i, i, 100+i)
	}
	return writeCSV(t, b.String())
}

func TestRun_EmbedsProvisionsAndUpserts(t *testing.T) {
	repo := &mockRepo{
		provisionFn: func(_ context.Context, dim int) error {
			if dim != 3 {
				t.Errorf("dim = %d, want inferred 3", dim)
			}
			return nil
		},
	}
	emb := &prefixEmbedder{}
	svc := New(repo, emb, 0, zap.NewNop())

	n, err := svc.Run(context.Background(), csvWithRows(t, 4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("ingested %d, want 4", n)
	}
	if len(emb.texts) != 4 {
		t.Errorf("embedded %d texts", len(emb.texts))
	}
	if len(repo.batches) != 1 || len(repo.batches[0]) != 4 {
		t.Errorf("batches = %d", len(repo.batches))
	}
	if repo.batches[0][0].Vector == nil {
		t.Error("records upserted without vectors")
	}
	if !repo.flushed {
		t.Error("flush not called")
	}
}

func TestRun_SplitsIntoBatches(t *testing.T) {
	repo := &mockRepo{}
	svc := New(repo, &prefixEmbedder{}, 3, zap.NewNop())

	n, err := svc.Run(context.Background(), csvWithRows(t, 8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 8 {
		t.Errorf("ingested %d", n)
	}
	if len(repo.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(repo.batches))
	}
	if len(repo.batches[0]) != 3 || len(repo.batches[2]) != 2 {
		t.Errorf("batch sizes = %d, %d, %d",
			len(repo.batches[0]), len(repo.batches[1]), len(repo.batches[2]))
	}
}

func TestRun_EmptyCSVIsNoop(t *testing.T) {
	repo := &mockRepo{
		provisionFn: func(context.Context, int) error {
			t.Fatal("provision called for empty file")
			return nil
		},
	}
	svc := New(repo, &prefixEmbedder{}, 0, zap.NewNop())

	n, err := svc.Run(context.Background(), writeCSV(t, "product_id,name\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d", n)
	}
}

func TestRun_UpsertFailureStopsPipeline(t *testing.T) {
	boom := errors.New("milvus gone")
	repo := &mockRepo{
		upsertFn: func(context.Context, []product.Record) error { return boom },
	}
	svc := New(repo, &prefixEmbedder{}, 0, zap.NewNop())

	_, err := svc.Run(context.Background(), csvWithRows(t, 2))
	if !errors.Is(err, boom) {
		t.Fatalf("expected upsert error, got %v", err)
	}
	if repo.flushed {
		t.Error("flush called after failed upsert")
	}
}

func TestRun_ParseFailureBeforeAnyWrite(t *testing.T) {
	repo := &mockRepo{
		provisionFn: func(context.Context, int) error {
			t.Fatal("provision called for malformed file")
			return nil
		},
	}
	svc := New(repo, &prefixEmbedder{}, 0, zap.NewNop())

	path := writeCSV(t, "product_id,name,price\np-001,Arroz,not-a-number\n")
	if _, err := svc.Run(context.Background(), path); err == nil {
		t.Fatal("expected parse error")
	}
	if len(repo.batches) != 0 {
		t.Error("records written despite parse failure")
	}
}
