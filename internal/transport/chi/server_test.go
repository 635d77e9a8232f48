package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/retidev/preciorag/internal/domain"
	"github.com/retidev/preciorag/internal/domain/metric"
	"github.com/retidev/preciorag/internal/domain/product"
	answeruc "github.com/retidev/preciorag/internal/usecase/answer"
	healthuc "github.com/retidev/preciorag/internal/usecase/health"
	retrieveuc "github.com/retidev/preciorag/internal/usecase/retrieve"
)

// stubRepo implements retrieve.Repository.
type stubRepo struct {
	hits      []product.Hit
	records   []product.Record
	searchErr error
	lastExpr  string
}

func (s *stubRepo) SearchHits(_ context.Context, _ []float32, expr string, _ int) ([]product.Hit, error) {
	s.lastExpr = expr
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.hits, nil
}

func (s *stubRepo) ListRecords(_ context.Context, expr string, _, limit int) ([]product.Record, error) {
	s.lastExpr = expr
	if len(s.records) > limit {
		return s.records[:limit], nil
	}
	return s.records, nil
}

// stubEmbedder implements retrieve.Embedder.
type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

// stubGenerator implements answer.Generator.
type stubGenerator struct {
	answer string
	chunks []string
	calls  int
}

func (s *stubGenerator) Generate(context.Context, string) (string, error) {
	s.calls++
	return s.answer, nil
}

func (s *stubGenerator) GenerateStream(_ context.Context, _ string, emit func(string) error) error {
	s.calls++
	for _, c := range s.chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return nil
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

type fixture struct {
	repo   *stubRepo
	embed  *stubEmbedder
	gen    *stubGenerator
	pinger *stubPinger
	router *chirouter.Mux
}

func newFixture() *fixture {
	f := &fixture{
		repo:   &stubRepo{},
		embed:  &stubEmbedder{},
		gen:    &stubGenerator{answer: "respuesta generada"},
		pinger: &stubPinger{},
	}
	retrieveSvc := retrieveuc.New(f.repo, f.embed, metric.IP)
	answerSvc := answeruc.New(retrieveSvc, f.gen, metric.IP,
		answeruc.Defaults{TopK: 5, AbstainThreshold: 0.35})
	healthSvc := healthuc.New(f.pinger, nil, nil)

	server := NewServer(retrieveSvc, answerSvc, healthSvc, zap.NewNop())
	f.router = chirouter.NewRouter()
	server.Routes(f.router)
	return f
}

func (f *fixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func riceHit(score float64) product.Hit {
	return product.Hit{
		Record: product.Record{ID: "p-001", Name: "Arroz La Merced", Country: "CO",
			Price: 4500, Currency: "COP", CanonicalText: "Arroz La Merced. Precio: 4500 COP."},
		Score: score,
	}
}

func TestListProducts_ReturnsItems(t *testing.T) {
	f := newFixture()
	f.repo.records = []product.Record{{ID: "p-001", Name: "Arroz"}, {ID: "p-002", Name: "Frijol"}}

	rr := f.post(t, "/products/list", `{"country": "CO", "store": "Exito", "limit": 10}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}

	var resp listResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Items) != 2 || resp.Truncated {
		t.Errorf("resp = %+v", resp)
	}
	if f.repo.lastExpr != `country == "CO" and store == "Exito"` {
		t.Errorf("expr = %q", f.repo.lastExpr)
	}
}

func TestListProducts_EmptyResultIsEmptyArray(t *testing.T) {
	f := newFixture()

	rr := f.post(t, "/products/list", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Errorf("items should be an empty array, body: %s", rr.Body.String())
	}
}

func TestListProducts_MalformedBody(t *testing.T) {
	f := newFixture()

	rr := f.post(t, "/products/list", `{`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestAsk_ReturnsAnswerAndHits(t *testing.T) {
	f := newFixture()
	f.repo.hits = []product.Hit{riceHit(0.9)}

	rr := f.post(t, "/ask", `{"query": "¿cuánto cuesta el arroz?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}

	var resp answeruc.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "respuesta generada" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].ID != "p-001" || resp.Hits[0].Score != 0.9 {
		t.Errorf("hits = %+v", resp.Hits)
	}
}

func TestAsk_AbstainsBelowThreshold(t *testing.T) {
	f := newFixture()
	f.repo.hits = []product.Hit{riceHit(0.1)}

	rr := f.post(t, "/ask", `{"query": "precio del caviar"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp answeruc.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "no data" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if f.gen.calls != 0 {
		t.Error("generator invoked on abstention")
	}
}

func TestAsk_MissingQueryIs400(t *testing.T) {
	f := newFixture()

	rr := f.post(t, "/ask", `{"query": "  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestAsk_EmbeddingFailureIs502(t *testing.T) {
	f := newFixture()
	f.embed.err = domain.ErrEmbeddingBackend

	rr := f.post(t, "/ask", `{"query": "arroz"}`)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "embedding_backend_error") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestAsk_StoreDownIs503(t *testing.T) {
	f := newFixture()
	f.repo.searchErr = domain.ErrConnection

	rr := f.post(t, "/ask", `{"query": "arroz"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestAskStream_EmitsSSEChunks(t *testing.T) {
	f := newFixture()
	f.repo.hits = []product.Hit{riceHit(0.9)}
	f.gen.chunks = []string{"El arroz ", "cuesta 4500 COP."}

	rr := f.post(t, "/ask/stream", `{"query": "arroz"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	want := "data: El arroz \n\ndata: cuesta 4500 COP.\n\n"
	if rr.Body.String() != want {
		t.Errorf("body = %q, want %q", rr.Body.String(), want)
	}
}

func TestAskStream_AbstainEmitsSingleNoDataEvent(t *testing.T) {
	f := newFixture()

	rr := f.post(t, "/ask/stream", `{"query": "caviar"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.String() != "data: no data\n\n" {
		t.Errorf("body = %q", rr.Body.String())
	}
	if f.gen.calls != 0 {
		t.Error("generator invoked on abstention")
	}
}

func TestAskStream_RetrievalFailureMapsBeforeFirstChunk(t *testing.T) {
	f := newFixture()
	f.embed.err = domain.ErrEmbeddingBackend

	rr := f.post(t, "/ask/stream", `{"query": "arroz"}`)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestAggregate_GroupsPrices(t *testing.T) {
	f := newFixture()
	f.repo.records = []product.Record{
		{ID: "1", Store: "A", Price: 10},
		{ID: "2", Store: "A", Price: 20},
		{ID: "3", Store: "B", Price: 5},
	}

	rr := f.post(t, "/products/aggregate", `{"by": "store"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}

	var resp aggregateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Groups) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Groups[0].Key != "A" || resp.Groups[0].Avg != 15 {
		t.Errorf("group A = %+v", resp.Groups[0])
	}
}

func TestAggregate_UnknownFilterFieldIs400(t *testing.T) {
	f := newFixture()

	rr := f.post(t, "/products/aggregate", `{"filters": {"a == \"x\" or country": "CO"}, "by": "store"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bad_request") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestAggregate_KnownFilterFieldsPassThrough(t *testing.T) {
	f := newFixture()
	f.repo.records = []product.Record{{ID: "1", Store: "A", Price: 10}}

	rr := f.post(t, "/products/aggregate", `{"filters": {"country": "CO", "brand": "Diana"}, "by": "store"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	if f.repo.lastExpr != `brand == "Diana" and country == "CO"` {
		t.Errorf("expr = %q", f.repo.lastExpr)
	}
}

func TestAggregate_UnknownGroupKeyIs400(t *testing.T) {
	f := newFixture()

	rr := f.post(t, "/products/aggregate", `{"by": "price"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHealth_OK(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestHealth_DegradedIs503(t *testing.T) {
	f := newFixture()
	f.pinger.err = domain.ErrConnection

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}
