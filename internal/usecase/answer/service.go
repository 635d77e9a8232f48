// Package answer implements grounded question answering with an abstention
// gate: the generator only ever sees questions backed by relevant evidence.
package answer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/retidev/preciorag/internal/domain/metric"
	"github.com/retidev/preciorag/internal/domain/product"
	"github.com/retidev/preciorag/internal/logger"
	"github.com/retidev/preciorag/internal/metrics"
)

// NoData is the exact abstention answer. Clients match on it literally.
const NoData = "no data"

// evidenceTextLimit caps each hit's canonical text inside the prompt.
const evidenceTextLimit = 500

// Result is a grounded answer with the evidence behind it.
type Result struct {
	Answer string        `json:"answer"`
	Hits   []product.Hit `json:"hits"`
}

// Defaults are applied when a request leaves topK or threshold unset.
type Defaults struct {
	TopK             int
	AbstainThreshold float64
}

// Service answers questions over the catalog.
type Service struct {
	retriever Retriever
	gen       Generator
	metric    metric.Metric
	defaults  Defaults
}

// New creates an answer service.
func New(retriever Retriever, gen Generator, m metric.Metric, defaults Defaults) *Service {
	return &Service{retriever: retriever, gen: gen, metric: m, defaults: defaults}
}

// Ask answers a question from retrieved evidence. When the evidence is
// empty or its worst score fails the threshold the answer is NoData and
// the generator is not invoked.
func (s *Service) Ask(ctx context.Context, query string, topK int, threshold float64) (*Result, error) {
	metrics.QuestionsTotal.Inc()
	topK, threshold = s.applyDefaults(topK, threshold)

	hits, err := s.retriever.Retrieve(ctx, query, nil, topK, threshold)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}

	if s.abstain(ctx, hits, threshold) {
		return &Result{Answer: NoData, Hits: hits}, nil
	}

	text, err := s.gen.Generate(ctx, BuildPrompt(query, hits))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &Result{Answer: strings.TrimSpace(text), Hits: hits}, nil
}

// AskStream streams the answer text through emit. On abstention a single
// NoData chunk is emitted and the generator is not invoked.
func (s *Service) AskStream(
	ctx context.Context, query string, topK int, threshold float64, emit func(string) error,
) error {
	metrics.QuestionsTotal.Inc()
	topK, threshold = s.applyDefaults(topK, threshold)

	hits, err := s.retriever.Retrieve(ctx, query, nil, topK, threshold)
	if err != nil {
		return fmt.Errorf("retrieve evidence: %w", err)
	}

	if s.abstain(ctx, hits, threshold) {
		return emit(NoData)
	}

	if err := s.gen.GenerateStream(ctx, BuildPrompt(query, hits), emit); err != nil {
		return fmt.Errorf("stream answer: %w", err)
	}
	return nil
}

func (s *Service) applyDefaults(topK int, threshold float64) (int, float64) {
	if topK <= 0 {
		topK = s.defaults.TopK
	}
	if threshold <= 0 {
		threshold = s.defaults.AbstainThreshold
	}
	return topK, threshold
}

// abstain decides whether the evidence supports an answer. The gate is on
// the worst score so a single weak hit cannot be papered over by strong
// neighbours.
func (s *Service) abstain(ctx context.Context, hits []product.Hit, threshold float64) bool {
	if len(hits) == 0 {
		metrics.AbstentionsTotal.Inc()
		return true
	}

	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	worst := s.metric.Worst(scores)
	if !s.metric.Accepts(worst, threshold) {
		logger.FromContext(ctx).Info("Abstaining",
			zap.Float64("worst_score", worst),
			zap.Float64("threshold", threshold),
			zap.Int("hits", len(hits)),
		)
		metrics.AbstentionsTotal.Inc()
		return true
	}
	return false
}

// BuildPrompt assembles the generation prompt: one evidence line per hit
// with its canonical text capped, then the question and the instruction to
// answer only from the evidence.
func BuildPrompt(question string, hits []product.Hit) string {
	var b strings.Builder
	b.WriteString("Eres un asistente de precios de productos de consumo masivo.\n")
	b.WriteString("Responde la pregunta usando únicamente la evidencia siguiente.\n")
	b.WriteString("Si la evidencia no contiene la respuesta, responde exactamente \"no data\".\n\n")
	b.WriteString("Evidencia:\n")

	for _, h := range hits {
		b.WriteString("- ")
		b.WriteString(h.Name)
		b.WriteString(" (")
		b.WriteString(h.Country)
		b.WriteString(") precio=")
		b.WriteString(strconv.FormatFloat(h.Price, 'g', -1, 64))
		b.WriteString(" ")
		b.WriteString(h.Currency)
		b.WriteString("\n")
		b.WriteString(truncate(h.CanonicalText, evidenceTextLimit))
		b.WriteString("\n")
	}

	b.WriteString("\nPregunta: ")
	b.WriteString(question)
	b.WriteString("\nRespuesta:")
	return b.String()
}

// truncate caps s at n runes so multi-byte text is never split mid-rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
