// Package metric models similarity-score semantics. The direction of
// "better" depends on the metric, so every score/threshold comparison in
// the system goes through this package instead of a hardcoded operator.
package metric

import "fmt"

// Metric identifies the similarity metric of the vector index.
type Metric string

const (
	// IP is inner product over normalized vectors; higher scores are better.
	IP Metric = "ip"
	// Cosine is cosine similarity; higher scores are better.
	Cosine Metric = "cosine"
	// L2 is Euclidean distance; lower scores are better.
	L2 Metric = "l2"
)

// Parse validates a configured metric name.
func Parse(s string) (Metric, error) {
	switch Metric(s) {
	case IP, Cosine, L2:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", s)
	}
}

// HigherIsBetter reports the score direction of the metric.
func (m Metric) HigherIsBetter() bool {
	return m != L2
}

// Accepts reports whether a candidate score passes the relevance threshold.
// The comparison is inclusive in both directions: a score exactly at the
// threshold is retained.
func (m Metric) Accepts(score, threshold float64) bool {
	if m.HigherIsBetter() {
		return score >= threshold
	}
	return score <= threshold
}

// Worst returns the least relevant score in the set: the minimum for
// similarity-style metrics, the maximum for distance-style metrics. The
// answer gate compares this score against the abstain threshold, so it
// answers only when the entire evidence set is relevant.
func (m Metric) Worst(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	worst := scores[0]
	for _, s := range scores[1:] {
		if m.HigherIsBetter() {
			if s < worst {
				worst = s
			}
		} else if s > worst {
			worst = s
		}
	}
	return worst
}
