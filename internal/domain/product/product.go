// Package product defines the catalog record shared by ingestion, retrieval
// and the HTTP surface.
package product

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Record is one catalog product as persisted in the vector store.
type Record struct {
	ID            string    `json:"product_id"`
	Name          string    `json:"name"`
	Brand         string    `json:"brand"`
	Category      string    `json:"category"`
	Store         string    `json:"store"`
	Country       string    `json:"country"`
	Price         float64   `json:"price"`
	Unit          string    `json:"unit"`
	Size          float64   `json:"size"`
	Currency      string    `json:"currency"`
	LastSeen      int64     `json:"last_seen"`
	URL           string    `json:"url"`
	CanonicalText string    `json:"canonical_text"`
	Vector        []float32 `json:"-"`
}

// Hit is a retrieved record plus its similarity score.
// Score semantics depend on the configured metric: higher is better for
// inner product and cosine similarity, lower is better for distances.
type Hit struct {
	Record
	Score float64 `json:"score"`
}

// CanonicalText builds the normalized text used as embedding input.
// Deterministic: the same record always yields the same string. Skipped when
// the source row already carries curated canonical text.
func CanonicalText(r Record) string {
	return fmt.Sprintf("%s. Marca: %s. Categoría: %s. Presentación: %s%s. Precio: %s %s. Tienda: %s. País: %s.",
		r.Name, r.Brand, r.Category,
		formatFloat(r.Size), r.Unit,
		formatFloat(r.Price), r.Currency,
		r.Store, r.Country,
	)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// injectionRe matches prompt-injection trigger phrases embedded in product
// text; everything from the trigger on is dropped.
var injectionRe = regexp.MustCompile(`(?is)(ignore|override|disregard).*`)

// Sanitize strips prompt-injection payloads and code fences from free text.
// It runs on every record leaving the system or entering a generation
// prompt; it is a security control, not formatting.
func Sanitize(text string) string {
	text = injectionRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}
