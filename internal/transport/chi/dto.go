package chi

import (
	"fmt"

	"github.com/retidev/preciorag/internal/domain"
	"github.com/retidev/preciorag/internal/domain/filter"
	"github.com/retidev/preciorag/internal/domain/product"
	"github.com/retidev/preciorag/internal/usecase/retrieve"
)

type listRequest struct {
	Country  string `json:"country"`
	Store    string `json:"store"`
	Category string `json:"category"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
}

func (r *listRequest) filters() filter.Spec {
	spec := filter.Spec{}
	if r.Country != "" {
		spec["country"] = r.Country
	}
	if r.Store != "" {
		spec["store"] = r.Store
	}
	if r.Category != "" {
		spec["category"] = r.Category
	}
	return spec
}

type listResponse struct {
	Items     []product.Record `json:"items"`
	Total     int              `json:"total"`
	Truncated bool             `json:"truncated"`
}

type askRequest struct {
	Query            string  `json:"query"`
	TopK             int     `json:"top_k"`
	AbstainThreshold float64 `json:"abstain_threshold"`
}

type aggregateRequest struct {
	Filters map[string]string `json:"filters"`
	By      string            `json:"by"`
}

// filterableFields are the scalar fields clients may filter on. Keys are
// interpolated into the store expression, so only known field names pass.
var filterableFields = map[string]bool{
	"country":  true,
	"store":    true,
	"category": true,
	"brand":    true,
}

func (r *aggregateRequest) filters() (filter.Spec, error) {
	spec := filter.Spec{}
	for k, v := range r.Filters {
		if !filterableFields[k] {
			return nil, fmt.Errorf("unknown filter field %q: %w", k, domain.ErrBadRequest)
		}
		spec[k] = v
	}
	return spec, nil
}

type aggregateResponse struct {
	Groups    []retrieve.Group `json:"groups"`
	Total     int              `json:"total"`
	Truncated bool             `json:"truncated"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
