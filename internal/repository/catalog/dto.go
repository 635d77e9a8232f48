package catalog

import (
	"github.com/retidev/preciorag/internal/db"
	"github.com/retidev/preciorag/internal/domain/product"
)

// recordFromFields converts one store result row into a domain record.
// Drivers return numerics as different widths, so values are coerced.
// Free-text fields are sanitized at this boundary so nothing downstream
// ever sees raw catalog text.
func recordFromFields(f db.Fields) product.Record {
	return product.Record{
		ID:            asString(f[db.FieldID]),
		Name:          product.Sanitize(asString(f[db.FieldName])),
		Brand:         product.Sanitize(asString(f[db.FieldBrand])),
		Category:      asString(f[db.FieldCategory]),
		Store:         asString(f[db.FieldStore]),
		Country:       asString(f[db.FieldCountry]),
		Price:         asFloat64(f[db.FieldPrice]),
		Unit:          asString(f[db.FieldUnit]),
		Size:          asFloat64(f[db.FieldSize]),
		Currency:      asString(f[db.FieldCurrency]),
		LastSeen:      asInt64(f[db.FieldLastSeen]),
		URL:           asString(f[db.FieldURL]),
		CanonicalText: product.Sanitize(asString(f[db.FieldCanonicalText])),
	}
}

// columnsFromRecords transposes records into the store's column batch.
func columnsFromRecords(records []product.Record) *db.RecordColumns {
	n := len(records)
	cols := &db.RecordColumns{
		IDs:            make([]string, n),
		Names:          make([]string, n),
		Brands:         make([]string, n),
		Categories:     make([]string, n),
		Stores:         make([]string, n),
		Countries:      make([]string, n),
		Prices:         make([]float64, n),
		Units:          make([]string, n),
		Sizes:          make([]float64, n),
		Currencies:     make([]string, n),
		LastSeen:       make([]int64, n),
		URLs:           make([]string, n),
		CanonicalTexts: make([]string, n),
		Vectors:        make([][]float32, n),
	}
	for i, rec := range records {
		cols.IDs[i] = rec.ID
		cols.Names[i] = rec.Name
		cols.Brands[i] = rec.Brand
		cols.Categories[i] = rec.Category
		cols.Stores[i] = rec.Store
		cols.Countries[i] = rec.Country
		cols.Prices[i] = rec.Price
		cols.Units[i] = rec.Unit
		cols.Sizes[i] = rec.Size
		cols.Currencies[i] = rec.Currency
		cols.LastSeen[i] = rec.LastSeen
		cols.URLs[i] = rec.URL
		cols.CanonicalTexts[i] = rec.CanonicalText
		cols.Vectors[i] = rec.Vector
	}
	return cols
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case int:
		return float64(x)
	}
	return 0
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float64:
		return int64(x)
	}
	return 0
}
