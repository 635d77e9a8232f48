package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/retidev/preciorag/internal/domain/product"
)

// ReadRows parses a catalog CSV into records, mapping columns by header
// name so column order does not matter. Empty price and size default to 0,
// empty last_seen defaults to now, and a missing canonical_text is derived
// from the record. Malformed numerics fail the whole file.
func ReadRows(path string) ([]product.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{"product_id", "name"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv header missing required column %q", required)
		}
	}

	now := time.Now().UnixMilli()

	var records []product.Record
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		rec, err := parseRow(row, cols, now)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, cols map[string]int, now int64) (product.Record, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	rec := product.Record{
		ID:            get("product_id"),
		Name:          get("name"),
		Brand:         get("brand"),
		Category:      get("category"),
		Store:         get("store"),
		Country:       get("country"),
		Unit:          get("unit"),
		Currency:      get("currency"),
		URL:           get("url"),
		CanonicalText: get("canonical_text"),
	}

	if rec.ID == "" {
		return product.Record{}, fmt.Errorf("empty product_id")
	}
	if rec.Name == "" {
		return product.Record{}, fmt.Errorf("empty name for product %q", rec.ID)
	}

	var err error
	if rec.Price, err = parseFloatField("price", get("price")); err != nil {
		return product.Record{}, err
	}
	if rec.Size, err = parseFloatField("size", get("size")); err != nil {
		return product.Record{}, err
	}

	if raw := get("last_seen"); raw == "" {
		rec.LastSeen = now
	} else {
		rec.LastSeen, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return product.Record{}, fmt.Errorf("invalid last_seen %q: %w", raw, err)
		}
	}

	if rec.CanonicalText == "" {
		rec.CanonicalText = product.CanonicalText(rec)
	}
	return rec, nil
}

func parseFloatField(name, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}
