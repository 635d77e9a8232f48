package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const fullHeader = "product_id,name,brand,category,store,country,price,unit,size,currency,last_seen,url,canonical_text\n"

func TestReadRows_ParsesCompleteRow(t *testing.T) {
	path := writeCSV(t, fullHeader+
		`p-001,Arroz La Merced,La Merced,granos,Exito,CO,4500,g,900,COP,1756684800000,https://example.com/p-001,texto curado`+"\n")

	records, err := ReadRows(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	r := records[0]
	if r.ID != "p-001" || r.Name != "Arroz La Merced" || r.Price != 4500 || r.Size != 900 {
		t.Errorf("record = %+v", r)
	}
	if r.LastSeen != 1756684800000 {
		t.Errorf("last_seen = %d", r.LastSeen)
	}
	if r.CanonicalText != "texto curado" {
		t.Errorf("curated canonical text replaced: %q", r.CanonicalText)
	}
}

func TestReadRows_HeaderOrderDoesNotMatter(t *testing.T) {
	path := writeCSV(t, "name,product_id,price\nArroz,p-001,4500\n")

	records, err := ReadRows(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].ID != "p-001" || records[0].Price != 4500 {
		t.Errorf("record = %+v", records[0])
	}
}

func TestReadRows_EmptyNumericsDefaultToZero(t *testing.T) {
	path := writeCSV(t, fullHeader+`p-001,Arroz,,,,,,,,,,,`+"\n")

	records, err := ReadRows(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Price != 0 || records[0].Size != 0 {
		t.Errorf("price=%v size=%v", records[0].Price, records[0].Size)
	}
}

func TestReadRows_EmptyLastSeenDefaultsToNow(t *testing.T) {
	before := time.Now().UnixMilli()
	path := writeCSV(t, "product_id,name,last_seen\np-001,Arroz,\n")

	records, err := ReadRows(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := time.Now().UnixMilli()
	if records[0].LastSeen < before || records[0].LastSeen > after {
		t.Errorf("last_seen = %d, want within [%d, %d]", records[0].LastSeen, before, after)
	}
}

func TestReadRows_MalformedPriceFailsWithLine(t *testing.T) {
	path := writeCSV(t, "product_id,name,price\np-001,Arroz,4500\np-002,Frijol,abc\n")

	_, err := ReadRows(path)
	if err == nil {
		t.Fatal("expected error for malformed price")
	}
	if !strings.Contains(err.Error(), "line 3") || !strings.Contains(err.Error(), "price") {
		t.Errorf("error lacks context: %v", err)
	}
}

func TestReadRows_DerivesCanonicalText(t *testing.T) {
	path := writeCSV(t,
		"product_id,name,brand,category,store,country,price,unit,size,currency\n"+
			"p-001,Arroz La Merced,La Merced,granos,Exito,CO,4500,g,900,COP\n")

	records, err := ReadRows(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Arroz La Merced. Marca: La Merced. Categoría: granos. Presentación: 900g. Precio: 4500 COP. Tienda: Exito. País: CO."
	if records[0].CanonicalText != want {
		t.Errorf("canonical text =\n%q\nwant\n%q", records[0].CanonicalText, want)
	}
}

func TestReadRows_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty product_id", "product_id,name\n,Arroz\n"},
		{"empty name", "product_id,name\np-001,\n"},
		{"header without product_id", "name,price\nArroz,4500\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadRows(writeCSV(t, tc.csv)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReadRows_MissingFile(t *testing.T) {
	if _, err := ReadRows(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
