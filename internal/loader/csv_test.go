package loader

import (
	"strings"
	"testing"
)

func TestParseCSVResolvesMetadataColumns(t *testing.T) {
	input := strings.Join([]string{
		"Item No,Pkg Q'ty,Vendor,DSV Indoor,DSV Outdoor,DAS,Remarks",
		"HE-0001,3,SGR,2024-01-05,,2024-02-10,urgent",
		"HE-0002,,SCT,,2024-01-12,,",
	}, "\n")

	rows, err := parseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("row count = %d, want 2", len(rows))
	}

	first := rows[0]
	if first.ItemID != "HE-0001" || first.PkgQty != 3 || first.Vendor != "SGR" {
		t.Errorf("metadata = %+v", first)
	}
	if first.Cells["DSV Indoor"] != "2024-01-05" {
		t.Errorf("cells = %+v", first.Cells)
	}
	if _, ok := first.Cells["DSV Outdoor"]; ok {
		t.Error("empty cell should not be materialized")
	}
	// The loader does not interpret location columns; extra columns ride
	// along and the taxonomy skips them later.
	if first.Cells["Remarks"] != "urgent" {
		t.Errorf("cells = %+v, want Remarks passed through", first.Cells)
	}

	if rows[1].PkgQty != 0 {
		t.Errorf("missing qty = %d, want 0 (engine defaults to 1)", rows[1].PkgQty)
	}
}

func TestParseCSVHeaderAliases(t *testing.T) {
	input := "CASE NO,PKG,DSV Indoor\nC-1,2,2024-01-05\n"
	rows, err := parseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].ItemID != "C-1" || rows[0].PkgQty != 2 {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestParseCSVRequiresIdentifierColumn(t *testing.T) {
	input := "DSV Indoor,DAS\n2024-01-05,\n"
	if _, err := parseCSV(strings.NewReader(input)); err == nil {
		t.Fatal("expected error for missing identifier column")
	}
}

func TestParseCSVRaggedRows(t *testing.T) {
	input := "Item No,DSV Indoor,DAS\nHE-1,2024-01-05\n"
	rows, err := parseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Cells["DSV Indoor"] != "2024-01-05" {
		t.Errorf("cells = %+v", rows[0].Cells)
	}
	if _, ok := rows[0].Cells["DAS"]; ok {
		t.Error("short row should leave trailing cells absent")
	}
}

func TestParseQty(t *testing.T) {
	cases := map[string]int{
		"3":     3,
		"1,200": 1200,
		"4.0":   4,
		"":      0,
		"n/a":   0,
	}
	for in, want := range cases {
		if got := parseQty(in); got != want {
			t.Errorf("parseQty(%q) = %d, want %d", in, got, want)
		}
	}
}
