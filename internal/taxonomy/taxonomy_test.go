package taxonomy

import (
	"testing"

	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/domain"
)

func TestLookupClassifiesWarehousesAndSites(t *testing.T) {
	r := Default()

	loc, ok := r.Lookup("DSV Indoor")
	if !ok {
		t.Fatal("expected DSV Indoor to be tracked")
	}
	if loc.Kind != domain.KindIntermediate {
		t.Errorf("DSV Indoor kind = %v, want warehouse", loc.Kind)
	}

	loc, ok = r.Lookup("DAS")
	if !ok {
		t.Fatal("expected DAS to be tracked")
	}
	if loc.Kind != domain.KindTerminal {
		t.Errorf("DAS kind = %v, want site", loc.Kind)
	}
	if loc.Priority != 0 {
		t.Errorf("site priority = %d, want 0", loc.Priority)
	}
}

func TestLookupToleratesIrregularWhitespace(t *testing.T) {
	r := Default()

	cases := []string{
		"DSV  Al  Markaz",
		"  DSV Al Markaz  ",
		"dsv al markaz",
		"DSV\tAl Markaz",
	}
	for _, name := range cases {
		loc, ok := r.Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) not tracked", name)
		}
		if loc.Name != "DSV Al Markaz" {
			t.Errorf("Lookup(%q) = %q, want DSV Al Markaz", name, loc.Name)
		}
	}
}

func TestLookupSilentlySkipsUnknownColumns(t *testing.T) {
	r := Default()

	for _, name := range []string{"Vendor", "Remarks", "PKG No", ""} {
		if _, ok := r.Lookup(name); ok {
			t.Errorf("Lookup(%q) = tracked, want untracked", name)
		}
	}
}

func TestWarehousePriorityFollowsConfigOrder(t *testing.T) {
	r := Default()

	whs := r.Warehouses()
	if len(whs) != 7 {
		t.Fatalf("warehouse count = %d, want 7", len(whs))
	}
	for i := 1; i < len(whs); i++ {
		if whs[i].Priority <= whs[i-1].Priority {
			t.Errorf("priority not strictly increasing at %d: %d then %d",
				i, whs[i-1].Priority, whs[i].Priority)
		}
	}
	if whs[0].Name != "DSV Al Markaz" {
		t.Errorf("highest priority warehouse = %q, want DSV Al Markaz", whs[0].Name)
	}
	if whs[len(whs)-1].Name != "MOSB" {
		t.Errorf("lowest priority warehouse = %q, want MOSB", whs[len(whs)-1].Name)
	}
}

func TestIsOffshore(t *testing.T) {
	r := Default()

	mosb, _ := r.Lookup("MOSB")
	if !r.IsOffshore(mosb) {
		t.Error("MOSB should be offshore")
	}
	indoor, _ := r.Lookup("DSV Indoor")
	if r.IsOffshore(indoor) {
		t.Error("DSV Indoor should not be offshore")
	}
	if r.IsOffshore(nil) {
		t.Error("nil location should not be offshore")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.TaxonomyConfig
	}{
		{"no warehouses", config.TaxonomyConfig{Sites: []string{"DAS"}}},
		{"no sites", config.TaxonomyConfig{Warehouses: []string{"DSV Indoor"}}},
		{"duplicate across kinds", config.TaxonomyConfig{
			Warehouses: []string{"DSV Indoor"},
			Sites:      []string{"dsv  indoor"},
		}},
		{"offshore not a warehouse", config.TaxonomyConfig{
			Warehouses: []string{"DSV Indoor"},
			Sites:      []string{"DAS"},
			Offshore:   "DAS",
		}},
	}
	for _, tc := range cases {
		if _, err := New(tc.cfg); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}
