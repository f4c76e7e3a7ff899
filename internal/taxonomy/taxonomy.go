// Package taxonomy holds the static classification of source table columns
// into tracked locations: warehouses with a tie-break priority order and
// final sites. Columns not present in either list are simply not tracked --
// source tables are known to carry extra metadata columns.
package taxonomy

import (
	"fmt"
	"strings"

	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/domain"
)

// Registry answers, for a column name: is it tracked, is it a warehouse or
// a site, and what is its tie-break priority. Built once at startup and
// read-only afterwards, so it is safe to share across workers.
type Registry struct {
	byName     map[string]*domain.Location
	warehouses []*domain.Location
	sites      []*domain.Location
	offshore   string
}

// New builds a Registry from injected configuration. Warehouse priority is
// positional: the first configured warehouse wins same-day tie-breaks.
func New(cfg config.TaxonomyConfig) (*Registry, error) {
	if len(cfg.Warehouses) == 0 {
		return nil, fmt.Errorf("taxonomy: at least one warehouse is required")
	}
	if len(cfg.Sites) == 0 {
		return nil, fmt.Errorf("taxonomy: at least one site is required")
	}

	r := &Registry{
		byName:   make(map[string]*domain.Location, len(cfg.Warehouses)+len(cfg.Sites)),
		offshore: Normalize(cfg.Offshore),
	}

	for i, name := range cfg.Warehouses {
		key := Normalize(name)
		if key == "" {
			return nil, fmt.Errorf("taxonomy: empty warehouse name at position %d", i)
		}
		if _, exists := r.byName[key]; exists {
			return nil, fmt.Errorf("taxonomy: duplicate location %q", name)
		}
		loc := &domain.Location{
			Name:     strings.Join(strings.Fields(name), " "),
			Kind:     domain.KindIntermediate,
			Priority: i + 1,
		}
		r.byName[key] = loc
		r.warehouses = append(r.warehouses, loc)
	}

	for _, name := range cfg.Sites {
		key := Normalize(name)
		if key == "" {
			return nil, fmt.Errorf("taxonomy: empty site name")
		}
		if _, exists := r.byName[key]; exists {
			return nil, fmt.Errorf("taxonomy: duplicate location %q", name)
		}
		loc := &domain.Location{
			Name: strings.Join(strings.Fields(name), " "),
			Kind: domain.KindTerminal,
		}
		r.byName[key] = loc
		r.sites = append(r.sites, loc)
	}

	if r.offshore != "" {
		loc, ok := r.byName[r.offshore]
		if !ok || loc.Kind != domain.KindIntermediate {
			return nil, fmt.Errorf("taxonomy: offshore location %q is not a configured warehouse", cfg.Offshore)
		}
	}

	return r, nil
}

// Normalize collapses runs of whitespace to single spaces, trims the ends
// and lowercases, so "DSV  Indoor " and "dsv indoor" match the same column.
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Lookup resolves a raw column name to its tracked location. The second
// return is false for untracked columns.
func (r *Registry) Lookup(column string) (*domain.Location, bool) {
	loc, ok := r.byName[Normalize(column)]
	return loc, ok
}

// Warehouses returns the warehouse locations in priority order.
func (r *Registry) Warehouses() []*domain.Location {
	return r.warehouses
}

// Sites returns the site locations.
func (r *Registry) Sites() []*domain.Location {
	return r.sites
}

// IsOffshore reports whether loc is the offshore marshalling base.
func (r *Registry) IsOffshore(loc *domain.Location) bool {
	if loc == nil || r.offshore == "" {
		return false
	}
	return Normalize(loc.Name) == r.offshore
}

// Default returns the registry for the project's standard location set.
func Default() *Registry {
	r, err := New(config.TaxonomyConfig{
		Warehouses: []string{
			"DSV Al Markaz",
			"DSV Indoor",
			"DSV Outdoor",
			"AAA Storage",
			"Hauler Indoor",
			"DSV MZP",
			"MOSB",
		},
		Sites:    []string{"AGI", "DAS", "MIR", "SHU"},
		Offshore: "MOSB",
	})
	if err != nil {
		// The built-in set is static; a failure here is a programming error.
		panic(err)
	}
	return r
}
