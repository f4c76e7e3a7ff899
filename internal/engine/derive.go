// Package engine reconstructs per-item movement paths from the wide,
// sparse item-by-location date table, classifies each movement leg,
// aggregates monthly per-warehouse flow KPIs and reconciles running
// inventory. All inputs are materialized in memory before processing; the
// engine performs no I/O of its own.
package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/taxonomy"
)

// defaultDateLayouts are tried in order when no layouts are configured.
var defaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02-Jan-2006",
	"1/2/2006",
}

// DeriveEvents converts item rows into per-item, time-ordered event
// sequences. Cells in untracked columns are skipped silently; cells whose
// date does not parse are warned about and treated as empty. A row without
// an item identifier is fatal and aborts the derivation.
//
// Same-day observations at multiple locations are resolved into a canonical
// order: warehouses before sites, and among warehouses the configured
// priority (lower first). Every downstream classification depends on this
// ordering.
func DeriveEvents(rows []domain.ItemRow, reg *taxonomy.Registry, layouts []string) ([]domain.ItemEvents, []domain.Warning, error) {
	if len(layouts) == 0 {
		layouts = defaultDateLayouts
	}

	items := make([]domain.ItemEvents, 0, len(rows))
	var warnings []domain.Warning

	for i, row := range rows {
		id := strings.TrimSpace(row.ItemID)
		if id == "" {
			return nil, nil, fmt.Errorf("row %d: missing item identifier: %w", i, domain.ErrInvalidInputShape)
		}

		it := domain.ItemEvents{
			Item: domain.Item{ID: id, PkgQty: row.PkgQty, Vendor: row.Vendor},
		}

		for column, cell := range row.Cells {
			loc, tracked := reg.Lookup(column)
			if !tracked {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			date, ok := parseDate(cell, layouts)
			if !ok {
				w := domain.Warning{
					Kind:     domain.WarnUnparseableDate,
					ItemID:   id,
					Location: loc.Name,
					Detail:   cell,
				}
				warnings = append(warnings, w)
				log.Warn().
					Str("item", id).
					Str("location", loc.Name).
					Str("cell", cell).
					Msg("unparseable date, treating cell as empty")
				continue
			}
			it.Events = append(it.Events, domain.Event{Loc: loc, Date: date})
		}

		sortEvents(it.Events)
		items = append(items, it)
	}

	return items, warnings, nil
}

// sortEvents orders events by date ascending, breaking same-day ties by
// warehouse priority. Sites carry no priority and always sort after any
// same-day warehouse; same-day sites fall back to name order so the result
// is fully deterministic.
func sortEvents(events []domain.Event) {
	sort.SliceStable(events, func(a, b int) bool {
		ea, eb := events[a], events[b]
		if !ea.Date.Equal(eb.Date) {
			return ea.Date.Before(eb.Date)
		}
		ra, rb := tieRank(ea.Loc), tieRank(eb.Loc)
		if ra != rb {
			return ra < rb
		}
		return ea.Loc.Name < eb.Loc.Name
	})
}

func tieRank(loc *domain.Location) int {
	if loc.Kind == domain.KindIntermediate {
		return loc.Priority
	}
	// Past any configurable warehouse priority.
	return 1 << 30
}

func parseDate(cell string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
