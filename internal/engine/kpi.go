package engine

import (
	"sort"
	"time"

	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/taxonomy"
)

type kpiKey struct {
	Location string
	Month    time.Time
}

// KPITable accumulates package-quantity-weighted monthly flow counters per
// warehouse. Tables are cheap to build per worker and merged by key, so the
// item-parallel phase never shares one. Counters exist for warehouses only;
// sites hold no inventory.
type KPITable struct {
	reg   *taxonomy.Registry
	cells map[kpiKey]*domain.MonthlyKPI

	// Observed window, normalized months. Zero until the first Add.
	start time.Time
	end   time.Time
}

// NewKPITable returns an empty table over reg's warehouse set.
func NewKPITable(reg *taxonomy.Registry) *KPITable {
	return &KPITable{
		reg:   reg,
		cells: make(map[kpiKey]*domain.MonthlyKPI),
	}
}

// Add buckets one transition into the table:
//
//   - Inbound counts InboundQty at the destination warehouse.
//   - Outbound counts OutboundQty at the source warehouse.
//   - Transfer counts TransferQty at the source and InboundQty at the
//     destination, since the destination warehouse genuinely receives the
//     item.
//   - Direct touches no warehouse; it only extends the observed window.
//
// Synthetic corrections must not be re-aggregated and are ignored.
func (t *KPITable) Add(tr domain.Transition) {
	if tr.Synthetic {
		return
	}

	month := domain.MonthOf(tr.Date)
	t.extendWindow(month)

	switch tr.Kind {
	case domain.TransitionInbound:
		t.cell(tr.To.Name, month).InboundQty += tr.Qty
	case domain.TransitionOutbound:
		t.cell(tr.From.Name, month).OutboundQty += tr.Qty
	case domain.TransitionTransfer:
		t.cell(tr.From.Name, month).TransferQty += tr.Qty
		t.cell(tr.To.Name, month).InboundQty += tr.Qty
	case domain.TransitionDirect:
		// Window only.
	}
}

// Merge folds other into t. Used for the single-threaded reduction of
// per-worker partial tables; counter addition is commutative so merge
// order does not matter.
func (t *KPITable) Merge(other *KPITable) {
	for key, kpi := range other.cells {
		dst := t.cell(key.Location, key.Month)
		dst.InboundQty += kpi.InboundQty
		dst.OutboundQty += kpi.OutboundQty
		dst.TransferQty += kpi.TransferQty
	}
	if !other.start.IsZero() {
		t.extendWindow(other.start)
		t.extendWindow(other.end)
	}
}

// Window returns the first and last observed months. ok is false when
// nothing has been aggregated.
func (t *KPITable) Window() (start, end time.Time, ok bool) {
	return t.start, t.end, !t.start.IsZero()
}

// Get returns the counters for one warehouse month, zero-valued when no
// flow was recorded there.
func (t *KPITable) Get(location string, month time.Time) domain.MonthlyKPI {
	if kpi, ok := t.cells[kpiKey{Location: location, Month: domain.MonthOf(month)}]; ok {
		return *kpi
	}
	return domain.MonthlyKPI{Location: location, Month: domain.MonthOf(month)}
}

// Dense materializes the table as rows for every (warehouse, month) pair in
// the observed window, explicit zeros included, ordered by warehouse
// priority then month. Consumers can walk monthly stock without
// special-casing missing keys.
func (t *KPITable) Dense() []domain.MonthlyKPI {
	start, end, ok := t.Window()
	if !ok {
		return nil
	}

	var rows []domain.MonthlyKPI
	for _, loc := range t.reg.Warehouses() {
		for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
			rows = append(rows, t.Get(loc.Name, m))
		}
	}
	return rows
}

// Months lists the window months in ascending order.
func (t *KPITable) Months() []time.Time {
	start, end, ok := t.Window()
	if !ok {
		return nil
	}
	var months []time.Time
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

func (t *KPITable) cell(location string, month time.Time) *domain.MonthlyKPI {
	key := kpiKey{Location: location, Month: month}
	kpi, ok := t.cells[key]
	if !ok {
		kpi = &domain.MonthlyKPI{Location: location, Month: month}
		t.cells[key] = kpi
	}
	return kpi
}

func (t *KPITable) extendWindow(month time.Time) {
	if t.start.IsZero() || month.Before(t.start) {
		t.start = month
	}
	if t.end.IsZero() || month.After(t.end) {
		t.end = month
	}
}

// ComputeMonthlyKPIs aggregates classified transitions into a fresh table.
// The table is rebuilt from scratch on every run; there is no incremental
// mutation path.
func ComputeMonthlyKPIs(transitions []domain.Transition, reg *taxonomy.Registry) *KPITable {
	t := NewKPITable(reg)
	for _, tr := range transitions {
		t.Add(tr)
	}
	return t
}

// sortTransitions orders transitions for stable output: date, then item,
// then kind. Classification itself never depends on this order.
func sortTransitions(transitions []domain.Transition) {
	sort.SliceStable(transitions, func(a, b int) bool {
		ta, tb := transitions[a], transitions[b]
		if !ta.Date.Equal(tb.Date) {
			return ta.Date.Before(tb.Date)
		}
		if ta.ItemID != tb.ItemID {
			return ta.ItemID < tb.ItemID
		}
		return ta.Kind < tb.Kind
	})
}
