// internal/domain/models.go
package domain

import (
	"errors"
	"time"
)

// ErrInvalidInputShape signals a malformed source row (e.g. missing item
// identifier). It is the only fatal class of input problem; everything else
// is recovered locally and surfaced as a Warning.
var ErrInvalidInputShape = errors.New("invalid input shape")

// LocationKind distinguishes warehouses from final sites.
type LocationKind int

const (
	// KindIntermediate is a warehouse: inventory is held transiently.
	KindIntermediate LocationKind = iota + 1
	// KindTerminal is a site: cargo leaves tracking once it arrives.
	KindTerminal
)

func (k LocationKind) String() string {
	switch k {
	case KindIntermediate:
		return "warehouse"
	case KindTerminal:
		return "site"
	}
	return "unknown"
}

// Location is a named place cargo can be observed at. The set is static,
// built once at startup from configuration. Priority orders warehouses for
// same-day tie-breaks (lower sorts first); sites carry no priority.
type Location struct {
	Name     string       `json:"name"`
	Kind     LocationKind `json:"kind"`
	Priority int          `json:"priority,omitempty"`
}

// Item is one cargo unit from the source table.
type Item struct {
	ID     string `json:"id" db:"item_id"`
	PkgQty int    `json:"pkg_qty" db:"pkg_qty"`
	Vendor string `json:"vendor,omitempty" db:"vendor"`
}

// Weight returns the package-quantity weight used for KPI aggregation,
// defaulting to 1 when the source left it unspecified.
func (i Item) Weight() int {
	if i.PkgQty > 0 {
		return i.PkgQty
	}
	return 1
}

// ItemRow is the normalized input shape the loader hands to the engine:
// one row per item, raw cell text keyed by raw column name. Columns that
// the taxonomy does not track are ignored downstream.
type ItemRow struct {
	ItemID string
	PkgQty int
	Vendor string
	Cells  map[string]string
}

// Event is one observation of an item at a location on a date, extracted
// from a non-empty cell. Events referencing the same shared *Location are
// cheap; the taxonomy owns the Location values.
type Event struct {
	Loc  *Location
	Date time.Time
}

// ItemEvents is an item's chronologically ordered observation sequence.
type ItemEvents struct {
	Item   Item
	Events []Event
}

// TransitionKind classifies one movement leg.
type TransitionKind int

const (
	// TransitionInbound is an arrival into a warehouse from outside tracking.
	TransitionInbound TransitionKind = iota + 1
	// TransitionTransfer is a lateral warehouse-to-warehouse move.
	TransitionTransfer
	// TransitionOutbound is a warehouse-to-site delivery.
	TransitionOutbound
	// TransitionDirect is a port-to-site delivery with no warehouse stop.
	TransitionDirect
)

var transitionKindLabels = map[TransitionKind]string{
	TransitionInbound:  "Inbound",
	TransitionTransfer: "Transfer",
	TransitionOutbound: "Outbound",
	TransitionDirect:   "Direct",
}

func (k TransitionKind) String() string {
	if label, ok := transitionKindLabels[k]; ok {
		return label
	}
	return "Unknown"
}

// Transition is one classified movement leg of an item. From is nil for the
// leg that anchors the item's first observed location. Synthetic marks
// corrections emitted by reconciliation rather than observed movements;
// downstream consumers must never mistake one for real data.
type Transition struct {
	ItemID    string         `json:"item_id" db:"item_id"`
	From      *Location      `json:"from,omitempty"`
	To        *Location      `json:"to"`
	Date      time.Time      `json:"date" db:"date"`
	Qty       int            `json:"qty" db:"qty"`
	Kind      TransitionKind `json:"kind" db:"kind"`
	Synthetic bool           `json:"synthetic" db:"synthetic"`
}

// MonthOf truncates t to the first day of its calendar month in UTC.
// All monthly keys are normalized through this helper so map lookups and
// equality checks on months are safe.
func MonthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthKey formats a normalized month as "2006-01".
func MonthKey(month time.Time) string {
	return month.Format("2006-01")
}

// MonthlyKPI is the per-location per-month flow aggregate. Quantities are
// package-quantity weighted, not raw event counts.
type MonthlyKPI struct {
	Location    string    `json:"location" db:"location"`
	Month       time.Time `json:"month" db:"month"`
	InboundQty  int       `json:"inbound_qty" db:"inbound_qty"`
	OutboundQty int       `json:"outbound_qty" db:"outbound_qty"`
	TransferQty int       `json:"transfer_qty" db:"transfer_qty"`
}

// StockPoint is one point of a warehouse's cumulative monthly stock series.
type StockPoint struct {
	Location string    `json:"location" db:"location"`
	Month    time.Time `json:"month" db:"month"`
	Stock    int       `json:"stock" db:"stock"`
}

// WarningKind enumerates the recoverable data-quality problems.
type WarningKind string

const (
	WarnUnparseableDate   WarningKind = "unparseable_date"
	WarnPostTerminalEvent WarningKind = "post_terminal_event"
	WarnNegativeStock     WarningKind = "negative_stock"
	WarnResidualStock     WarningKind = "residual_stock"
)

// Warning is a structured data-quality finding. Warnings are logged as they
// are detected and also collected on the run result so callers can act on
// them without scraping logs.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	ItemID   string      `json:"item_id,omitempty"`
	Location string      `json:"location,omitempty"`
	Month    time.Time   `json:"month,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	Qty      int         `json:"qty,omitempty"`
}

// UploadedFile represents an uploaded source file queued for processing.
type UploadedFile struct {
	Filename string
	Path     string
	Size     int64
}

// ReconciliationSummary is the compact run digest served to operational
// consumers (and cached between runs).
type ReconciliationSummary struct {
	RunAt          time.Time      `json:"run_at"`
	Items          int            `json:"items"`
	Events         int            `json:"events"`
	Transitions    int            `json:"transitions"`
	Corrections    int            `json:"corrections"`
	Warnings       int            `json:"warnings"`
	Balanced       bool           `json:"balanced"`
	ResidualByLoc  map[string]int `json:"residual_by_location,omitempty"`
	FlowCodeCounts map[string]int `json:"flow_code_counts,omitempty"`
}
