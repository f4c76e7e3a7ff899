package domain

import "strings"

// FlowCode is the ordinal 0-4 summary of an item's route shape.
type FlowCode int

const (
	// FlowPreArrival: no observed events yet.
	FlowPreArrival FlowCode = iota
	// FlowDirect: port to site, no warehouse stop.
	FlowDirect
	// FlowSingleWarehouse: exactly one warehouse, offshore base not involved.
	FlowSingleWarehouse
	// FlowOffshoreStaged: one warehouse and it is the offshore marshalling base.
	FlowOffshoreStaged
	// FlowMultiWarehouse: two or more distinct warehouses.
	FlowMultiWarehouse
)

var flowCodeLabels = map[FlowCode]string{
	FlowPreArrival:      "Pre-Arrival",
	FlowDirect:          "Direct",
	FlowSingleWarehouse: "Single Warehouse",
	FlowOffshoreStaged:  "Offshore Staged",
	FlowMultiWarehouse:  "Multi Warehouse",
}

var flowCodeValues = map[string]FlowCode{
	"pre-arrival":      FlowPreArrival,
	"direct":           FlowDirect,
	"single warehouse": FlowSingleWarehouse,
	"offshore staged":  FlowOffshoreStaged,
	"multi warehouse":  FlowMultiWarehouse,
}

// FlowCodeLabel returns a human-readable label for a flow code.
func FlowCodeLabel(code FlowCode) string {
	if label, ok := flowCodeLabels[code]; ok {
		return label
	}

	return "Unknown"
}

// ParseFlowCode returns the flow code for a given label (case-insensitive).
func ParseFlowCode(label string) (FlowCode, bool) {
	code, ok := flowCodeValues[strings.ToLower(strings.TrimSpace(label))]

	return code, ok
}
