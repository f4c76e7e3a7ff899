package engine

import (
	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/taxonomy"
)

// ClassifyFlowCode assigns the ordinal route-shape code for an item from
// its raw event sequence. The code is a pure function of the set of
// visited locations: only which warehouses were visited (and whether the
// offshore base is among them) matters, never the visit order, so
// recomputing from the same events always yields the same code.
func ClassifyFlowCode(it domain.ItemEvents, reg *taxonomy.Registry) domain.FlowCode {
	if len(it.Events) == 0 {
		return domain.FlowPreArrival
	}

	visited := make(map[*domain.Location]struct{})
	hasOffshore := false
	for _, ev := range it.Events {
		if ev.Loc.Kind != domain.KindIntermediate {
			continue
		}
		visited[ev.Loc] = struct{}{}
		if reg.IsOffshore(ev.Loc) {
			hasOffshore = true
		}
	}

	switch n := len(visited); {
	case n == 0:
		return domain.FlowDirect
	case n == 1 && hasOffshore:
		return domain.FlowOffshoreStaged
	case n == 1:
		return domain.FlowSingleWarehouse
	default:
		return domain.FlowMultiWarehouse
	}
}
