package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/domain"
)

// ClassifyTransitions labels an item's movement legs from its ordered event
// sequence. The first event anchors the sequence: a warehouse start is that
// warehouse's inbound, a site start is a direct shipment. Each later event
// pairs with its predecessor as a warehouse-to-warehouse transfer or a
// warehouse-to-site outbound. Events after a site arrival are anomalous;
// the item is considered delivered, so they are warned about and dropped.
func ClassifyTransitions(it domain.ItemEvents) ([]domain.Transition, []domain.Warning) {
	if len(it.Events) == 0 {
		return nil, nil
	}

	weight := it.Item.Weight()
	transitions := make([]domain.Transition, 0, len(it.Events))
	var warnings []domain.Warning

	first := it.Events[0]
	kind := domain.TransitionInbound
	if first.Loc.Kind == domain.KindTerminal {
		kind = domain.TransitionDirect
	}
	transitions = append(transitions, domain.Transition{
		ItemID: it.Item.ID,
		To:     first.Loc,
		Date:   first.Date,
		Qty:    weight,
		Kind:   kind,
	})

	// delivered is set at the first site arrival; everything observed after
	// it is anomalous and excluded from classification.
	delivered := first.Loc.Kind == domain.KindTerminal

	for i := 1; i < len(it.Events); i++ {
		prev, curr := it.Events[i-1], it.Events[i]

		if delivered {
			w := domain.Warning{
				Kind:     domain.WarnPostTerminalEvent,
				ItemID:   it.Item.ID,
				Location: curr.Loc.Name,
				Detail:   "event after site arrival",
			}
			warnings = append(warnings, w)
			log.Warn().
				Str("item", it.Item.ID).
				Str("location", curr.Loc.Name).
				Time("date", curr.Date).
				Msg("activity after site arrival, dropping event")
			continue
		}

		// prev is a warehouse here.
		switch {
		case curr.Loc.Kind == domain.KindTerminal:
			transitions = append(transitions, domain.Transition{
				ItemID: it.Item.ID,
				From:   prev.Loc,
				To:     curr.Loc,
				Date:   curr.Date,
				Qty:    weight,
				Kind:   domain.TransitionOutbound,
			})
			delivered = true
		case curr.Loc != prev.Loc:
			transitions = append(transitions, domain.Transition{
				ItemID: it.Item.ID,
				From:   prev.Loc,
				To:     curr.Loc,
				Date:   curr.Date,
				Qty:    weight,
				Kind:   domain.TransitionTransfer,
			})
		default:
			// Repeated observation at the same warehouse; nothing moved.
		}
	}

	return transitions, warnings
}
