package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/domain"
)

// ReconcileOptions controls end-of-window residual handling.
type ReconcileOptions struct {
	// AutoCloseResidual emits a synthetic outbound correction for any
	// warehouse whose end-of-window stock is strictly positive, so every
	// warehouse balances to zero. When false the residual is reported as an
	// exception warning instead and left for manual reconciliation.
	AutoCloseResidual bool
}

// ReconcileInventory walks each warehouse's monthly flows in calendar order
// and accumulates running stock:
//
//	stock(m) = stock(m-1) + inbound(m) - outbound(m) - transferOut(m)
//
// Transfer receipts are already folded into the destination's inbound
// counter by the aggregation, so the transfer counter is pure out-flow here.
//
// Stock is not guaranteed non-negative: ordering gaps in the source can
// make it dip transiently below zero. That is warned about with location,
// month and magnitude, never clamped, so the true deficit stays visible at
// the final balance check.
//
// The returned stock series is the uncorrected one; corrections (when
// enabled) are returned separately with the Synthetic flag set, dated at
// the window's last month.
func ReconcileInventory(t *KPITable, opts ReconcileOptions) ([]domain.StockPoint, []domain.Transition, []domain.Warning) {
	months := t.Months()
	if len(months) == 0 {
		return nil, nil, nil
	}

	lastMonth := months[len(months)-1]

	var (
		series      []domain.StockPoint
		corrections []domain.Transition
		warnings    []domain.Warning
	)

	// Sequential per warehouse by construction, independent across them.
	for _, loc := range t.reg.Warehouses() {
		stock := 0
		for _, m := range months {
			kpi := t.Get(loc.Name, m)
			stock += kpi.InboundQty - kpi.OutboundQty - kpi.TransferQty
			series = append(series, domain.StockPoint{
				Location: loc.Name,
				Month:    m,
				Stock:    stock,
			})
			if stock < 0 {
				w := domain.Warning{
					Kind:     domain.WarnNegativeStock,
					Location: loc.Name,
					Month:    m,
					Qty:      stock,
					Detail:   "running stock below zero",
				}
				warnings = append(warnings, w)
				log.Warn().
					Str("location", loc.Name).
					Str("month", domain.MonthKey(m)).
					Int("stock", stock).
					Msg("transient negative stock")
			}
		}

		if stock <= 0 {
			continue
		}

		if opts.AutoCloseResidual {
			corrections = append(corrections, domain.Transition{
				From:      loc,
				Date:      lastMonth,
				Qty:       stock,
				Kind:      domain.TransitionOutbound,
				Synthetic: true,
			})
			log.Info().
				Str("location", loc.Name).
				Str("month", domain.MonthKey(lastMonth)).
				Int("qty", stock).
				Msg("forced closing-out of residual stock")
		} else {
			warnings = append(warnings, domain.Warning{
				Kind:     domain.WarnResidualStock,
				Location: loc.Name,
				Month:    lastMonth,
				Qty:      stock,
				Detail:   "residual stock at window end, manual reconciliation required",
			})
			log.Warn().
				Str("location", loc.Name).
				Str("month", domain.MonthKey(lastMonth)).
				Int("qty", stock).
				Msg("residual stock at window end")
		}
	}

	return series, corrections, warnings
}
