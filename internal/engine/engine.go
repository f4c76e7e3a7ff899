package engine

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/taxonomy"
)

// Engine runs the full reconstruction pipeline over a batch of item rows.
// Each invocation is stateless end-to-end; an Engine value only carries
// configuration and may be shared.
type Engine struct {
	reg       *taxonomy.Registry
	workers   int
	layouts   []string
	autoClose bool
}

// New creates an Engine over the given taxonomy.
func New(reg *taxonomy.Registry, cfg config.EngineConfig) *Engine {
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		reg:       reg,
		workers:   workers,
		layouts:   cfg.DateLayouts,
		autoClose: cfg.AutoCloseResidual,
	}
}

// Result is the complete output of one pipeline invocation.
type Result struct {
	Items       []domain.ItemEvents
	Transitions []domain.Transition
	FlowCodes   map[string]domain.FlowCode
	KPIs        *KPITable
	Stock       []domain.StockPoint
	Corrections []domain.Transition
	Warnings    []domain.Warning
}

// Run reconstructs, classifies, aggregates and reconciles the batch.
//
// Derivation, classification and flow coding are independent per item, so
// they fan out over a bounded worker pool; each worker accumulates a
// partial KPI table which is merged single-threaded before reconciliation.
// Output slices are ordered by input row, so identical input yields
// identical output regardless of scheduling.
func (e *Engine) Run(ctx context.Context, rows []domain.ItemRow) (*Result, error) {
	items, deriveWarnings, err := DeriveEvents(rows, e.reg, e.layouts)
	if err != nil {
		return nil, err
	}

	type itemOutput struct {
		transitions []domain.Transition
		warnings    []domain.Warning
		code        domain.FlowCode
	}

	outputs := make([]itemOutput, len(items))
	partials := make([]*KPITable, e.workers)

	g, ctx := errgroup.WithContext(ctx)
	indexes := make(chan int)

	g.Go(func() error {
		defer close(indexes)
		for i := range items {
			select {
			case indexes <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < e.workers; w++ {
		part := NewKPITable(e.reg)
		partials[w] = part
		g.Go(func() error {
			for i := range indexes {
				it := items[i]
				transitions, warnings := ClassifyTransitions(it)
				for _, tr := range transitions {
					part.Add(tr)
				}
				outputs[i] = itemOutput{
					transitions: transitions,
					warnings:    warnings,
					code:        ClassifyFlowCode(it, e.reg),
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Items:     items,
		FlowCodes: make(map[string]domain.FlowCode, len(items)),
		Warnings:  deriveWarnings,
	}

	kpis := NewKPITable(e.reg)
	for _, part := range partials {
		kpis.Merge(part)
	}
	result.KPIs = kpis

	for i, it := range items {
		result.Transitions = append(result.Transitions, outputs[i].transitions...)
		result.Warnings = append(result.Warnings, outputs[i].warnings...)
		result.FlowCodes[it.Item.ID] = outputs[i].code
	}
	sortTransitions(result.Transitions)

	stock, corrections, reconWarnings := ReconcileInventory(kpis, ReconcileOptions{
		AutoCloseResidual: e.autoClose,
	})
	result.Stock = stock
	result.Corrections = corrections
	result.Warnings = append(result.Warnings, reconWarnings...)

	return result, nil
}

// Summary condenses a result into the digest served to operational
// consumers. now is caller-supplied so output values never depend on a
// hidden clock.
func (r *Result) Summary(now time.Time) domain.ReconciliationSummary {
	events := 0
	for _, it := range r.Items {
		events += len(it.Events)
	}

	residual := make(map[string]int)
	for _, c := range r.Corrections {
		residual[c.From.Name] += c.Qty
	}
	for _, w := range r.Warnings {
		if w.Kind == domain.WarnResidualStock {
			residual[w.Location] += w.Qty
		}
	}

	codes := make(map[string]int)
	for _, code := range r.FlowCodes {
		codes[domain.FlowCodeLabel(code)]++
	}

	return domain.ReconciliationSummary{
		RunAt:          now,
		Items:          len(r.Items),
		Events:         events,
		Transitions:    len(r.Transitions),
		Corrections:    len(r.Corrections),
		Warnings:       len(r.Warnings),
		Balanced:       len(residual) == 0,
		ResidualByLoc:  residual,
		FlowCodeCounts: codes,
	}
}
