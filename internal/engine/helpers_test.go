package engine

import (
	"testing"

	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/taxonomy"
)

func testRegistry() *taxonomy.Registry {
	return taxonomy.Default()
}

func testEngine(workers int, autoClose bool) *Engine {
	return New(testRegistry(), config.EngineConfig{
		Workers:           workers,
		AutoCloseResidual: autoClose,
	})
}

func row(id string, qty int, cells map[string]string) domain.ItemRow {
	return domain.ItemRow{ItemID: id, PkgQty: qty, Cells: cells}
}

func deriveOne(t *testing.T, r domain.ItemRow) domain.ItemEvents {
	t.Helper()
	items, _, err := DeriveEvents([]domain.ItemRow{r}, testRegistry(), nil)
	if err != nil {
		t.Fatalf("DeriveEvents: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("derived %d items, want 1", len(items))
	}
	return items[0]
}

func countKind(transitions []domain.Transition, kind domain.TransitionKind) int {
	n := 0
	for _, tr := range transitions {
		if tr.Kind == kind {
			n++
		}
	}
	return n
}
