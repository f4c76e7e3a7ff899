package engine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/portops/cargoflow/internal/domain"
)

func TestRunSpecExampleDirectViaSingleWarehouse(t *testing.T) {
	// Item A: DSV Outdoor 2024-01-10, DAS 2024-01-20.
	e := testEngine(4, true)
	res, err := e.Run(context.Background(), []domain.ItemRow{
		row("A", 1, map[string]string{
			"DSV Outdoor": "2024-01-10",
			"DAS":         "2024-01-20",
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.FlowCodes["A"] != domain.FlowSingleWarehouse {
		t.Errorf("flow code = %d, want 2", res.FlowCodes["A"])
	}
	outbound := 0
	for _, tr := range res.Transitions {
		if tr.Kind == domain.TransitionOutbound {
			outbound++
			if domain.MonthKey(domain.MonthOf(tr.Date)) != "2024-01" {
				t.Errorf("outbound month = %s, want 2024-01", domain.MonthKey(tr.Date))
			}
			if tr.Qty != 1 {
				t.Errorf("outbound qty = %d, want 1", tr.Qty)
			}
		}
	}
	if outbound != 1 {
		t.Errorf("outbound count = %d, want 1", outbound)
	}
}

func TestRunSpecExampleNoCells(t *testing.T) {
	// Item B: no location cells at all.
	e := testEngine(2, true)
	res, err := e.Run(context.Background(), []domain.ItemRow{row("B", 1, nil)})
	if err != nil {
		t.Fatal(err)
	}
	if res.FlowCodes["B"] != domain.FlowPreArrival {
		t.Errorf("flow code = %d, want 0", res.FlowCodes["B"])
	}
	if len(res.Transitions) != 0 {
		t.Errorf("transitions = %+v, want none", res.Transitions)
	}
	if rows := res.KPIs.Dense(); rows != nil {
		t.Errorf("dense KPIs = %d rows, want none", len(rows))
	}
}

func TestRunSpecExampleMultiWarehouse(t *testing.T) {
	// Item C: three warehouses then a site.
	e := testEngine(4, true)
	res, err := e.Run(context.Background(), []domain.ItemRow{
		row("C", 1, map[string]string{
			"DSV Indoor":    "2024-01-05",
			"DSV Al Markaz": "2024-01-10",
			"MOSB":          "2024-01-15",
			"AGI":           "2024-01-20",
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.FlowCodes["C"] != domain.FlowMultiWarehouse {
		t.Errorf("flow code = %d, want 4", res.FlowCodes["C"])
	}
	if got := countKind(res.Transitions, domain.TransitionTransfer); got != 2 {
		t.Errorf("transfer count = %d, want 2", got)
	}
	if got := countKind(res.Transitions, domain.TransitionOutbound); got != 1 {
		t.Errorf("outbound count = %d, want 1", got)
	}
}

func TestRunBalancesEveryWarehouseAfterCorrections(t *testing.T) {
	e := testEngine(8, true)
	res, err := e.Run(context.Background(), []domain.ItemRow{
		row("BL-1", 3, map[string]string{"DSV Indoor": "2024-01-05", "DAS": "2024-02-10"}),
		row("BL-2", 2, map[string]string{"DSV Indoor": "2024-01-07"}),
		row("BL-3", 4, map[string]string{"DSV Outdoor": "2024-02-01", "DSV MZP": "2024-03-01"}),
		row("BL-4", 1, map[string]string{"MOSB": "2024-01-15", "AGI": "2024-04-01"}),
		row("BL-5", 7, map[string]string{"SHU": "2024-02-20"}),
	})
	if err != nil {
		t.Fatal(err)
	}

	correctionByLoc := make(map[string]int)
	for _, c := range res.Corrections {
		correctionByLoc[c.From.Name] += c.Qty
	}
	for _, loc := range testRegistry().Warehouses() {
		final, ok := finalStock(res.Stock, loc.Name)
		if !ok {
			t.Fatalf("no stock series for %s", loc.Name)
		}
		if final-correctionByLoc[loc.Name] != 0 {
			t.Errorf("%s: stock %d - corrections %d != 0",
				loc.Name, final, correctionByLoc[loc.Name])
		}
	}
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	rows := []domain.ItemRow{
		row("ID-1", 2, map[string]string{"DSV Indoor": "2024-01-05", "DSV Outdoor": "2024-01-20", "DAS": "2024-02-10"}),
		row("ID-2", 1, map[string]string{"MOSB": "2024-01-15", "AGI": "2024-03-01"}),
		row("ID-3", 5, map[string]string{"DSV Al Markaz": "2024-02-02"}),
		row("ID-4", 1, map[string]string{"MIR": "2024-01-09"}),
		row("ID-5", 3, map[string]string{"Hauler Indoor": "2024-02-14", "AAA  Storage": "2024-02-14"}),
	}

	base, err := testEngine(1, true).Run(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{2, 4, 16} {
		res, err := testEngine(workers, true).Run(context.Background(), rows)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(res.Transitions, base.Transitions) {
			t.Errorf("workers=%d: transitions differ from sequential run", workers)
		}
		if !reflect.DeepEqual(res.KPIs.Dense(), base.KPIs.Dense()) {
			t.Errorf("workers=%d: KPI tables differ from sequential run", workers)
		}
		if !reflect.DeepEqual(res.Corrections, base.Corrections) {
			t.Errorf("workers=%d: corrections differ from sequential run", workers)
		}
		if !reflect.DeepEqual(res.FlowCodes, base.FlowCodes) {
			t.Errorf("workers=%d: flow codes differ from sequential run", workers)
		}
	}
}

func TestRunTwiceYieldsIdenticalOutput(t *testing.T) {
	rows := []domain.ItemRow{
		row("IP-1", 2, map[string]string{"DSV Indoor": "2024-01-05", "DAS": "2024-02-10"}),
		row("IP-2", 1, map[string]string{"DSV Outdoor": "2024-01-15"}),
	}
	e := testEngine(4, true)

	first, err := e.Run(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Run(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.KPIs.Dense(), second.KPIs.Dense()) {
		t.Error("KPI tables differ between identical runs")
	}
	if !reflect.DeepEqual(first.Corrections, second.Corrections) {
		t.Error("corrections differ between identical runs")
	}
	if !reflect.DeepEqual(first.Stock, second.Stock) {
		t.Error("stock series differ between identical runs")
	}
}

func TestRunPropagatesInvalidInputShape(t *testing.T) {
	e := testEngine(2, true)
	_, err := e.Run(context.Background(), []domain.ItemRow{
		row("", 1, map[string]string{"DSV Indoor": "2024-01-05"}),
	})
	if err == nil {
		t.Fatal("expected error for missing item identifier")
	}
}

func TestSummaryUsesCallerClockOnly(t *testing.T) {
	e := testEngine(2, true)
	res, err := e.Run(context.Background(), []domain.ItemRow{
		row("SM-1", 2, map[string]string{"DSV Indoor": "2024-01-05"}),
	})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := res.Summary(now)
	if !s.RunAt.Equal(now) {
		t.Errorf("RunAt = %v, want caller-supplied %v", s.RunAt, now)
	}
	if s.Items != 1 || s.Events != 1 || s.Corrections != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Balanced {
		t.Error("summary reports balanced despite residual correction")
	}
	if s.ResidualByLoc["DSV Indoor"] != 2 {
		t.Errorf("residual = %+v, want DSV Indoor: 2", s.ResidualByLoc)
	}
}
