package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/engine"
)

// CSVExporter writes the engine output of a batch as dated CSV files under
// the configured output directory.
type CSVExporter struct {
	outputDir string
}

// NewCSVExporter creates a CSV export sink rooted at outputDir.
func NewCSVExporter(outputDir string) *CSVExporter {
	return &CSVExporter{outputDir: outputDir}
}

// Persist writes monthly KPIs, stock, transitions, corrections, flow codes
// and warnings into a per-date subdirectory.
func (e *CSVExporter) Persist(ctx context.Context, run *PipelineRun, result *engine.Result) error {
	dir := filepath.Join(e.outputDir, run.Date.Format("20060102"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := e.writeKPIs(filepath.Join(dir, "monthly_kpis.csv"), result.KPIs.Dense()); err != nil {
		return err
	}
	if err := e.writeStock(filepath.Join(dir, "stock.csv"), result.Stock); err != nil {
		return err
	}
	if err := e.writeTransitions(filepath.Join(dir, "transitions.csv"), result.Transitions); err != nil {
		return err
	}
	if err := e.writeTransitions(filepath.Join(dir, "corrections.csv"), result.Corrections); err != nil {
		return err
	}
	if err := e.writeFlowCodes(filepath.Join(dir, "flow_codes.csv"), result.FlowCodes); err != nil {
		return err
	}
	if err := e.writeWarnings(filepath.Join(dir, "warnings.csv"), result.Warnings); err != nil {
		return err
	}

	log.Info().Str("dir", dir).Msg("exported batch results")
	return nil
}

func (e *CSVExporter) writeKPIs(path string, kpis []domain.MonthlyKPI) error {
	return writeCSV(path, []string{"location", "month", "inbound_qty", "outbound_qty", "transfer_qty"},
		len(kpis), func(i int) []string {
			k := kpis[i]
			return []string{
				k.Location,
				domain.MonthKey(k.Month),
				strconv.Itoa(k.InboundQty),
				strconv.Itoa(k.OutboundQty),
				strconv.Itoa(k.TransferQty),
			}
		})
}

func (e *CSVExporter) writeStock(path string, stock []domain.StockPoint) error {
	return writeCSV(path, []string{"location", "month", "stock"},
		len(stock), func(i int) []string {
			s := stock[i]
			return []string{s.Location, domain.MonthKey(s.Month), strconv.Itoa(s.Stock)}
		})
}

func (e *CSVExporter) writeTransitions(path string, trs []domain.Transition) error {
	return writeCSV(path, []string{"item_id", "kind", "from", "to", "date", "qty", "synthetic"},
		len(trs), func(i int) []string {
			tr := trs[i]
			var from, to string
			if tr.From != nil {
				from = tr.From.Name
			}
			if tr.To != nil {
				to = tr.To.Name
			}
			return []string{
				tr.ItemID,
				tr.Kind.String(),
				from,
				to,
				tr.Date.Format("2006-01-02"),
				strconv.Itoa(tr.Qty),
				strconv.FormatBool(tr.Synthetic),
			}
		})
}

func (e *CSVExporter) writeFlowCodes(path string, codes map[string]domain.FlowCode) error {
	ids := make([]string, 0, len(codes))
	for id := range codes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return writeCSV(path, []string{"item_id", "flow_code", "description"},
		len(ids), func(i int) []string {
			id := ids[i]
			code := codes[id]
			return []string{id, strconv.Itoa(int(code)), domain.FlowCodeLabel(code)}
		})
}

func (e *CSVExporter) writeWarnings(path string, warnings []domain.Warning) error {
	return writeCSV(path, []string{"kind", "item_id", "location", "month", "qty", "detail"},
		len(warnings), func(i int) []string {
			w := warnings[i]
			month := ""
			if !w.Month.IsZero() {
				month = domain.MonthKey(w.Month)
			}
			return []string{string(w.Kind), w.ItemID, w.Location, month, strconv.Itoa(w.Qty), w.Detail}
		})
}

// writeCSV writes a header plus n records produced by record(i).
func writeCSV(path string, header []string, n int, record func(i int) []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(record(i)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
