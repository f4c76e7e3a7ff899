package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/engine"
	"github.com/portops/cargoflow/internal/pipeline"
)

type resultsRepository struct {
	db *DB
}

// NewResultsRepository creates the repository persisting engine output.
// It implements pipeline.ResultSink.
func NewResultsRepository(db *DB) *resultsRepository {
	return &resultsRepository{db: db}
}

// Persist stores the full output of a batch. Results for the same snapshot
// date are replaced, so re-running a batch is idempotent.
func (r *resultsRepository) Persist(ctx context.Context, run *pipeline.PipelineRun, result *engine.Result) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.clearSnapshot(ctx, tx, run.Date); err != nil {
			return err
		}
		if err := r.saveKPIs(ctx, tx, run.Date, result.KPIs.Dense()); err != nil {
			return fmt.Errorf("failed to save monthly KPIs: %w", err)
		}
		if err := r.saveStock(ctx, tx, run.Date, result.Stock); err != nil {
			return fmt.Errorf("failed to save stock series: %w", err)
		}
		if err := r.saveTransitions(ctx, tx, run.Date, result.Transitions); err != nil {
			return fmt.Errorf("failed to save transitions: %w", err)
		}
		if err := r.saveTransitions(ctx, tx, run.Date, result.Corrections); err != nil {
			return fmt.Errorf("failed to save corrections: %w", err)
		}
		if err := r.saveFlowCodes(ctx, tx, run.Date, result.FlowCodes); err != nil {
			return fmt.Errorf("failed to save flow codes: %w", err)
		}
		return nil
	})
}

func (r *resultsRepository) clearSnapshot(ctx context.Context, tx *sql.Tx, date time.Time) error {
	for _, table := range []string{"monthly_kpis", "stock_series", "transitions", "flow_codes"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE snapshot_date = $1", table), date); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (r *resultsRepository) saveKPIs(ctx context.Context, tx *sql.Tx, date time.Time, kpis []domain.MonthlyKPI) error {
	query := `
		INSERT INTO monthly_kpis (
			snapshot_date, location, month, inbound_qty, outbound_qty, transfer_qty, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, k := range kpis {
		_, err := stmt.ExecContext(ctx, date, k.Location, k.Month,
			k.InboundQty, k.OutboundQty, k.TransferQty, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *resultsRepository) saveStock(ctx context.Context, tx *sql.Tx, date time.Time, stock []domain.StockPoint) error {
	query := `
		INSERT INTO stock_series (snapshot_date, location, month, stock, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, s := range stock {
		if _, err := stmt.ExecContext(ctx, date, s.Location, s.Month, s.Stock, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *resultsRepository) saveTransitions(ctx context.Context, tx *sql.Tx, date time.Time, trs []domain.Transition) error {
	query := `
		INSERT INTO transitions (
			snapshot_date, item_id, kind, from_location, to_location,
			date, qty, synthetic, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, tr := range trs {
		var from, to sql.NullString
		if tr.From != nil {
			from = sql.NullString{String: tr.From.Name, Valid: true}
		}
		if tr.To != nil {
			to = sql.NullString{String: tr.To.Name, Valid: true}
		}
		_, err := stmt.ExecContext(ctx, date, tr.ItemID, tr.Kind.String(),
			from, to, tr.Date, tr.Qty, tr.Synthetic, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *resultsRepository) saveFlowCodes(ctx context.Context, tx *sql.Tx, date time.Time, codes map[string]domain.FlowCode) error {
	query := `
		INSERT INTO flow_codes (snapshot_date, item_id, code, created_at)
		VALUES ($1, $2, $3, $4)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for id, code := range codes {
		if _, err := stmt.ExecContext(ctx, date, id, int(code), now); err != nil {
			return err
		}
	}
	return nil
}

// GetMonthlyKPIs returns the stored KPI rows for a snapshot date, ordered
// by location then month.
func (r *resultsRepository) GetMonthlyKPIs(ctx context.Context, date time.Time) ([]domain.MonthlyKPI, error) {
	query := `
		SELECT location, month, inbound_qty, outbound_qty, transfer_qty
		FROM monthly_kpis
		WHERE snapshot_date = $1
		ORDER BY location, month
	`

	var kpis []domain.MonthlyKPI
	if err := sqlx.SelectContext(ctx, r.db, &kpis, query, date); err != nil {
		return nil, fmt.Errorf("failed to get monthly KPIs: %w", err)
	}
	return kpis, nil
}

// GetStockSeries returns the stored stock series for a snapshot date.
func (r *resultsRepository) GetStockSeries(ctx context.Context, date time.Time) ([]domain.StockPoint, error) {
	query := `
		SELECT location, month, stock
		FROM stock_series
		WHERE snapshot_date = $1
		ORDER BY location, month
	`

	var stock []domain.StockPoint
	if err := sqlx.SelectContext(ctx, r.db, &stock, query, date); err != nil {
		return nil, fmt.Errorf("failed to get stock series: %w", err)
	}
	return stock, nil
}

// GetFlowCodeCounts returns how many items carry each flow code for a
// snapshot date.
func (r *resultsRepository) GetFlowCodeCounts(ctx context.Context, date time.Time) (map[int]int, error) {
	query := `
		SELECT code, COUNT(*) AS n
		FROM flow_codes
		WHERE snapshot_date = $1
		GROUP BY code
	`

	rows, err := r.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get flow code counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var code, n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		counts[code] = n
	}
	return counts, rows.Err()
}
