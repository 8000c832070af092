package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VariantDrift is one variant whose stored balance disagrees with the
// signed sum of its ledger entries.
type VariantDrift struct {
	ProductName   string
	Color         string
	PackingOption string
	ProductGrade  string
	LedgerSum     int64
	Balance       int64
}

// LedgerAuditor recomputes per-variant ledger sums and compares them to the
// stored balances. Drift means a partial commit happened and was not
// repaired; the auditor reports, it never mutates.
type LedgerAuditor struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLedgerAuditor constructs a LedgerAuditor.
func NewLedgerAuditor(pool *pgxpool.Pool, logger *slog.Logger) *LedgerAuditor {
	return &LedgerAuditor{pool: pool, logger: logger}
}

const driftSQL = `
WITH ledger_sums AS (
	SELECT product_name, color, packing_option, product_grade,
		SUM(CASE WHEN entry_type IN ('Sales', 'Breakage', 'Correction-Subtract')
			THEN -quantity_change ELSE quantity_change END) AS ledger_sum
	FROM stock_ledger
	GROUP BY product_name, color, packing_option, product_grade
)
SELECT
	COALESCE(l.product_name, b.product_name),
	COALESCE(l.color, b.color),
	COALESCE(l.packing_option, b.packing_option),
	COALESCE(l.product_grade, b.product_grade),
	COALESCE(l.ledger_sum, 0),
	COALESCE(b.current_quantity, 0)
FROM ledger_sums l
FULL OUTER JOIN stock_balances b
	USING (product_name, color, packing_option, product_grade)
WHERE COALESCE(l.ledger_sum, 0) <> COALESCE(b.current_quantity, 0)`

// Scan returns every variant whose balance drifts from its ledger sum.
func (a *LedgerAuditor) Scan(ctx context.Context) ([]VariantDrift, error) {
	rows, err := a.pool.Query(ctx, driftSQL)
	if err != nil {
		return nil, fmt.Errorf("ledger audit query: %w", err)
	}
	defer rows.Close()

	var drifts []VariantDrift
	for rows.Next() {
		var d VariantDrift
		if err := rows.Scan(&d.ProductName, &d.Color, &d.PackingOption, &d.ProductGrade, &d.LedgerSum, &d.Balance); err != nil {
			return nil, fmt.Errorf("scan drift row: %w", err)
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// HandleTask runs the drift scan as an Asynq task handler.
func (a *LedgerAuditor) HandleTask(ctx context.Context, _ *asynq.Task) error {
	drifts, err := a.Scan(ctx)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		a.logger.Info("ledger audit clean", slog.String("job", "ledger_audit"))
		return nil
	}
	for _, d := range drifts {
		a.logger.Error("ledger drift detected",
			slog.String("job", "ledger_audit"),
			slog.String("product_name", d.ProductName),
			slog.String("color", d.Color),
			slog.String("packing_option", d.PackingOption),
			slog.String("product_grade", d.ProductGrade),
			slog.Int64("ledger_sum", d.LedgerSum),
			slog.Int64("balance", d.Balance),
		)
	}
	return nil
}
