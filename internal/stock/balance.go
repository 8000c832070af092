package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGBalanceStore persists derived stock balances in Postgres.
type PGBalanceStore struct {
	pool *pgxpool.Pool
}

// NewPGBalanceStore wires a balance store backed by the given pool.
func NewPGBalanceStore(pool *pgxpool.Pool) *PGBalanceStore {
	return &PGBalanceStore{pool: pool}
}

// Get returns the current quantity for a variant. The second return value
// reports whether the variant has ever been stocked.
func (s *PGBalanceStore) Get(ctx context.Context, key VariantKey) (int64, bool, error) {
	var qty int64
	err := s.pool.QueryRow(ctx, `
		SELECT current_quantity FROM stock_balances
		WHERE product_name = $1 AND color = $2 AND packing_option = $3 AND product_grade = $4`,
		key.ProductName, key.Color, key.PackingOption, key.ProductGrade,
	).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get balance: %w", err)
	}
	return qty, true, nil
}

// GetAll returns every balance record ordered by variant key.
func (s *PGBalanceStore) GetAll(ctx context.Context) ([]BalanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_name, color, packing_option, product_grade, current_quantity, updated_at
		FROM stock_balances
		ORDER BY product_name, color, packing_option, product_grade`)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var records []BalanceRecord
	for rows.Next() {
		var rec BalanceRecord
		if err := rows.Scan(
			&rec.Variant.ProductName,
			&rec.Variant.Color,
			&rec.Variant.PackingOption,
			&rec.Variant.ProductGrade,
			&rec.CurrentQuantity,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}
	return records, nil
}

const upsertBalanceSQL = `
INSERT INTO stock_balances (product_name, color, packing_option, product_grade, current_quantity, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (product_name, color, packing_option, product_grade)
DO UPDATE SET
	current_quantity = stock_balances.current_quantity + EXCLUDED.current_quantity,
	updated_at = NOW()`

const debitBalanceSQL = `
UPDATE stock_balances
SET current_quantity = current_quantity + $5, updated_at = NOW()
WHERE product_name = $1 AND color = $2 AND packing_option = $3 AND product_grade = $4
	AND current_quantity + $5 >= 0`

// ApplyAdjustment applies a single net movement. A negative delta only
// lands when the resulting quantity stays non-negative; a negative delta
// against an unknown variant fails the same way.
func (s *PGBalanceStore) ApplyAdjustment(ctx context.Context, adj Adjustment) error {
	return s.ApplyAdjustmentBatch(ctx, []Adjustment{adj})
}

// ApplyAdjustmentBatch applies every adjustment inside one repeatable-read
// transaction. If any debit would drive a balance negative, the whole
// transaction rolls back and the returned InsufficientStockError names
// every failing variant.
func (s *PGBalanceStore) ApplyAdjustmentBatch(ctx context.Context, adjs []Adjustment) error {
	if len(adjs) == 0 {
		return nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin balance tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var insufficient []VariantKey
	for _, adj := range adjs {
		if adj.Delta == 0 {
			// a net-zero batch must not create a row for an unseen variant
			continue
		}
		if adj.Delta > 0 {
			if _, err := tx.Exec(ctx, upsertBalanceSQL,
				adj.Variant.ProductName, adj.Variant.Color,
				adj.Variant.PackingOption, adj.Variant.ProductGrade,
				adj.Delta,
			); err != nil {
				return fmt.Errorf("upsert balance %s: %w", adj.Variant, err)
			}
			continue
		}
		tag, err := tx.Exec(ctx, debitBalanceSQL,
			adj.Variant.ProductName, adj.Variant.Color,
			adj.Variant.PackingOption, adj.Variant.ProductGrade,
			adj.Delta,
		)
		if err != nil {
			return fmt.Errorf("debit balance %s: %w", adj.Variant, err)
		}
		if tag.RowsAffected() == 0 {
			insufficient = append(insufficient, adj.Variant)
		}
	}
	if len(insufficient) > 0 {
		return &InsufficientStockError{Variants: insufficient}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit balance tx: %w", err)
	}
	return nil
}
