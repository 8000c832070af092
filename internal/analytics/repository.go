package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TypeTotal is the summed quantity for one entry type.
type TypeTotal struct {
	EntryType string `json:"entry_type"`
	Total     int64  `json:"total"`
}

// ProductSales is the summed sales quantity for one product.
type ProductSales struct {
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
}

// ProductStock is the summed current stock for one product.
type ProductStock struct {
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
}

// DailyFlow is the inflow/outflow for one day.
type DailyFlow struct {
	Date    string `json:"date"`
	Inflow  int64  `json:"inflow"`
	Outflow int64  `json:"outflow"`
}

// VariantBalance pairs a variant with its current stock.
type VariantBalance struct {
	ProductName     string `json:"product_name"`
	Color           string `json:"color"`
	PackingOption   string `json:"packing_option"`
	ProductGrade    string `json:"product_grade"`
	CurrentQuantity int64  `json:"current_quantity"`
}

// Repository describes the read queries behind analytics.
type Repository interface {
	TotalsByType(ctx context.Context, from, to time.Time) ([]TypeTotal, error)
	SalesByProduct(ctx context.Context, from, to time.Time) ([]ProductSales, error)
	StockByProduct(ctx context.Context) ([]ProductStock, error)
	DailyFlow(ctx context.Context, from, to time.Time) ([]DailyFlow, error)
	Balances(ctx context.Context) ([]VariantBalance, error)
}

// PGRepository implements Repository on Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TotalsByType sums recorded quantities per entry type inside the window.
func (r *PGRepository) TotalsByType(ctx context.Context, from, to time.Time) ([]TypeTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT entry_type, COALESCE(SUM(quantity_change), 0)
		FROM stock_ledger
		WHERE transaction_date >= $1 AND transaction_date <= $2
		GROUP BY entry_type
		ORDER BY entry_type`, from, to)
	if err != nil {
		return nil, fmt.Errorf("totals by type: %w", err)
	}
	defer rows.Close()

	var totals []TypeTotal
	for rows.Next() {
		var t TypeTotal
		if err := rows.Scan(&t.EntryType, &t.Total); err != nil {
			return nil, fmt.Errorf("scan type total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// SalesByProduct sums sales quantities per product, highest first.
func (r *PGRepository) SalesByProduct(ctx context.Context, from, to time.Time) ([]ProductSales, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_name, COALESCE(SUM(quantity_change), 0) AS sold
		FROM stock_ledger
		WHERE entry_type = 'Sales' AND transaction_date >= $1 AND transaction_date <= $2
		GROUP BY product_name
		ORDER BY sold DESC, product_name`, from, to)
	if err != nil {
		return nil, fmt.Errorf("sales by product: %w", err)
	}
	defer rows.Close()

	var sales []ProductSales
	for rows.Next() {
		var s ProductSales
		if err := rows.Scan(&s.ProductName, &s.Quantity); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// StockByProduct sums current balances per product, highest first.
func (r *PGRepository) StockByProduct(ctx context.Context) ([]ProductStock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_name, COALESCE(SUM(current_quantity), 0) AS stock
		FROM stock_balances
		GROUP BY product_name
		ORDER BY stock DESC, product_name`)
	if err != nil {
		return nil, fmt.Errorf("stock by product: %w", err)
	}
	defer rows.Close()

	var stocks []ProductStock
	for rows.Next() {
		var s ProductStock
		if err := rows.Scan(&s.ProductName, &s.Quantity); err != nil {
			return nil, fmt.Errorf("scan product stock: %w", err)
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// DailyFlow sums inflow and outflow per day inside the window.
func (r *PGRepository) DailyFlow(ctx context.Context, from, to time.Time) ([]DailyFlow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			TO_CHAR(transaction_date::date, 'YYYY-MM-DD') AS day,
			COALESCE(SUM(quantity_change) FILTER (WHERE entry_type IN ('Production', 'Purchase', 'Correction-Add')), 0) AS inflow,
			COALESCE(SUM(quantity_change) FILTER (WHERE entry_type IN ('Sales', 'Breakage', 'Correction-Subtract')), 0) AS outflow
		FROM stock_ledger
		WHERE transaction_date >= $1 AND transaction_date <= $2
		GROUP BY day
		ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily flow: %w", err)
	}
	defer rows.Close()

	var flows []DailyFlow
	for rows.Next() {
		var f DailyFlow
		if err := rows.Scan(&f.Date, &f.Inflow, &f.Outflow); err != nil {
			return nil, fmt.Errorf("scan daily flow: %w", err)
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// Balances lists every variant with its current stock.
func (r *PGRepository) Balances(ctx context.Context) ([]VariantBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_name, color, packing_option, product_grade, current_quantity
		FROM stock_balances
		ORDER BY product_name, color, packing_option, product_grade`)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	defer rows.Close()

	var balances []VariantBalance
	for rows.Next() {
		var b VariantBalance
		if err := rows.Scan(&b.ProductName, &b.Color, &b.PackingOption, &b.ProductGrade, &b.CurrentQuantity); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
