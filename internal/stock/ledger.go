package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedgerStore persists ledger entries in Postgres.
type PGLedgerStore struct {
	pool *pgxpool.Pool
}

// NewPGLedgerStore wires a ledger store backed by the given pool.
func NewPGLedgerStore(pool *pgxpool.Pool) *PGLedgerStore {
	return &PGLedgerStore{pool: pool}
}

const insertLedgerSQL = `
INSERT INTO stock_ledger (
	transaction_id, transaction_date, product_name, color, packing_option,
	product_grade, entry_type, quantity_change, user_name, invoice_number, remarks
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (transaction_id) DO NOTHING`

// Append inserts a single ledger entry. Entries carry pre-generated
// transaction IDs, so replaying an append is a no-op.
func (s *PGLedgerStore) Append(ctx context.Context, entry LedgerEntry) error {
	_, err := s.pool.Exec(ctx, insertLedgerSQL,
		entry.TransactionID,
		entry.TransactionDate,
		entry.Variant.ProductName,
		entry.Variant.Color,
		entry.Variant.PackingOption,
		entry.Variant.ProductGrade,
		string(entry.EntryType),
		entry.QuantityChange,
		entry.UserName,
		entry.InvoiceNumber,
		entry.Remarks,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// AppendBatch inserts all entries in one round trip. Conflicting
// transaction IDs are skipped, which makes the call idempotent.
func (s *PGLedgerStore) AppendBatch(ctx context.Context, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(insertLedgerSQL,
			entry.TransactionID,
			entry.TransactionDate,
			entry.Variant.ProductName,
			entry.Variant.Color,
			entry.Variant.PackingOption,
			entry.Variant.ProductGrade,
			string(entry.EntryType),
			entry.QuantityChange,
			entry.UserName,
			entry.InvoiceNumber,
			entry.Remarks,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append ledger batch: %w", err)
		}
	}
	return nil
}

// Query returns ledger entries matching the filter, most recent first.
func (s *PGLedgerStore) Query(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.From != nil {
		add("transaction_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("transaction_date <= $%d", *filter.To)
	}
	if filter.ProductName != "" {
		add("product_name = $%d", filter.ProductName)
	}
	if filter.Color != "" {
		add("color = $%d", filter.Color)
	}
	if filter.PackingOption != "" {
		add("packing_option = $%d", filter.PackingOption)
	}
	if filter.ProductGrade != "" {
		add("product_grade = $%d", filter.ProductGrade)
	}
	if filter.EntryType != "" {
		add("entry_type = $%d", string(filter.EntryType))
	}
	if filter.UserName != "" {
		add("user_name = $%d", filter.UserName)
	}
	if filter.InvoiceNumber != "" {
		add("invoice_number ILIKE $%d", "%"+filter.InvoiceNumber+"%")
	}

	query := `SELECT transaction_id, transaction_date, product_name, color,
	packing_option, product_grade, entry_type, quantity_change, user_name,
	invoice_number, remarks FROM stock_ledger`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY transaction_date DESC, transaction_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var (
			entry     LedgerEntry
			entryType string
		)
		if err := rows.Scan(
			&entry.TransactionID,
			&entry.TransactionDate,
			&entry.Variant.ProductName,
			&entry.Variant.Color,
			&entry.Variant.PackingOption,
			&entry.Variant.ProductGrade,
			&entryType,
			&entry.QuantityChange,
			&entry.UserName,
			&entry.InvoiceNumber,
			&entry.Remarks,
		); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entry.EntryType = EntryType(entryType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}
