package stock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryType enumerates the kinds of ledger entries.
type EntryType string

const (
	EntryProduction         EntryType = "Production"
	EntryPurchase           EntryType = "Purchase"
	EntrySales              EntryType = "Sales"
	EntryBreakage           EntryType = "Breakage"
	EntryCorrectionAdd      EntryType = "Correction-Add"
	EntryCorrectionSubtract EntryType = "Correction-Subtract"
)

// EntryTypes lists every entry type in display order.
var EntryTypes = []EntryType{
	EntryProduction,
	EntryPurchase,
	EntrySales,
	EntryBreakage,
	EntryCorrectionAdd,
	EntryCorrectionSubtract,
}

// Valid reports whether the entry type is one of the known kinds.
func (t EntryType) Valid() bool {
	switch t {
	case EntryProduction, EntryPurchase, EntrySales, EntryBreakage,
		EntryCorrectionAdd, EntryCorrectionSubtract:
		return true
	}
	return false
}

// Debit reports whether the entry type reduces stock.
func (t EntryType) Debit() bool {
	switch t {
	case EntrySales, EntryBreakage, EntryCorrectionSubtract:
		return true
	}
	return false
}

// Sign returns +1 for credit entries and -1 for debit entries.
func (t EntryType) Sign() int64 {
	if t.Debit() {
		return -1
	}
	return 1
}

// Correction reports whether the entry type is a manual correction.
func (t EntryType) Correction() bool {
	return t == EntryCorrectionAdd || t == EntryCorrectionSubtract
}

// VariantKey identifies a distinct product variant. Two variants are the
// same only when all four fields match exactly.
type VariantKey struct {
	ProductName   string `json:"product_name"`
	Color         string `json:"color"`
	PackingOption string `json:"packing_option"`
	ProductGrade  string `json:"product_grade"`
}

// ResolveVariant builds a VariantKey from raw attribute values. Values
// are compared as exact strings; no trimming or case folding is applied.
func ResolveVariant(productName, color, packingOption, productGrade string) (VariantKey, error) {
	if productName == "" {
		return VariantKey{}, ErrProductNameRequired
	}
	return VariantKey{
		ProductName:   productName,
		Color:         color,
		PackingOption: packingOption,
		ProductGrade:  productGrade,
	}, nil
}

// String renders the variant for log and error messages.
func (k VariantKey) String() string {
	parts := []string{k.ProductName}
	for _, p := range []string{k.Color, k.PackingOption, k.ProductGrade} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}

// LedgerEntry is a single immutable movement record.
type LedgerEntry struct {
	TransactionID   uuid.UUID  `json:"transaction_id"`
	TransactionDate time.Time  `json:"transaction_date"`
	Variant         VariantKey `json:"variant"`
	EntryType       EntryType  `json:"entry_type"`
	QuantityChange  int64      `json:"quantity_change"`
	UserName        string     `json:"user_name"`
	InvoiceNumber   string     `json:"invoice_number,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`
}

// SignedQuantity returns the quantity with the entry type's sign applied.
func (e LedgerEntry) SignedQuantity() int64 {
	return e.EntryType.Sign() * e.QuantityChange
}

// BalanceRecord is the derived current stock for a variant.
type BalanceRecord struct {
	Variant         VariantKey `json:"variant"`
	CurrentQuantity int64      `json:"current_quantity"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Adjustment is the net stock movement for one variant, produced by
// aggregating a batch before it touches storage.
type Adjustment struct {
	Variant VariantKey
	Delta   int64
}

// LedgerFilter narrows ledger queries.
type LedgerFilter struct {
	From          *time.Time
	To            *time.Time
	ProductName   string
	Color         string
	PackingOption string
	ProductGrade  string
	EntryType     EntryType
	UserName      string
	// InvoiceNumber matches as a case-insensitive substring.
	InvoiceNumber string
	Limit         int
	Offset        int
}

var (
	// ErrProductNameRequired indicates a variant without a product name.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrUnknownEntryType indicates an unrecognised entry type.
	ErrUnknownEntryType = errors.New("unknown entry type")
	// ErrNotPermitted indicates the acting user may not record this entry type.
	ErrNotPermitted = errors.New("entry type not permitted for user")
	// ErrEmptyBatch indicates a transaction batch with no rows.
	ErrEmptyBatch = errors.New("transaction batch is empty")
)

// InsufficientStockError reports every variant in a batch whose aggregated
// debit would have driven the balance negative. The whole batch is rejected.
type InsufficientStockError struct {
	Variants []VariantKey
}

func (e *InsufficientStockError) Error() string {
	names := make([]string, 0, len(e.Variants))
	for _, v := range e.Variants {
		names = append(names, v.String())
	}
	return fmt.Sprintf("insufficient stock for: %s", strings.Join(names, ", "))
}

// PartialCommitError reports a batch whose balance update committed but
// whose ledger append failed. The ledger rows carry pre-generated
// transaction IDs, so replaying the append is safe; the error is surfaced
// for the operator and never retried automatically.
type PartialCommitError struct {
	TransactionIDs []uuid.UUID
	Err            error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("balances committed but ledger append failed for %d entries: %v", len(e.TransactionIDs), e.Err)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}
