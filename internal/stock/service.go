package stock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kilnstock/kilnstock/internal/policy"
)

// LedgerStore records immutable movement entries.
type LedgerStore interface {
	Append(ctx context.Context, entry LedgerEntry) error
	AppendBatch(ctx context.Context, entries []LedgerEntry) error
	Query(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
}

// BalanceStore maintains derived per-variant stock levels.
type BalanceStore interface {
	Get(ctx context.Context, key VariantKey) (int64, bool, error)
	GetAll(ctx context.Context) ([]BalanceRecord, error)
	ApplyAdjustmentBatch(ctx context.Context, adjs []Adjustment) error
}

// CacheBumper invalidates derived read-side caches after a write.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Actor is the identity applying a transaction batch.
type Actor struct {
	UserName    string
	Restriction policy.Restriction
}

// TransactionInput is one row of a transaction batch as submitted.
type TransactionInput struct {
	ProductName   string    `json:"product_name" validate:"required"`
	Color         string    `json:"color"`
	PackingOption string    `json:"packing_option"`
	ProductGrade  string    `json:"product_grade"`
	EntryType     EntryType `json:"entry_type" validate:"required"`
	Quantity      int64     `json:"quantity" validate:"required,gt=0"`
	InvoiceNumber string    `json:"invoice_number"`
	Remarks       string    `json:"remarks"`
}

// Service is the stock reconciliation engine. A batch is validated and
// permission-checked up front, aggregated per variant, applied to balances
// atomically, then appended to the ledger.
type Service struct {
	ledger  LedgerStore
	balance BalanceStore
	cache   CacheBumper
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the reconciliation engine. cache may be nil.
func NewService(ledger LedgerStore, balance BalanceStore, cache CacheBumper, logger *slog.Logger) *Service {
	return &Service{
		ledger:  ledger,
		balance: balance,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// Post records a transaction batch for the actor. Either every row lands
// or none do, except for the documented partial-commit case where balances
// committed but the ledger append failed; that is reported as a
// *PartialCommitError and must not be retried blindly.
func (s *Service) Post(ctx context.Context, actor Actor, inputs []TransactionInput) ([]LedgerEntry, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	entries := make([]LedgerEntry, 0, len(inputs))
	when := s.now().UTC()
	for _, in := range inputs {
		if !in.EntryType.Valid() {
			return nil, ErrUnknownEntryType
		}
		if in.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		variant, err := ResolveVariant(in.ProductName, in.Color, in.PackingOption, in.ProductGrade)
		if err != nil {
			return nil, err
		}
		if !actor.Restriction.Permits(string(in.EntryType)) {
			return nil, ErrNotPermitted
		}
		entries = append(entries, LedgerEntry{
			TransactionID:   uuid.New(),
			TransactionDate: when,
			Variant:         variant,
			EntryType:       in.EntryType,
			QuantityChange:  in.Quantity,
			UserName:        actor.UserName,
			InvoiceNumber:   in.InvoiceNumber,
			Remarks:         in.Remarks,
		})
	}

	adjs := aggregate(entries)
	if err := s.balance.ApplyAdjustmentBatch(ctx, adjs); err != nil {
		return nil, err
	}

	if err := s.ledger.AppendBatch(ctx, entries); err != nil {
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.TransactionID)
		}
		partial := &PartialCommitError{TransactionIDs: ids, Err: err}
		s.logger.Error("ledger append failed after balance commit",
			slog.Int("entries", len(entries)),
			slog.Any("error", err),
		)
		return nil, partial
	}

	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump analytics cache", slog.Any("error", err))
		}
	}
	return entries, nil
}

// Balance returns the current quantity for a variant.
func (s *Service) Balance(ctx context.Context, key VariantKey) (int64, bool, error) {
	return s.balance.Get(ctx, key)
}

// Balances lists every tracked variant with its current quantity.
func (s *Service) Balances(ctx context.Context) ([]BalanceRecord, error) {
	return s.balance.GetAll(ctx)
}

// Ledger returns ledger entries matching the filter.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	return s.ledger.Query(ctx, filter)
}

// aggregate folds a batch into one net adjustment per variant, preserving
// the order in which variants first appear. A batch spending more of a
// variant than it adds nets out negative and is checked as a whole, so
// multiple small debits cannot slip past a sufficiency check one by one.
func aggregate(entries []LedgerEntry) []Adjustment {
	index := make(map[VariantKey]int, len(entries))
	adjs := make([]Adjustment, 0, len(entries))
	for _, e := range entries {
		i, ok := index[e.Variant]
		if !ok {
			i = len(adjs)
			index[e.Variant] = i
			adjs = append(adjs, Adjustment{Variant: e.Variant})
		}
		adjs[i].Delta += e.SignedQuantity()
	}
	return adjs
}
