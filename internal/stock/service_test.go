package stock

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kilnstock/kilnstock/internal/policy"
)

type fakeLedger struct {
	entries   []LedgerEntry
	appendErr error
}

func (f *fakeLedger) Append(ctx context.Context, entry LedgerEntry) error {
	return f.AppendBatch(ctx, []LedgerEntry{entry})
}

func (f *fakeLedger) AppendBatch(_ context.Context, entries []LedgerEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	seen := make(map[string]struct{}, len(f.entries))
	for _, e := range f.entries {
		seen[e.TransactionID.String()] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := seen[e.TransactionID.String()]; ok {
			continue
		}
		f.entries = append(f.entries, e)
	}
	return nil
}

func (f *fakeLedger) Query(_ context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	var out []LedgerEntry
	for _, e := range f.entries {
		if filter.ProductName != "" && e.Variant.ProductName != filter.ProductName {
			continue
		}
		if filter.EntryType != "" && e.EntryType != filter.EntryType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type fakeBalances struct {
	quantities map[VariantKey]int64
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{quantities: make(map[VariantKey]int64)}
}

func (f *fakeBalances) Get(_ context.Context, key VariantKey) (int64, bool, error) {
	qty, ok := f.quantities[key]
	return qty, ok, nil
}

func (f *fakeBalances) GetAll(_ context.Context) ([]BalanceRecord, error) {
	var out []BalanceRecord
	for key, qty := range f.quantities {
		out = append(out, BalanceRecord{Variant: key, CurrentQuantity: qty})
	}
	return out, nil
}

func (f *fakeBalances) ApplyAdjustmentBatch(_ context.Context, adjs []Adjustment) error {
	var insufficient []VariantKey
	next := make(map[VariantKey]int64, len(adjs))
	for _, adj := range adjs {
		if adj.Delta == 0 {
			continue
		}
		current, ok := f.quantities[adj.Variant]
		if adj.Delta < 0 && (!ok || current+adj.Delta < 0) {
			insufficient = append(insufficient, adj.Variant)
			continue
		}
		next[adj.Variant] = current + adj.Delta
	}
	if len(insufficient) > 0 {
		return &InsufficientStockError{Variants: insufficient}
	}
	for key, qty := range next {
		f.quantities[key] = qty
	}
	return nil
}

type fakeBumper struct {
	bumps int
}

func (f *fakeBumper) Bump(context.Context) error {
	f.bumps++
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeLedger, *fakeBalances, *fakeBumper) {
	t.Helper()
	ledger := &fakeLedger{}
	balances := newFakeBalances()
	bumper := &fakeBumper{}
	svc := NewService(ledger, balances, bumper, slog.Default())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, ledger, balances, bumper
}

func unrestricted(user string) Actor {
	return Actor{UserName: user, Restriction: policy.AllowAllRestriction()}
}

func mugVariant() VariantKey {
	return VariantKey{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A"}
}

func TestPostCreditCreatesBalance(t *testing.T) {
	svc, ledger, balances, bumper := newTestService(t)
	ctx := context.Background()

	recorded, err := svc.Post(ctx, unrestricted("alice"), []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntryProduction, Quantity: 10},
	})
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	require.Equal(t, "alice", recorded[0].UserName)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", recorded[0].TransactionID.String())

	qty, known, err := balances.Get(ctx, mugVariant())
	require.NoError(t, err)
	require.True(t, known)
	require.Equal(t, int64(10), qty)
	require.Len(t, ledger.entries, 1)
	require.Equal(t, 1, bumper.bumps)
}

func TestPostDebitReducesBalance(t *testing.T) {
	svc, _, balances, _ := newTestService(t)
	ctx := context.Background()
	balances.quantities[mugVariant()] = 10

	_, err := svc.Post(ctx, unrestricted("alice"), []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 4, InvoiceNumber: "INV-001"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(6), balances.quantities[mugVariant()])
}

func TestPostDebitBeyondStockRejected(t *testing.T) {
	svc, ledger, balances, _ := newTestService(t)
	ctx := context.Background()
	balances.quantities[mugVariant()] = 6

	_, err := svc.Post(ctx, unrestricted("alice"), []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 10},
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, []VariantKey{mugVariant()}, insufficient.Variants)

	require.Equal(t, int64(6), balances.quantities[mugVariant()], "balance must be untouched")
	require.Empty(t, ledger.entries, "no ledger entry for a rejected batch")
}

func TestPostAggregatesDebitsBeforeCheck(t *testing.T) {
	svc, ledger, balances, _ := newTestService(t)
	ctx := context.Background()
	balances.quantities[mugVariant()] = 6

	// 5 + 3 exceeds the stock of 6 even though each row alone would pass.
	_, err := svc.Post(ctx, unrestricted("alice"), []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 5},
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 3},
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(6), balances.quantities[mugVariant()])
	require.Empty(t, ledger.entries)
}

func TestPostMixedBatchNetsOut(t *testing.T) {
	svc, ledger, balances, _ := newTestService(t)
	ctx := context.Background()
	balances.quantities[mugVariant()] = 2

	// Net +4: production of 10 covers the sale of 6 inside one batch.
	recorded, err := svc.Post(ctx, unrestricted("alice"), []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntryProduction, Quantity: 10},
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 6},
	})
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	require.Equal(t, int64(6), balances.quantities[mugVariant()])
	require.Len(t, ledger.entries, 2, "ledger keeps both rows even when the net is one adjustment")
}

func TestPostBatchAtomicAcrossVariants(t *testing.T) {
	svc, ledger, balances, _ := newTestService(t)
	ctx := context.Background()
	balances.quantities[mugVariant()] = 10

	plate := VariantKey{ProductName: "Plate", Color: "White", PackingOption: "Single", ProductGrade: "A"}
	balances.quantities[plate] = 1

	_, err := svc.Post(ctx, unrestricted("alice"), []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 4},
		{ProductName: "Plate", Color: "White", PackingOption: "Single", ProductGrade: "A", EntryType: EntrySales, Quantity: 5},
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, []VariantKey{plate}, insufficient.Variants)

	require.Equal(t, int64(10), balances.quantities[mugVariant()], "sufficient row must also roll back")
	require.Equal(t, int64(1), balances.quantities[plate])
	require.Empty(t, ledger.entries)
}

func TestPostDebitOnUnknownVariantRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Post(ctx, unrestricted("alice"), []TransactionInput{
		{ProductName: "Ghost", EntryType: EntrySales, Quantity: 1},
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
}

func TestPostRestrictionDeniedBeforeStores(t *testing.T) {
	svc, ledger, balances, bumper := newTestService(t)
	ctx := context.Background()
	balances.quantities[mugVariant()] = 10

	actor := Actor{UserName: "bob", Restriction: policy.NewRestriction([]string{"Production"})}
	_, err := svc.Post(ctx, actor, []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 1},
	})
	require.ErrorIs(t, err, ErrNotPermitted)
	require.Equal(t, int64(10), balances.quantities[mugVariant()])
	require.Empty(t, ledger.entries)
	require.Zero(t, bumper.bumps)
}

func TestPostCorrectionsAlwaysPermitted(t *testing.T) {
	svc, _, balances, _ := newTestService(t)
	ctx := context.Background()
	balances.quantities[mugVariant()] = 5

	actor := Actor{UserName: "bob", Restriction: policy.NewRestriction([]string{"Production"})}
	_, err := svc.Post(ctx, actor, []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntryCorrectionSubtract, Quantity: 2},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), balances.quantities[mugVariant()])
}

func TestPostValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	actor := unrestricted("alice")

	_, err := svc.Post(ctx, actor, nil)
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = svc.Post(ctx, actor, []TransactionInput{
		{ProductName: "Mug", EntryType: EntryProduction, Quantity: 0},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Post(ctx, actor, []TransactionInput{
		{ProductName: "Mug", EntryType: EntryType("Transfer"), Quantity: 1},
	})
	require.ErrorIs(t, err, ErrUnknownEntryType)

	_, err = svc.Post(ctx, actor, []TransactionInput{
		{ProductName: "", EntryType: EntryProduction, Quantity: 1},
	})
	require.ErrorIs(t, err, ErrProductNameRequired)
}

func TestPostPartialCommitSurfaced(t *testing.T) {
	svc, ledger, balances, _ := newTestService(t)
	ctx := context.Background()
	ledger.appendErr = errors.New("ledger down")

	_, err := svc.Post(ctx, unrestricted("alice"), []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntryProduction, Quantity: 10},
	})
	var partial *PartialCommitError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.TransactionIDs, 1)

	// The documented inconsistency: balances committed, ledger did not.
	require.Equal(t, int64(10), balances.quantities[mugVariant()])
	require.Empty(t, ledger.entries)
}

func TestPostSequence(t *testing.T) {
	svc, ledger, balances, _ := newTestService(t)
	ctx := context.Background()
	actor := unrestricted("alice")

	_, err := svc.Post(ctx, actor, []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntryProduction, Quantity: 10},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), balances.quantities[mugVariant()])
	require.Len(t, ledger.entries, 1)

	_, err = svc.Post(ctx, actor, []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 4},
	})
	require.NoError(t, err)
	require.Equal(t, int64(6), balances.quantities[mugVariant()])
	require.Len(t, ledger.entries, 2)

	_, err = svc.Post(ctx, actor, []TransactionInput{
		{ProductName: "Mug", Color: "Blue", PackingOption: "Box of 6", ProductGrade: "A", EntryType: EntrySales, Quantity: 10},
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(6), balances.quantities[mugVariant()])
	require.Len(t, ledger.entries, 2)

	var sum int64
	for _, e := range ledger.entries {
		sum += e.SignedQuantity()
	}
	require.Equal(t, balances.quantities[mugVariant()], sum, "balance equals signed ledger sum")
}

func TestLedgerAppendIdempotent(t *testing.T) {
	_, ledger, _, _ := newTestService(t)
	ctx := context.Background()

	entry := LedgerEntry{
		TransactionID:  mustUUID(t),
		EntryType:      EntryProduction,
		QuantityChange: 5,
		Variant:        mugVariant(),
	}
	require.NoError(t, ledger.AppendBatch(ctx, []LedgerEntry{entry}))
	require.NoError(t, ledger.AppendBatch(ctx, []LedgerEntry{entry}))
	require.Len(t, ledger.entries, 1)
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	return id
}

func TestAggregatePreservesFirstSeenOrder(t *testing.T) {
	mug := mugVariant()
	plate := VariantKey{ProductName: "Plate"}
	adjs := aggregate([]LedgerEntry{
		{Variant: mug, EntryType: EntrySales, QuantityChange: 5},
		{Variant: plate, EntryType: EntryProduction, QuantityChange: 2},
		{Variant: mug, EntryType: EntrySales, QuantityChange: 3},
	})
	require.Len(t, adjs, 2)
	require.Equal(t, mug, adjs[0].Variant)
	require.Equal(t, int64(-8), adjs[0].Delta)
	require.Equal(t, plate, adjs[1].Variant)
	require.Equal(t, int64(2), adjs[1].Delta)
}
