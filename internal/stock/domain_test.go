package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryTypeSign(t *testing.T) {
	credits := []EntryType{EntryProduction, EntryPurchase, EntryCorrectionAdd}
	for _, et := range credits {
		require.False(t, et.Debit(), "%s should credit", et)
		require.Equal(t, int64(1), et.Sign())
	}
	debits := []EntryType{EntrySales, EntryBreakage, EntryCorrectionSubtract}
	for _, et := range debits {
		require.True(t, et.Debit(), "%s should debit", et)
		require.Equal(t, int64(-1), et.Sign())
	}
}

func TestEntryTypeValid(t *testing.T) {
	for _, et := range EntryTypes {
		require.True(t, et.Valid())
	}
	require.False(t, EntryType("Transfer").Valid())
	require.False(t, EntryType("sales").Valid(), "entry types are case sensitive")
}

func TestResolveVariant(t *testing.T) {
	key, err := ResolveVariant("Teak Chair", "Brown", "", "A")
	require.NoError(t, err)
	require.Equal(t, VariantKey{ProductName: "Teak Chair", Color: "Brown", ProductGrade: "A"}, key)

	_, err = ResolveVariant("", "Brown", "", "A")
	require.ErrorIs(t, err, ErrProductNameRequired)

	padded, err := ResolveVariant("Teak Chair ", "Brown", "", "A")
	require.NoError(t, err)
	require.NotEqual(t, key, padded, "values are matched as exact strings")
}

func TestVariantKeyDistinctness(t *testing.T) {
	a, err := ResolveVariant("Mug", "Blue", "Box of 6", "A")
	require.NoError(t, err)
	b, err := ResolveVariant("Mug", "Blue", "Box of 6", "B")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "differing grade must yield a distinct variant")

	c, err := ResolveVariant("Mug", "Blue", "Box of 6", "A")
	require.NoError(t, err)
	require.Equal(t, a, c)
}

func TestSignedQuantity(t *testing.T) {
	e := LedgerEntry{EntryType: EntrySales, QuantityChange: 7}
	require.Equal(t, int64(-7), e.SignedQuantity())

	e.EntryType = EntryProduction
	require.Equal(t, int64(7), e.SignedQuantity())
}
