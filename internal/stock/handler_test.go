package stock

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kilnstock/kilnstock/internal/policy"
)

func newTestHandler(t *testing.T) (*Handler, *fakeLedger, *fakeBalances) {
	t.Helper()
	ledger := &fakeLedger{}
	balances := newFakeBalances()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(ledger, balances, nil, logger)
	return NewHandler(svc, logger), ledger, balances
}

func requestWithPrincipal(req *http.Request, restriction policy.Restriction) *http.Request {
	principal := policy.Principal{
		ID:          uuid.New(),
		Username:    "alice",
		Role:        policy.RoleUser,
		Restriction: restriction,
	}
	return req.WithContext(policy.ContextWithPrincipal(req.Context(), principal))
}

func postTransactions(t *testing.T, h *Handler, restriction policy.Restriction, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stock/transactions", strings.NewReader(body))
	req = requestWithPrincipal(req, restriction)
	res := httptest.NewRecorder()
	h.postTransactions(res, req)
	return res
}

func TestPostTransactionsCreated(t *testing.T) {
	h, ledger, _ := newTestHandler(t)

	res := postTransactions(t, h, policy.AllowAllRestriction(), `{
		"transactions": [
			{"product_name": "Mug", "color": "Blue", "entry_type": "Production", "quantity": 10}
		]
	}`)
	require.Equal(t, http.StatusCreated, res.Code)
	require.Len(t, ledger.entries, 1)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &got))
	require.Contains(t, got, "recorded")
}

func TestPostTransactionsInsufficientStock(t *testing.T) {
	h, _, _ := newTestHandler(t)

	res := postTransactions(t, h, policy.AllowAllRestriction(), `{
		"transactions": [
			{"product_name": "Mug", "entry_type": "Sales", "quantity": 3}
		]
	}`)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Contains(t, res.Body.String(), "insufficient stock")
}

func TestPostTransactionsForbidden(t *testing.T) {
	h, _, balances := newTestHandler(t)
	balances.quantities[VariantKey{ProductName: "Mug"}] = 10

	restriction := policy.NewRestriction([]string{"Production"})
	res := postTransactions(t, h, restriction, `{
		"transactions": [
			{"product_name": "Mug", "entry_type": "Sales", "quantity": 1}
		]
	}`)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestPostTransactionsPartialCommit(t *testing.T) {
	h, ledger, _ := newTestHandler(t)
	ledger.appendErr = errors.New("ledger down")

	res := postTransactions(t, h, policy.AllowAllRestriction(), `{
		"transactions": [
			{"product_name": "Mug", "entry_type": "Production", "quantity": 5}
		]
	}`)
	require.Equal(t, http.StatusInternalServerError, res.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &problem))
	require.Equal(t, "partial_commit", problem["type"])
}

func TestPostTransactionsBadJSON(t *testing.T) {
	h, _, _ := newTestHandler(t)

	res := postTransactions(t, h, policy.AllowAllRestriction(), `{not json`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestPostTransactionsEmptyBatch(t *testing.T) {
	h, _, _ := newTestHandler(t)

	res := postTransactions(t, h, policy.AllowAllRestriction(), `{"transactions": []}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestPostTransactionsUnauthenticated(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/stock/transactions", strings.NewReader(`{}`))
	res := httptest.NewRecorder()
	h.postTransactions(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestListBalancesEmpty(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stock/balances", nil)
	res := httptest.NewRecorder()
	h.listBalances(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"balances": []}`, res.Body.String())
}

func TestGetBalanceUnknownVariant(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stock/balance?product_name=Ghost", nil)
	res := httptest.NewRecorder()
	h.getBalance(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &got))
	require.Equal(t, false, got["known"])
	require.Equal(t, float64(0), got["current_quantity"])
}

func TestListLedgerRejectsBadEntryType(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stock/ledger?entry_type=Transfer", nil)
	res := httptest.NewRecorder()
	h.listLedger(res, req)
	require.Equal(t, http.StatusBadRequest, res.Code)
}
