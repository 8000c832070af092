package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kilnstock/kilnstock/internal/platform/httpx"
	"github.com/kilnstock/kilnstock/internal/policy"
)

// Handler exposes the stock engine over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler builds the stock HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// MountRoutes attaches stock endpoints to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.postTransactions)
	r.Get("/balances", h.listBalances)
	r.Get("/balance", h.getBalance)
	r.Get("/ledger", h.listLedger)
}

type postTransactionsRequest struct {
	Transactions []TransactionInput `json:"transactions" validate:"required,min=1,dive"`
}

type postTransactionsResponse struct {
	Recorded []LedgerEntry `json:"recorded"`
}

func (h *Handler) postTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := policy.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	var req postTransactionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	actor := Actor{UserName: principal.Username, Restriction: principal.Restriction}
	recorded, err := h.service.Post(r.Context(), actor, req.Transactions)
	if err != nil {
		h.respondPostError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, postTransactionsResponse{Recorded: recorded})
}

func (h *Handler) respondPostError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *InsufficientStockError
	var partial *PartialCommitError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, r, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.As(err, &partial):
		h.logger.Error("partial commit", slog.Any("error", partial))
		httpx.ProblemTyped(w, r, "partial_commit", http.StatusInternalServerError,
			"Partial Commit", "balances updated but ledger record failed; contact an administrator before retrying")
	case errors.Is(err, ErrNotPermitted):
		httpx.Problem(w, r, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrUnknownEntryType),
		errors.Is(err, ErrProductNameRequired):
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error("post transactions", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to record transactions")
	}
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Balances(r.Context())
	if err != nil {
		h.logger.Error("list balances", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to list balances")
		return
	}
	if records == nil {
		records = []BalanceRecord{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": records})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := ResolveVariant(q.Get("product_name"), q.Get("color"), q.Get("packing_option"), q.Get("product_grade"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	qty, known, err := h.service.Balance(r.Context(), key)
	if err != nil {
		h.logger.Error("get balance", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to read balance")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"variant":          key,
		"current_quantity": qty,
		"known":            known,
	})
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLedgerFilter(r)
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	entries, err := h.service.Ledger(r.Context(), filter)
	if err != nil {
		h.logger.Error("list ledger", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to list ledger entries")
		return
	}
	if entries == nil {
		entries = []LedgerEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseLedgerFilter(r *http.Request) (LedgerFilter, error) {
	q := r.URL.Query()
	filter := LedgerFilter{
		ProductName:   q.Get("product_name"),
		Color:         q.Get("color"),
		PackingOption: q.Get("packing_option"),
		ProductGrade:  q.Get("product_grade"),
		UserName:      q.Get("user_name"),
		InvoiceNumber: q.Get("invoice_number"),
	}
	if raw := q.Get("entry_type"); raw != "" {
		et := EntryType(raw)
		if !et.Valid() {
			return LedgerFilter{}, ErrUnknownEntryType
		}
		filter.EntryType = et
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return LedgerFilter{}, errors.New("from must be RFC3339")
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return LedgerFilter{}, errors.New("to must be RFC3339")
		}
		filter.To = &t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return LedgerFilter{}, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return LedgerFilter{}, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}
