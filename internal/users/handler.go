package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kilnstock/kilnstock/internal/platform/httpx"
	"github.com/kilnstock/kilnstock/internal/policy"
	"github.com/kilnstock/kilnstock/internal/shared"
)

// Handler exposes the admin panel over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches user management endpoints to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Put("/{id}/role", h.updateRole)
	r.Put("/{id}/restriction", h.updateRestriction)
	r.Delete("/{id}", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := policy.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	accounts, err := h.service.ListVisible(r.Context(), caller)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to list users")
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(accounts))

	start := pagination.Offset()
	if start > len(accounts) {
		start = len(accounts)
	}
	end := start + pagination.PerPage
	if end > len(accounts) {
		end = len(accounts)
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"users":      accounts[start:end],
		"pagination": pagination,
	})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "request body must be valid JSON")
		return
	}
	if err := h.service.UpdateRole(r.Context(), caller, target, policy.Role(req.Role)); err != nil {
		h.respondServiceError(w, r, err, "update role")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "role updated"})
}

type updateRestrictionRequest struct {
	AllowedTransactions []string `json:"allowed_transactions"`
}

func (h *Handler) updateRestriction(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}
	var req updateRestrictionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "request body must be valid JSON")
		return
	}
	if err := h.service.UpdateRestriction(r.Context(), caller, target, req.AllowedTransactions); err != nil {
		h.respondServiceError(w, r, err, "update restriction")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "restriction updated"})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), caller, target); err != nil {
		h.respondServiceError(w, r, err, "delete user")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "user deleted"})
}

func (h *Handler) callerAndTarget(w http.ResponseWriter, r *http.Request) (policy.Principal, uuid.UUID, bool) {
	caller, ok := policy.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return policy.Principal{}, uuid.Nil, false
	}
	target, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "id must be a UUID")
		return policy.Principal{}, uuid.Nil, false
	}
	return caller, target, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, r, http.StatusNotFound, "Not Found", "user not found")
	case errors.Is(err, ErrSelfManagement), errors.Is(err, ErrTargetProtected):
		httpx.Problem(w, r, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrInvalidRestrictionType):
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "operation failed")
	}
}
