package analytics

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilnstock/kilnstock/internal/platform/httpx"
)

// Handler exposes analytics endpoints over HTTP.
type Handler struct {
	service          *Service
	logger           *slog.Logger
	defaultThreshold int64
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, logger *slog.Logger, defaultThreshold int64) *Handler {
	return &Handler{service: service, logger: logger, defaultThreshold: defaultThreshold}
}

// MountRoutes attaches analytics endpoints to the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/overview", h.overview)
	r.Get("/kpis", h.kpis)
	r.Get("/low-stock", h.lowStock)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Overview(r.Context())
	if err != nil {
		h.logger.Error("analytics overview", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to compute overview")
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) kpis(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r)
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	out, err := h.service.KPIs(r.Context(), from, to, r.URL.Query().Get("product"))
	if err != nil {
		h.logger.Error("analytics kpis", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to compute KPIs")
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := h.defaultThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "threshold must be a non-negative integer")
			return
		}
		threshold = n
	}
	out, err := h.service.LowStock(r.Context(), threshold)
	if err != nil {
		h.logger.Error("analytics low stock", slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to compute low stock")
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// parseWindow reads the from/to query parameters, defaulting to the last 30
// days. Dates are inclusive day boundaries.
func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := time.Now().UTC()
	to := now
	from := now.AddDate(0, 0, -30)

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
		to = t.Add(24*time.Hour - time.Nanosecond)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not precede from")
	}
	return from, to, nil
}
