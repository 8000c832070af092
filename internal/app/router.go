package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kilnstock/kilnstock/internal/analytics"
	"github.com/kilnstock/kilnstock/internal/auth"
	"github.com/kilnstock/kilnstock/internal/policy"
	"github.com/kilnstock/kilnstock/internal/shared"
	"github.com/kilnstock/kilnstock/internal/stock"
	"github.com/kilnstock/kilnstock/internal/users"
	"github.com/kilnstock/kilnstock/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	StockHandler     *stock.Handler
	UsersHandler     *users.Handler
	AnalyticsHandler *analytics.Handler
	JobHandler       *jobs.Handler
	PolicyMiddleware policy.Middleware
}

// NewRouter constructs the chi.Router with kilnstock defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(params.PolicyMiddleware.RequireUser)
			params.AuthHandler.MountMe(r)
		})
	})

	r.Route("/stock", func(r chi.Router) {
		r.Use(params.PolicyMiddleware.RequireUser)
		params.StockHandler.MountRoutes(r)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(params.PolicyMiddleware.RequireUser)
		r.Use(params.PolicyMiddleware.RequireRole(policy.RoleAdmin, policy.RoleSuperAdmin))
		params.UsersHandler.MountRoutes(r)
	})

	r.Route("/analytics", func(r chi.Router) {
		r.Use(params.PolicyMiddleware.RequireUser)
		params.AnalyticsHandler.MountRoutes(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.PolicyMiddleware.RequireUser)
			r.Use(params.PolicyMiddleware.RequireRole(policy.RoleAdmin, policy.RoleSuperAdmin))
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
