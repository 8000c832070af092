package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kilnstock/kilnstock/internal/platform/httpx"
	"github.com/kilnstock/kilnstock/internal/policy"
	"github.com/kilnstock/kilnstock/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/password-reset", h.handlePasswordReset)
	r.Get("/csrf", h.handleCSRF)
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type passwordResetRequest struct {
	Username    string `json:"username" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type userResponse struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	AllowedTransaction string `json:"allowed_transaction"`
}

func toUserResponse(u *User) userResponse {
	return userResponse{
		ID:                 u.ID.String(),
		Username:           u.Username,
		Email:              u.Email,
		Role:               string(u.Role),
		AllowedTransaction: u.AllowedTransaction,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	user, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUser):
			httpx.Problem(w, r, http.StatusConflict, "Conflict", "username or email already registered")
		case errors.Is(err, ErrPasswordTooShort):
			httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		default:
			h.logger.Error("register user", slog.Any("error", err))
			httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to register user")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "session unavailable")
		return
	}
	sess.SetUser(user.ID.String())

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":       toUserResponse(user),
		"csrf_token": csrfToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Username, req.Email, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, r, http.StatusNotFound, "Not Found", "no account matches that username and email")
		case errors.Is(err, ErrPasswordTooShort):
			httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		default:
			h.logger.Error("reset password", slog.Any("error", err))
			httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to reset password")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// handleCSRF returns the CSRF token for the current session so API clients
// can send it on subsequent mutating requests.
func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Server Error", "session unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// HandleRegisterForTest exposes the register handler for tests.
func (h *Handler) HandleRegisterForTest(w http.ResponseWriter, r *http.Request) {
	h.handleRegister(w, r)
}

// HandleLoginForTest exposes the login handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}

// HandlePasswordResetForTest exposes the password reset handler for tests.
func (h *Handler) HandlePasswordResetForTest(w http.ResponseWriter, r *http.Request) {
	h.handlePasswordReset(w, r)
}

// MountMe registers the authenticated identity endpoint. It is mounted
// separately because it sits behind the RequireUser middleware.
func (h *Handler) MountMe(r chi.Router) {
	r.Get("/me", func(w http.ResponseWriter, req *http.Request) {
		principal, ok := policy.PrincipalFromContext(req.Context())
		if !ok {
			httpx.Problem(w, req, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"id":                  principal.ID.String(),
			"username":            principal.Username,
			"email":               principal.Email,
			"role":                string(principal.Role),
			"allowed_transaction": principal.Restriction.String(),
		})
	})
}
