package policy

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kilnstock/kilnstock/internal/shared"
)

// Principal is the resolved identity of the acting user.
type Principal struct {
	ID          uuid.UUID
	Username    string
	Email       string
	Role        Role
	Restriction Restriction
}

// PrincipalSource resolves a session user ID into a Principal.
type PrincipalSource interface {
	PrincipalByID(ctx context.Context, id uuid.UUID) (Principal, error)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Source PrincipalSource
	Logger *slog.Logger
}

// RequireUser ensures the request carries an authenticated session and
// resolves the principal into the request context.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		raw := strings.TrimSpace(sess.User())
		if raw == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("parse session user id", slog.String("value", raw))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		principal, err := m.Source.PrincipalByID(r.Context(), id)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("resolve principal", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		ctx := ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole ensures the resolved principal holds one of the given roles.
// It must be mounted after RequireUser.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[principal.Role]; !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
