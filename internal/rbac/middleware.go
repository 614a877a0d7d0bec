package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dspops/portal/internal/platform/httpx"
	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

// RoleSource resolves the role list for a user.
type RoleSource interface {
	Roles(ctx context.Context, userID uuid.UUID, forceRefresh bool) ([]roles.Role, error)
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Roles    RoleSource
	Resolver *roles.Resolver
	Logger   *slog.Logger
}

// RequireAnyRole allows callers holding one of allowed.
func (m Middleware) RequireAnyRole(allowed ...roles.Role) func(http.Handler) http.Handler {
	return m.Require(AnyRole(allowed...))
}

// RequireMinimumRole allows callers ranked at or above minimum.
func (m Middleware) RequireMinimumRole(minimum roles.Role) func(http.Handler) http.Handler {
	return m.Require(MinimumRole(minimum))
}

// RequireCapability allows callers holding required.
func (m Middleware) RequireCapability(required roles.Capability) func(http.Handler) http.Handler {
	return m.Require(Capability(required))
}

// Require rejects with 401 when anonymous and 403 when check fails.
func (m Middleware) Require(check Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := m.evaluate(r, check)
			switch {
			case errors.Is(err, shared.ErrUnauthenticated):
				httpx.RespondError(w, httpx.ErrUnauthorized)
			case err != nil:
				m.logger().Error("rbac require", slog.Any("error", err))
				httpx.RespondError(w, err)
			case !ok:
				httpx.RespondError(w, httpx.ErrForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// HeldRoles returns the caller's roles, or shared.ErrUnauthenticated.
func (m Middleware) HeldRoles(r *http.Request) ([]roles.Role, error) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		return nil, shared.ErrUnauthenticated
	}
	return m.Roles.Roles(r.Context(), id.UserID, r.Header.Get("Cache-Control") == "no-cache")
}

func (m Middleware) evaluate(r *http.Request, check Check) (bool, error) {
	held, err := m.HeldRoles(r)
	if err != nil {
		return false, err
	}
	return check(m.resolver(), held), nil
}

func (m Middleware) resolver() *roles.Resolver {
	if m.Resolver == nil {
		return roles.Default
	}
	return m.Resolver
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
