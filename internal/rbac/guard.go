package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dspops/portal/internal/platform/httpx"
	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

// Guard renders its wrapped handler only when every configured requirement
// holds. Unset requirements are ignored.
type Guard struct {
	Roles       []roles.Role
	MinimumRole roles.Role
	Capability  *roles.Capability
	// Fallback renders when the caller does not qualify. Nil renders nothing.
	Fallback http.Handler
}

// Check folds the configured requirements into one predicate.
func (g Guard) Check() Check {
	var checks []Check
	if len(g.Roles) > 0 {
		checks = append(checks, AnyRole(g.Roles...))
	}
	if g.MinimumRole != "" {
		checks = append(checks, MinimumRole(g.MinimumRole))
	}
	if g.Capability != nil {
		checks = append(checks, Capability(*g.Capability))
	}
	return All(checks...)
}

// RenderNothing answers with an empty 204.
var RenderNothing http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

var notFound http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
})

// Guard wraps next with g. Anonymous callers get the fallback too.
func (m Middleware) Guard(g Guard, next http.Handler) http.Handler {
	fallback := g.Fallback
	if fallback == nil {
		fallback = RenderNothing
	}
	return m.gate(g.Check(), next, fallback)
}

// Hide makes next disappear (bare 404) for callers failing check.
func (m Middleware) Hide(check Check, next http.Handler) http.Handler {
	return m.gate(check, next, notFound)
}

func (m Middleware) gate(check Check, next, fallback http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := m.evaluate(r, check)
		if err != nil && !errors.Is(err, shared.ErrUnauthenticated) {
			m.logger().Error("rbac guard", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if !ok {
			fallback.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
