package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/dspops/portal/internal/audit/http"
	"github.com/dspops/portal/internal/gate"
	"github.com/dspops/portal/internal/identity"
	"github.com/dspops/portal/internal/legal"
	"github.com/dspops/portal/internal/observability"
	"github.com/dspops/portal/internal/profiles"
	"github.com/dspops/portal/internal/rbac"
	"github.com/dspops/portal/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	Identity            *identity.Provider
	IdentityHandler     *identity.Handler
	ProfilesHandler     *profiles.Handler
	CapabilitiesHandler *rbac.CapabilitiesHandler
	LegalHandler        *legal.Handler
	Gate                *gate.Gate
	GateHandler         *gate.Handler
	Navigation          http.Handler
	AuditHandler        *audithttp.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the top-level handler: operational endpoints at the
// root, the portal API under its subdomain or base path.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	if cfg == nil {
		cfg = &Config{PortalBasePath: "/portal"}
	}
	mw := MiddlewareConfig{Logger: params.Logger, Config: cfg, Metrics: params.Metrics}

	root := chi.NewRouter()
	for _, m := range MiddlewareStack(mw) {
		root.Use(m)
	}
	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		root.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		root.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Identity != nil {
		mw.Identity = params.Identity.Middleware
	}
	portal := chi.NewRouter()
	for _, m := range MiddlewareStack(mw) {
		portal.Use(m)
	}
	portal.Use(chimw.Logger)
	mountPortal(portal, params)

	return PrefixRouter{
		Subdomain: cfg.PortalSubdomain,
		BasePath:  cfg.PortalBasePath,
		Portal:    portal,
		Root:      root,
	}
}

func mountPortal(r chi.Router, params RouterParams) {
	if params.IdentityHandler != nil {
		r.Route("/auth", params.IdentityHandler.MountRoutes)
	}
	if params.LegalHandler != nil {
		r.Route("/legal", params.LegalHandler.MountRoutes)
	}
	if params.GateHandler != nil {
		r.Route("/gate", params.GateHandler.MountRoutes)
	}
	r.Route("/me", func(r chi.Router) {
		if params.ProfilesHandler != nil {
			params.ProfilesHandler.MountMe(r)
		}
		if params.CapabilitiesHandler != nil {
			r.Route("/capabilities", params.CapabilitiesHandler.MountRoutes)
		}
	})

	// Everything below requires both current agreements.
	r.Group(func(r chi.Router) {
		if params.Gate != nil {
			r.Use(gate.Middleware(params.Gate))
		}
		if params.Navigation != nil {
			r.Method(http.MethodGet, "/home", params.Navigation)
		}
		if params.ProfilesHandler != nil {
			r.Route("/admin/users", params.ProfilesHandler.MountAdmin)
		}
		if params.AuditHandler != nil {
			r.Route("/admin/audit", params.AuditHandler.MountRoutes)
		}
	})
}
