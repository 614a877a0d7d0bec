package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dspops/portal/internal/platform/httpx"
	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

// CapabilitiesHandler reports what the caller may do so the UI can hide
// controls it would be refused anyway.
type CapabilitiesHandler struct {
	logger *slog.Logger
	rbac   Middleware
}

// NewCapabilitiesHandler builds CapabilitiesHandler instance.
func NewCapabilitiesHandler(logger *slog.Logger, rbac Middleware) *CapabilitiesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapabilitiesHandler{logger: logger, rbac: rbac}
}

// MountRoutes registers capability routes.
func (h *CapabilitiesHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listCapabilities)
}

type capabilitiesResponse struct {
	Roles        []string        `json:"roles"`
	Capabilities []string        `json:"capabilities"`
	IsAdmin      bool            `json:"is_admin"`
	IsSuperAdmin bool            `json:"is_super_admin"`
	IsInvestor   bool            `json:"is_investor"`
	Checks       map[string]bool `json:"checks,omitempty"`
}

func (h *CapabilitiesHandler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	held, err := h.rbac.HeldRoles(r)
	if err != nil {
		if errors.Is(err, shared.ErrUnauthenticated) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		h.logger.Error("resolve roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resolver := h.rbac.resolver()

	res := capabilitiesResponse{
		Roles:        make([]string, 0, len(held)),
		Capabilities: []string{},
		IsAdmin:      roles.IsAdmin(held),
		IsSuperAdmin: roles.IsSuperAdmin(held),
		IsInvestor:   roles.IsInvestor(held),
	}
	for _, role := range held {
		res.Roles = append(res.Roles, role.String())
	}
	for _, c := range resolver.Capabilities(held) {
		res.Capabilities = append(res.Capabilities, c.String())
	}
	if raw := r.URL.Query()["check"]; len(raw) > 0 {
		res.Checks = make(map[string]bool, len(raw))
		for _, s := range raw {
			c, err := roles.ParseCapability(s)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
				return
			}
			res.Checks[s] = resolver.HasCapability(held, c)
		}
	}
	httpx.JSON(w, http.StatusOK, res)
}
