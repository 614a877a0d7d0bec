package app

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dspops/portal/internal/platform/httpx"
	"github.com/dspops/portal/internal/rbac"
	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

// Section is one entry of the portal navigation.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Path  string `json:"path"`

	requires rbac.Check
}

// DefaultSections lists the portal areas and what each needs.
func DefaultSections() []Section {
	return []Section{
		{Key: "profile", Title: "My profile", Path: "/me", requires: rbac.Capability(roles.MustParseCapability("portal:profile:view"))},
		{Key: "updates", Title: "Updates", Path: "/updates", requires: rbac.Capability(roles.MustParseCapability("portal:updates:view"))},
		{Key: "events", Title: "Events", Path: "/events", requires: rbac.Capability(roles.MustParseCapability("portal:events:view"))},
		{Key: "surveys", Title: "Surveys", Path: "/surveys", requires: rbac.Capability(roles.MustParseCapability("portal:surveys:take"))},
		{Key: "referrals", Title: "Referrals", Path: "/referrals", requires: rbac.Capability(roles.MustParseCapability("portal:referrals:create"))},
		{Key: "contacts", Title: "Contacts", Path: "/contacts", requires: rbac.Capability(roles.MustParseCapability("portal:contacts:view"))},
		{Key: "investor", Title: "Investor room", Path: "/investor", requires: rbac.AnyRole(roles.Investor, roles.SuperAdmin)},
		{Key: "admin", Title: "Administration", Path: "/admin", requires: rbac.AnyRole(roles.Admin, roles.SuperAdmin)},
	}
}

// NavigationHandler lists the sections visible to the caller.
type NavigationHandler struct {
	rbac     rbac.Middleware
	sections []Section
	logger   *slog.Logger
}

// NewNavigationHandler constructs the handler. A nil sections slice uses DefaultSections.
func NewNavigationHandler(logger *slog.Logger, m rbac.Middleware, sections []Section) *NavigationHandler {
	if sections == nil {
		sections = DefaultSections()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NavigationHandler{rbac: m, sections: sections, logger: logger}
}

func (h *NavigationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	held, err := h.rbac.HeldRoles(r)
	if errors.Is(err, shared.ErrUnauthenticated) {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("navigation roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resolver := h.rbac.Resolver
	if resolver == nil {
		resolver = roles.Default
	}
	visible := make([]Section, 0, len(h.sections))
	for _, s := range h.sections {
		if s.requires == nil || s.requires(resolver, held) {
			visible = append(visible, s)
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sections": visible})
}
