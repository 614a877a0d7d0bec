package identity

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dspops/portal/internal/platform/httpx"
	"github.com/dspops/portal/internal/shared"
)

// Handler exposes session endpoints.
type Handler struct {
	logger   *slog.Logger
	provider *Provider
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, provider *Provider) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, provider: provider}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/session", h.session)
	r.Post("/sign-out", h.signOut)
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		httpx.JSON(w, http.StatusOK, sessionResponse{})
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Authenticated: true, UserID: id.UserID.String(), Email: id.Email})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.provider.SignOut(r.Context(), id); err != nil {
		h.logger.Error("sign out", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
