package gate

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dspops/portal/internal/agreements"
	"github.com/dspops/portal/internal/platform/httpx"
	"github.com/dspops/portal/internal/shared"
)

// Handler exposes the gate over HTTP.
type Handler struct {
	logger    *slog.Logger
	gate      *Gate
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, gate *Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: gate, validator: validator.New()}
}

// MountRoutes registers gate routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.status)
	r.Post("/{document}/confirm", h.confirm)
}

type confirmRequest struct {
	TypedName string `json:"typed_name" validate:"required"`
}

type confirmError struct {
	Snapshot
	Error string `json:"error"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	snap := h.gate.Evaluate(r.Context(), shared.IdentityFromContext(r.Context()))
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	kind, err := agreements.ParseKind(chi.URLParam(r, "document"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "type your full name to confirm")
		return
	}

	snap, err := h.gate.Confirm(r.Context(), shared.IdentityFromContext(r.Context()), kind, req.TypedName, r.UserAgent())
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, snap)
	case errors.Is(err, shared.ErrUnauthenticated):
		httpx.JSON(w, http.StatusUnauthorized, confirmError{Snapshot: snap, Error: "sign in to continue"})
	case errors.Is(err, ErrNameMismatch):
		httpx.JSON(w, http.StatusUnprocessableEntity, confirmError{Snapshot: snap, Error: "the name you typed must match your profile exactly"})
	case errors.Is(err, ErrOutOfOrder):
		httpx.JSON(w, http.StatusConflict, confirmError{Snapshot: snap, Error: "this document is not awaiting confirmation"})
	case errors.Is(err, ErrUnavailable):
		httpx.JSON(w, http.StatusServiceUnavailable, confirmError{Snapshot: snap, Error: snap.Message})
	case errors.Is(err, agreements.ErrSaveFailed):
		httpx.JSON(w, http.StatusBadGateway, confirmError{Snapshot: snap, Error: snap.Message})
	default:
		h.logger.Error("gate confirm", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// Middleware lets requests through only once the gate is satisfied.
// Otherwise it answers with the snapshot the UI needs to render the gate.
func Middleware(g *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.Evaluate(r.Context(), shared.IdentityFromContext(r.Context()))
			switch snap.State {
			case StateSatisfied:
				next.ServeHTTP(w, r)
			case StateUnauthenticated:
				httpx.JSON(w, http.StatusUnauthorized, snap)
			case StateError:
				httpx.JSON(w, http.StatusServiceUnavailable, snap)
			default:
				httpx.JSON(w, http.StatusPreconditionRequired, snap)
			}
		})
	}
}
