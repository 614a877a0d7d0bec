package profiles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dspops/portal/internal/platform/httpx"
	"github.com/dspops/portal/internal/rbac"
	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

// Idempotency guards against duplicate admin submissions.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler manages profile endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	rbac        rbac.Middleware
	idempotency Idempotency
	validator   *validator.Validate
}

// NewHandler builds Handler instance. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, idempotency Idempotency) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, idempotency: idempotency, validator: validator.New()}
}

// MountMe registers the caller's own profile routes.
func (h *Handler) MountMe(r chi.Router) {
	r.Get("/", h.me)
}

// MountAdmin registers administrative user routes.
func (h *Handler) MountAdmin(r chi.Router) {
	r.With(h.rbac.RequireCapability(roles.Cap("admin:users", "view"))).Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAnyRole(roles.Admin, roles.SuperAdmin))
		r.Post("/{id}/promote", h.promote)
	})
}

type profileResponse struct {
	UserID          string `json:"user_id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	FullName        string `json:"full_name"`
	Role            string `json:"role"`
	ProfileComplete bool   `json:"profile_complete"`
	CompanyName     string `json:"company_name"`
}

func toResponse(p Profile) profileResponse {
	return profileResponse{
		UserID:          p.UserID.String(),
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		FullName:        p.FullName(),
		Role:            p.Role.String(),
		ProfileComplete: p.ProfileComplete,
		CompanyName:     p.CompanyName,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f ListFilter
	if v := strings.TrimSpace(q.Get("role")); v != "" {
		role, err := roles.Parse(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role")
			return
		}
		f.Role = role
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be a non-negative integer")
				return
			}
			*dst = n
		}
	}
	list, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list profiles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]profileResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	p, err := h.service.Profile(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("load profile", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "Your profile could not be loaded. Please refresh the page.")
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

type promoteRequest struct {
	Role string `json:"role" validate:"required,oneof=portal_member investor admin super_admin"`
}

type promoteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) promote(w http.ResponseWriter, r *http.Request) {
	actor := shared.IdentityFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	target, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req promoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	req.Role = strings.TrimSpace(req.Role)
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "a valid role must be selected")
		return
	}
	role, err := roles.Parse(req.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "a valid role must be selected")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "promote_user"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "this request was already submitted")
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}

	res, err := h.service.Promote(r.Context(), actor.UserID, target, role)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(r.Context(), key); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			httpx.JSON(w, http.StatusUnprocessableEntity, promoteResponse{Success: false, Message: rejected.UserMessage()})
			return
		}
		h.logger.Error("promote user", slog.Any("error", err), slog.String("target", target.String()))
		httpx.JSON(w, http.StatusBadGateway, promoteResponse{Success: false, Message: "The user could not be promoted. Please try again."})
		return
	}
	msg := res.Message
	if msg == "" {
		msg = "User role updated."
	}
	httpx.JSON(w, http.StatusOK, promoteResponse{Success: true, Message: msg})
}
