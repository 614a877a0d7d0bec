package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ErrPromoteRejected is returned when promote_user reports failure.
var ErrPromoteRejected = errors.New("profiles: promotion rejected")

// RejectedError carries the procedure's message for the end user.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return ErrPromoteRejected.Error() + ": " + e.Message }

func (e *RejectedError) Unwrap() error { return ErrPromoteRejected }

// UserMessage returns text safe to show to the admin.
func (e *RejectedError) UserMessage() string {
	if e.Message == "" {
		return "The user could not be promoted."
	}
	return e.Message
}

// Store is the persistence port of the service.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (Profile, error)
	List(ctx context.Context, f ListFilter) ([]Profile, error)
	Promote(ctx context.Context, target uuid.UUID, role roles.Role) (PromoteResult, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheObserver receives role cache hit and miss events.
type CacheObserver interface {
	RoleCacheLookup(hit bool)
}

// Service reads profiles and resolves role lists through the cache.
type Service struct {
	store    Store
	cache    RoleCache
	audit    Auditor
	observer CacheObserver
	logger   *slog.Logger
}

// NewService builds Service instance. cache and audit may be nil.
func NewService(store Store, cache RoleCache, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, audit: audit, logger: logger}
}

// WithObserver attaches a cache observer and returns s.
func (s *Service) WithObserver(o CacheObserver) *Service {
	s.observer = o
	return s
}

// Profile returns the profile for userID.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	p, err := s.store.Get(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if parsed, err := roles.Parse(string(p.Role)); err == nil {
		p.Role = parsed
	}
	return p, nil
}

// List returns a page of profiles for administrators.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Profile, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", roles.ErrUnknownRole, f.Role)
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.List(ctx, f)
}

// Roles returns the role list for userID, reading through the cache unless
// forceRefresh is set. The cache generation is captured before the store
// read so an invalidation racing the read discards the stale list.
func (s *Service) Roles(ctx context.Context, userID uuid.UUID, forceRefresh bool) ([]roles.Role, error) {
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		held, g, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("role cache read", slog.Any("error", err))
		} else {
			gen, cacheable = g, true
			if !forceRefresh {
				s.observe(ok)
				if ok {
					return held, nil
				}
			}
		}
	}
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	var held []roles.Role
	if p.Role != "" {
		held = []roles.Role{p.Role}
	}
	if cacheable {
		if err := s.cache.Set(ctx, userID, gen, held); err != nil {
			s.logger.Warn("role cache write", slog.Any("error", err))
		}
	}
	return held, nil
}

func (s *Service) observe(hit bool) {
	if s.observer != nil {
		s.observer.RoleCacheLookup(hit)
	}
}

// InvalidateRoles drops any cached role list for userID.
func (s *Service) InvalidateRoles(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, userID)
}

// Promote changes target's role through the promote_user procedure.
func (s *Service) Promote(ctx context.Context, actor uuid.UUID, target uuid.UUID, role roles.Role) (PromoteResult, error) {
	if !role.Valid() {
		return PromoteResult{}, fmt.Errorf("%w: %q", roles.ErrUnknownRole, role)
	}
	res, err := s.store.Promote(ctx, target, role)
	if err != nil {
		return PromoteResult{}, err
	}
	if !res.Success {
		return res, &RejectedError{Message: res.Message}
	}
	if err := s.InvalidateRoles(ctx, target); err != nil {
		s.logger.Warn("invalidate promoted roles", slog.Any("error", err))
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor,
			Action:   "promote_user",
			Entity:   "profiles",
			EntityID: target.String(),
			Meta:     map[string]any{"role": string(role)},
		}); err != nil {
			s.logger.Warn("audit promote", slog.Any("error", err))
		}
	}
	return res, nil
}
