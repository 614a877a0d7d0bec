package agreements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSaveFailed wraps any failure to persist an agreement.
	ErrSaveFailed = errors.New("agreements: save failed")
	// ErrStaleVersion is returned when a record names a non-current version.
	ErrStaleVersion = errors.New("agreements: version is not current")
)

// Store is the persistence port of the service.
type Store interface {
	HasAgreed(ctx context.Context, kind Kind, userID uuid.UUID, version string) (bool, error)
	Insert(ctx context.Context, kind Kind, rec Record) (bool, error)
}

// Notifier is told about newly stored agreements.
type Notifier interface {
	AgreementRecorded(ctx context.Context, kind Kind, rec Record) error
}

// Observer receives save outcomes for metrics.
type Observer interface {
	AgreementSaved(kind string, outcome string)
}

// Service checks and records agreements against current versions.
type Service struct {
	store    Store
	notifier Notifier
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service. notifier and observer may be nil.
func NewService(store Store, notifier Notifier, observer Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, observer: observer, logger: logger, now: time.Now}
}

// HasAgreed reports whether userID accepted the current version of kind.
func (s *Service) HasAgreed(ctx context.Context, kind Kind, userID uuid.UUID) (bool, error) {
	return s.store.HasAgreed(ctx, kind, userID, kind.CurrentVersion())
}

// Status checks every agreement kind concurrently.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (Status, error) {
	var st Status
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := s.HasAgreed(ctx, KindNDA, userID)
		st.NDA = ok
		return err
	})
	g.Go(func() error {
		ok, err := s.HasAgreed(ctx, KindMembership, userID)
		st.Membership = ok
		return err
	})
	if err := g.Wait(); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Save appends rec for kind. Failures are wrapped in ErrSaveFailed so
// callers can report them; nothing is retried.
func (s *Service) Save(ctx context.Context, kind Kind, rec Record) error {
	if rec.Version != kind.CurrentVersion() {
		s.observe(kind, "stale")
		return fmt.Errorf("%w: %w: %q", ErrSaveFailed, ErrStaleVersion, rec.Version)
	}
	if rec.AgreedAt.IsZero() {
		rec.AgreedAt = s.now().UTC()
	}
	inserted, err := s.store.Insert(ctx, kind, rec)
	if err != nil {
		s.observe(kind, "error")
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if !inserted {
		s.observe(kind, "duplicate")
		return nil
	}
	s.observe(kind, "saved")
	if s.notifier != nil {
		if err := s.notifier.AgreementRecorded(ctx, kind, rec); err != nil {
			s.logger.Warn("agreement notification", slog.Any("error", err), slog.String("kind", string(kind)))
		}
	}
	return nil
}

func (s *Service) observe(kind Kind, outcome string) {
	if s.observer != nil {
		s.observer.AgreementSaved(string(kind), outcome)
	}
}
