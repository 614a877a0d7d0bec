package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/dspops/portal/internal/agreements"
	"github.com/dspops/portal/internal/legal"
	"github.com/dspops/portal/internal/profiles"
	"github.com/dspops/portal/internal/shared"
)

var (
	// ErrNameMismatch is returned when the typed name differs from the profile.
	ErrNameMismatch = errors.New("gate: typed name does not match profile name")
	// ErrOutOfOrder is returned when confirming a document that is not pending.
	ErrOutOfOrder = errors.New("gate: document is not awaiting confirmation")
	// ErrUnavailable is returned when agreement status could not be determined.
	ErrUnavailable = errors.New("gate: status unavailable")
)

const (
	refreshMessage = "We couldn't verify your agreements. Please refresh the page."
	retryMessage   = "Your agreement could not be saved. Please try again."
)

// Profiles loads the caller's profile.
type Profiles interface {
	Profile(ctx context.Context, userID uuid.UUID) (profiles.Profile, error)
}

// Agreements checks and records acceptances.
type Agreements interface {
	Status(ctx context.Context, userID uuid.UUID) (agreements.Status, error)
	Save(ctx context.Context, kind agreements.Kind, rec agreements.Record) error
}

// Documents supplies the text a user accepts.
type Documents interface {
	ForAgreement(kind agreements.Kind) (legal.Document, error)
}

// Observer receives gate decisions for metrics.
type Observer interface {
	GateDecision(state string)
}

// Snapshot is what the UI needs to render the gate.
type Snapshot struct {
	State        State           `json:"state"`
	Document     *legal.Document `json:"document,omitempty"`
	ExpectedName string          `json:"expected_name,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// Gate evaluates and advances the legal gate.
type Gate struct {
	profiles   Profiles
	agreements Agreements
	documents  Documents
	observer   Observer
	logger     *slog.Logger
}

// New constructs a Gate. observer may be nil.
func New(profiles Profiles, agreements Agreements, documents Documents, observer Observer, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{profiles: profiles, agreements: agreements, documents: documents, observer: observer, logger: logger}
}

// Evaluate returns the gate state for id. A nil id is unauthenticated.
// Any failure while loading yields StateError rather than a guess.
func (g *Gate) Evaluate(ctx context.Context, id *shared.Identity) Snapshot {
	if id == nil {
		return g.decided(Snapshot{State: StateUnauthenticated})
	}
	profile, status, err := g.load(ctx, id.UserID)
	if err != nil {
		g.logger.Error("gate evaluate", slog.Any("error", err), slog.String("user_id", id.UserID.String()))
		return g.decided(Snapshot{State: StateError, Message: refreshMessage})
	}
	return g.decided(g.snapshot(Sequence(status.NDA, status.Membership), profile))
}

// Confirm records the caller's acceptance of kind and returns the next state.
// Only the pending document may be confirmed; confirming one already
// accepted is a no-op.
func (g *Gate) Confirm(ctx context.Context, id *shared.Identity, kind agreements.Kind, typedName, userAgent string) (Snapshot, error) {
	if id == nil {
		return Snapshot{State: StateUnauthenticated}, shared.ErrUnauthenticated
	}
	profile, status, err := g.load(ctx, id.UserID)
	if err != nil {
		g.logger.Error("gate confirm load", slog.Any("error", err), slog.String("user_id", id.UserID.String()))
		return Snapshot{State: StateError, Message: refreshMessage}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	current := g.snapshot(Sequence(status.NDA, status.Membership), profile)
	if status.Agreed(kind) {
		return current, nil
	}
	if current.State == StateError {
		return current, ErrUnavailable
	}
	if pending, _ := current.State.Pending(); pending != kind {
		return current, ErrOutOfOrder
	}
	expected := profile.FullName()
	if !NamesMatch(typedName, expected) {
		return current, ErrNameMismatch
	}
	doc, err := g.documents.ForAgreement(kind)
	if err != nil {
		return current, err
	}
	rec := agreements.Record{
		UserID:       id.UserID,
		Version:      kind.CurrentVersion(),
		AgreedText:   doc.Markdown,
		TypedName:    typedName,
		ExpectedName: expected,
		UserAgent:    userAgent,
	}
	if err := g.agreements.Save(ctx, kind, rec); err != nil {
		g.logger.Error("gate save agreement", slog.Any("error", err), slog.String("kind", string(kind)))
		current.Message = retryMessage
		return current, err
	}
	switch kind {
	case agreements.KindNDA:
		status.NDA = true
	case agreements.KindMembership:
		status.Membership = true
	}
	return g.decided(g.snapshot(Sequence(status.NDA, status.Membership), profile)), nil
}

// NamesMatch compares a typed attestation with the expected full name.
// Comparison is exact and case-sensitive after NFC normalisation, which only
// lets canonically equivalent spellings through. The UI's exact-equality
// check stays authoritative for enabling the confirm button.
func NamesMatch(typed, expected string) bool {
	if strings.TrimSpace(expected) == "" {
		return false
	}
	return norm.NFC.String(typed) == norm.NFC.String(expected)
}

func (g *Gate) load(ctx context.Context, userID uuid.UUID) (profiles.Profile, agreements.Status, error) {
	var (
		profile profiles.Profile
		status  agreements.Status
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		profile, err = g.profiles.Profile(ctx, userID)
		return err
	})
	eg.Go(func() error {
		var err error
		status, err = g.agreements.Status(ctx, userID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return profiles.Profile{}, agreements.Status{}, err
	}
	return profile, status, nil
}

func (g *Gate) snapshot(state State, profile profiles.Profile) Snapshot {
	snap := Snapshot{State: state}
	kind, pending := state.Pending()
	if !pending {
		return snap
	}
	doc, err := g.documents.ForAgreement(kind)
	if err != nil {
		g.logger.Error("gate document", slog.Any("error", err), slog.String("kind", string(kind)))
		return Snapshot{State: StateError, Message: refreshMessage}
	}
	snap.Document = &doc
	snap.ExpectedName = profile.FullName()
	return snap
}

func (g *Gate) decided(s Snapshot) Snapshot {
	if g.observer != nil {
		g.observer.GateDecision(string(s.State))
	}
	return s
}
