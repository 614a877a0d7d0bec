package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dspops/portal/internal/shared"
)

// Provider resolves the current user for a request and signs users out.
type Provider struct {
	verifier *Verifier
	revoked  Revocations
	seen     Sightings
	events   *Events
	logger   *slog.Logger
}

// NewProvider wires the provider. revoked and events may be nil.
func NewProvider(verifier *Verifier, revoked Revocations, events *Events, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{verifier: verifier, revoked: revoked, events: events, logger: logger}
}

// WithSightings enables signed_in events on the first request per token.
func (p *Provider) WithSightings(s Sightings) *Provider {
	p.seen = s
	return p
}

// CurrentUser returns the verified identity behind r.
// It returns shared.ErrUnauthenticated when no usable token is present.
func (p *Provider) CurrentUser(r *http.Request) (*shared.Identity, error) {
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, shared.ErrUnauthenticated
	}
	id, err := p.verifier.Verify(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, err)
	}
	if p.revoked != nil {
		revoked, err := p.revoked.IsRevoked(r.Context(), id.TokenID)
		if err != nil {
			return nil, fmt.Errorf("identity: revocation lookup: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token signed out", shared.ErrUnauthenticated)
		}
	}
	p.announce(r.Context(), id)
	return id, nil
}

func (p *Provider) announce(ctx context.Context, id *shared.Identity) {
	if p.seen == nil {
		return
	}
	first, err := p.seen.MarkSeen(ctx, id.TokenID, id.ExpiresAt)
	if err != nil {
		p.logger.Warn("mark token seen", slog.Any("error", err))
		return
	}
	if !first {
		return
	}
	if err := p.events.Publish(ctx, Event{Kind: EventSignedIn, UserID: id.UserID, At: time.Now().UTC()}); err != nil {
		p.logger.Warn("publish sign-in", slog.Any("error", err))
	}
}

// Middleware attaches the identity to the request context when one is
// present. Anonymous requests pass through; guards decide what to do.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := p.CurrentUser(r)
		switch {
		case err == nil:
			r = r.WithContext(shared.ContextWithIdentity(r.Context(), id))
		case errors.Is(err, shared.ErrUnauthenticated):
			if errors.Is(err, shared.ErrInvalidToken) {
				p.logger.Debug("rejected bearer token", slog.Any("error", err))
			}
		default:
			p.logger.Error("resolve identity", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SignOut revokes the caller's token and notifies other instances.
func (p *Provider) SignOut(ctx context.Context, id *shared.Identity) error {
	if id == nil {
		return shared.ErrUnauthenticated
	}
	if id.TokenID == "" {
		return ErrNoTokenID
	}
	if p.revoked != nil {
		if err := p.revoked.Revoke(ctx, id.TokenID, id.ExpiresAt); err != nil {
			return fmt.Errorf("identity: revoke: %w", err)
		}
	}
	if err := p.events.Publish(ctx, Event{Kind: EventSignedOut, UserID: id.UserID, At: time.Now().UTC()}); err != nil {
		p.logger.Warn("publish sign-out", slog.Any("error", err))
	}
	return nil
}
