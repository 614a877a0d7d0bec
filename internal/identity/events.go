package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const eventsChannel = "identity.events"

// EventKind names an identity change.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// Event is broadcast to every API instance when an identity changes.
type Event struct {
	Kind   EventKind `json:"kind"`
	UserID uuid.UUID `json:"user_id"`
	At     time.Time `json:"at"`
}

// Events publishes and listens for identity changes over Redis pub/sub.
type Events struct {
	client *redis.Client
	logger *slog.Logger
}

// NewEvents constructs the broadcaster.
func NewEvents(client *redis.Client, logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{client: client, logger: logger}
}

// Publish broadcasts ev.
func (e *Events) Publish(ctx context.Context, ev Event) error {
	if e == nil || e.client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return e.client.Publish(ctx, eventsChannel, payload).Err()
}

// Listen subscribes once and calls fn for each event until ctx ends.
// The subscription is confirmed before Listen returns.
func (e *Events) Listen(ctx context.Context, fn func(context.Context, Event)) error {
	if e == nil || e.client == nil {
		return nil
	}
	pubsub := e.client.Subscribe(ctx, eventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					e.logger.Warn("identity event decode", slog.Any("error", err))
					continue
				}
				fn(ctx, ev)
			}
		}
	}()
	return nil
}
