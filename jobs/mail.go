package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, from string, msg SendEmailPayload) error
}

// LogMailer writes emails to the log instead of delivering them.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs msg.
func (m LogMailer) Send(ctx context.Context, from string, msg SendEmailPayload) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email",
		slog.String("from", from),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

// EmailJob processes TaskTypeSendEmail tasks.
type EmailJob struct {
	Mailer Mailer
	From   string
}

// Handle sends the queued email.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mailer == nil {
		return errors.New("send email: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}
	return j.Mailer.Send(ctx, j.From, payload)
}
