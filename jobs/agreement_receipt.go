package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dspops/portal/internal/agreements"
	jobmetrics "github.com/dspops/portal/internal/jobs"
	"github.com/dspops/portal/internal/legal"
)

// Documents resolves the accepted document for a receipt.
type Documents interface {
	ForAgreement(kind agreements.Kind) (legal.Document, error)
}

// EmailQueue hands rendered mail to the send-email task.
type EmailQueue interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AgreementReceiptJob renders a copy of what a member accepted and queues
// it for delivery, so delivery retries independently of rendering.
type AgreementReceiptJob struct {
	Documents Documents
	Outbox    EmailQueue
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskTypeAgreementReceipt tasks.
func (j *AgreementReceiptJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Outbox == nil || j.Documents == nil {
		return errors.New("agreement receipt: handler not configured")
	}
	var payload AgreementReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	kind, err := agreements.ParseKind(payload.Kind)
	if err != nil || payload.Email == "" {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeAgreementReceipt)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	doc, err := j.Documents.ForAgreement(kind)
	if err != nil {
		return err
	}
	msg := SendEmailPayload{
		To:      payload.Email,
		Subject: fmt.Sprintf("Your copy of the %s", doc.Title),
		Body:    receiptBody(doc, payload),
	}
	taskID := fmt.Sprintf("mail:receipt:%s:%s:%s", kind, payload.UserID, payload.Version)
	_, err = j.Outbox.EnqueueSendEmail(ctx, msg, asynq.TaskID(taskID), asynq.MaxRetry(10))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		j.logger().Error("queue agreement receipt", slog.Any("error", err), slog.String("user_id", payload.UserID.String()))
		return err
	}
	return nil
}

func receiptBody(doc legal.Document, p AgreementReceiptPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s accepted the %s (version %s) on %s.\n\n", p.TypedName, doc.Title, p.Version, p.AgreedAt.UTC().Format(time.RFC1123))
	if p.Version != doc.Version {
		fmt.Fprintf(&b, "The current version is %s. The text below is the current version.\n\n", doc.Version)
	}
	b.WriteString(doc.Markdown)
	return b.String()
}

func (j *AgreementReceiptJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
