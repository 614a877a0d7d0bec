package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dspops/portal/internal/agreements"
	"github.com/dspops/portal/internal/shared"
)

// ErrNoRecipient is returned when the caller's email is unknown.
var ErrNoRecipient = errors.New("jobs: no email recipient in context")

// Enqueuer is the subset of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AgreementNotifier queues a receipt email whenever an agreement is stored.
type AgreementNotifier struct {
	queue Enqueuer
}

// NewAgreementNotifier constructs the notifier.
func NewAgreementNotifier(queue Enqueuer) *AgreementNotifier {
	return &AgreementNotifier{queue: queue}
}

// AgreementRecorded enqueues the receipt task. The task ID is derived from
// the record so a repeated call never queues a second email.
func (n *AgreementNotifier) AgreementRecorded(ctx context.Context, kind agreements.Kind, rec agreements.Record) error {
	id := shared.IdentityFromContext(ctx)
	if id == nil || id.Email == "" {
		return ErrNoRecipient
	}
	task, err := NewAgreementReceiptTask(AgreementReceiptPayload{
		UserID:    rec.UserID,
		Email:     id.Email,
		Kind:      string(kind),
		Version:   rec.Version,
		TypedName: rec.TypedName,
		AgreedAt:  rec.AgreedAt,
	})
	if err != nil {
		return err
	}
	taskID := fmt.Sprintf("receipt:%s:%s:%s", kind, rec.UserID, rec.Version)
	_, err = n.queue.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.TaskID(taskID), asynq.MaxRetry(5))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
