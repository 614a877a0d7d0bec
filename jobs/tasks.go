package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeAgreementReceipt emails a member a copy of an accepted agreement.
	TaskTypeAgreementReceipt = "agreements:receipt"
	// TaskTypeIdempotencyPurge removes expired idempotency keys.
	TaskTypeIdempotencyPurge = "maintenance:idempotency_purge"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// AgreementReceiptPayload identifies one stored acceptance.
type AgreementReceiptPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Kind      string    `json:"kind"`
	Version   string    `json:"version"`
	TypedName string    `json:"typed_name"`
	AgreedAt  time.Time `json:"agreed_at"`
}

// IdempotencyPurgePayload configures the purge window.
type IdempotencyPurgePayload struct {
	MaxAge time.Duration `json:"max_age"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	return newTask(TaskTypeSendEmail, payload)
}

// NewAgreementReceiptTask constructs the receipt task.
func NewAgreementReceiptTask(payload AgreementReceiptPayload) (*asynq.Task, error) {
	return newTask(TaskTypeAgreementReceipt, payload)
}

// NewIdempotencyPurgeTask constructs the purge task.
func NewIdempotencyPurgeTask(maxAge time.Duration) (*asynq.Task, error) {
	return newTask(TaskTypeIdempotencyPurge, IdempotencyPurgePayload{MaxAge: maxAge})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}
