package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dspops/portal/internal/agreements"
	"github.com/dspops/portal/internal/legal"
	"github.com/dspops/portal/internal/shared"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type stubMailer struct {
	sent []SendEmailPayload
	err  error
}

func (m *stubMailer) Send(ctx context.Context, from string, msg SendEmailPayload) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubOutbox struct {
	sent []SendEmailPayload
	opts [][]asynq.Option
	err  error
}

func (o *stubOutbox) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.sent = append(o.sent, payload)
	o.opts = append(o.opts, opts)
	return &asynq.TaskInfo{Type: TaskTypeSendEmail}, nil
}

func TestAgreementNotifierEnqueuesReceipt(t *testing.T) {
	queue := &stubEnqueuer{}
	n := NewAgreementNotifier(queue)
	userID := uuid.New()
	ctx := shared.ContextWithIdentity(context.Background(), &shared.Identity{UserID: userID, Email: "ada@example.com"})
	rec := agreements.Record{UserID: userID, Version: agreements.NDAVersion, TypedName: "Ada Lovelace", AgreedAt: time.Now()}

	require.NoError(t, n.AgreementRecorded(ctx, agreements.KindNDA, rec))
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskTypeAgreementReceipt, queue.tasks[0].Type())

	var payload AgreementReceiptPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	assert.Equal(t, "ada@example.com", payload.Email)
	assert.Equal(t, "nda", payload.Kind)
	assert.Equal(t, agreements.NDAVersion, payload.Version)
}

func TestAgreementNotifierDuplicateIsNotAnError(t *testing.T) {
	queue := &stubEnqueuer{err: asynq.ErrTaskIDConflict}
	ctx := shared.ContextWithIdentity(context.Background(), &shared.Identity{UserID: uuid.New(), Email: "a@b.c"})
	assert.NoError(t, NewAgreementNotifier(queue).AgreementRecorded(ctx, agreements.KindNDA, agreements.Record{}))
}

func TestAgreementNotifierRequiresRecipient(t *testing.T) {
	err := NewAgreementNotifier(&stubEnqueuer{}).AgreementRecorded(context.Background(), agreements.KindNDA, agreements.Record{})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestAgreementReceiptJob(t *testing.T) {
	lib, err := legal.Load()
	require.NoError(t, err)
	outbox := &stubOutbox{}
	job := &AgreementReceiptJob{Documents: lib, Outbox: outbox}

	task, err := NewAgreementReceiptTask(AgreementReceiptPayload{
		UserID:    uuid.New(),
		Email:     "ada@example.com",
		Kind:      "membership",
		Version:   agreements.MembershipVersion,
		TypedName: "Ada Lovelace",
		AgreedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, outbox.sent, 1)
	assert.Equal(t, "ada@example.com", outbox.sent[0].To)
	assert.Contains(t, outbox.sent[0].Body, "Ada Lovelace accepted")
	assert.NotContains(t, outbox.sent[0].Body, "The current version is")
	assert.Len(t, outbox.opts[0], 2)

	// The queued message is delivered by the send-email handler.
	mailer := &stubMailer{}
	mailTask, err := NewSendEmailTask(outbox.sent[0])
	require.NoError(t, err)
	require.NoError(t, (&EmailJob{Mailer: mailer, From: "portal@example.com"}).Handle(context.Background(), mailTask))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, outbox.sent[0].Subject, mailer.sent[0].Subject)
}

func TestAgreementReceiptJobAlreadyQueued(t *testing.T) {
	lib, err := legal.Load()
	require.NoError(t, err)
	job := &AgreementReceiptJob{Documents: lib, Outbox: &stubOutbox{err: asynq.ErrTaskIDConflict}}
	task, _ := NewAgreementReceiptTask(AgreementReceiptPayload{Kind: "nda", Email: "a@b.c", Version: agreements.NDAVersion})
	assert.NoError(t, job.Handle(context.Background(), task))
}

func TestAgreementReceiptJobSkipsBadPayload(t *testing.T) {
	lib, err := legal.Load()
	require.NoError(t, err)
	job := &AgreementReceiptJob{Documents: lib, Outbox: &stubOutbox{}}

	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeAgreementReceipt, []byte("{"))), asynq.SkipRetry)
	task, _ := NewAgreementReceiptTask(AgreementReceiptPayload{Kind: "lease", Email: "a@b.c"})
	assert.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestAgreementReceiptJobQueueFailureRetries(t *testing.T) {
	lib, err := legal.Load()
	require.NoError(t, err)
	boom := errors.New("redis down")
	job := &AgreementReceiptJob{Documents: lib, Outbox: &stubOutbox{err: boom}}
	task, _ := NewAgreementReceiptTask(AgreementReceiptPayload{Kind: "nda", Email: "a@b.c", Version: agreements.NDAVersion})
	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

type stubExecer struct {
	sql  string
	args []any
}

func (s *stubExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.sql = sql
	s.args = args
	return pgconn.NewCommandTag("DELETE 3"), nil
}

func TestIdempotencyPurgeJob(t *testing.T) {
	db := &stubExecer{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job := &IdempotencyPurgeJob{DB: db, clock: func() time.Time { return now }}

	task, err := NewIdempotencyPurgeTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Contains(t, db.sql, "DELETE FROM idempotency_keys")
	require.Len(t, db.args, 1)
	assert.Equal(t, now.Add(-time.Hour), db.args[0])

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskTypeIdempotencyPurge, nil)))
	assert.Equal(t, now.Add(-defaultIdempotencyMaxAge), db.args[0])
}

func TestEmailJob(t *testing.T) {
	mailer := &stubMailer{}
	job := &EmailJob{Mailer: mailer, From: "portal@example.com"}
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.c", Subject: "hi"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Len(t, mailer.sent, 1)

	empty, _ := NewSendEmailTask(SendEmailPayload{})
	assert.ErrorIs(t, job.Handle(context.Background(), empty), asynq.SkipRetry)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name      string
		inspector QueueInspector
		status    int
		body      string
	}{
		{name: "no inspector", status: http.StatusOK, body: `"pending":0`},
		{name: "pending", inspector: stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4}}, status: http.StatusOK, body: `"pending":4`},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial")}, status: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tt.inspector, nil).MountRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
			}
		})
	}
}
