package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"

	jobmetrics "github.com/dspops/portal/internal/jobs"
)

const defaultIdempotencyMaxAge = 24 * time.Hour

// Execer runs a statement and reports affected rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IdempotencyPurgeJob deletes idempotency keys older than the payload window.
type IdempotencyPurgeJob struct {
	DB      Execer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// Handle processes TaskTypeIdempotencyPurge tasks.
func (j *IdempotencyPurgeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.DB == nil {
		return nil
	}
	var payload IdempotencyPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.MaxAge <= 0 {
		payload.MaxAge = defaultIdempotencyMaxAge
	}

	tracker := j.Metrics.Track(TaskTypeIdempotencyPurge)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-payload.MaxAge)
	tag, err := j.DB.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		j.logger().Error("purge idempotency keys", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurged(tag.RowsAffected())
	j.logger().Info("purged idempotency keys", slog.Int64("rows", tag.RowsAffected()), slog.Time("cutoff", cutoff))
	return nil
}

func (j *IdempotencyPurgeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *IdempotencyPurgeJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
