package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dspops/portal/internal/platform/db"
)

// TimelineParams are the bound filters of a timeline query.
type TimelineParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	ActorID    pgtype.UUID
	Entity     pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

const timelineQuery = `
SELECT occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::uuid IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, entity_id
OFFSET $6 LIMIT $7`

// Repository reads audit_logs.
type Repository struct {
	db db.Querier
}

// NewRepository constructs a Repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// Timeline returns rows matching p.
func (r *Repository) Timeline(ctx context.Context, p TimelineParams) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, timelineQuery, p.FromAt, p.ToAt, p.ActorID, p.Entity, p.Action, p.OffsetRows, p.LimitRows)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out   TimelineRow
			at    pgtype.Timestamptz
			actor pgtype.UUID
			meta  []byte
		)
		if err := row.Scan(&at, &actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if at.Valid {
			out.At = at.Time
		}
		if actor.Valid {
			out.ActorID = uuid.UUID(actor.Bytes)
		}
		if len(meta) > 0 && string(meta) != "null" {
			out.Meta = json.RawMessage(meta)
		}
		return out, nil
	})
}
