package agreements

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dspops/portal/internal/platform/db"
	"github.com/dspops/portal/internal/shared"
)

type tables struct {
	hasAgreedFn string
	table       string
}

var kindTables = map[Kind]tables{
	KindNDA:        {hasAgreedFn: "has_user_agreed_nda", table: "nda_agreements"},
	KindMembership: {hasAgreedFn: "has_user_agreed_membership", table: "membership_agreements"},
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.Querier
	tx db.TxBeginner
}

// NewRepository constructs a repository. When tx is non-nil inserts and
// their audit rows commit together.
func NewRepository(q db.Querier, tx db.TxBeginner) *Repository {
	return &Repository{db: q, tx: tx}
}

// HasAgreed calls the store's has-user-agreed procedure for kind.
func (r *Repository) HasAgreed(ctx context.Context, kind Kind, userID uuid.UUID, version string) (bool, error) {
	t, ok := kindTables[kind]
	if !ok {
		return false, fmt.Errorf("agreements: unknown kind %q", kind)
	}
	var agreed bool
	if err := r.db.QueryRow(ctx, `SELECT `+t.hasAgreedFn+`($1, $2)`, userID, version).Scan(&agreed); err != nil {
		return false, fmt.Errorf("agreements: %s status: %w", kind, err)
	}
	return agreed, nil
}

// Insert appends rec and its audit row. It reports false when the user
// already holds a record for that version.
func (r *Repository) Insert(ctx context.Context, kind Kind, rec Record) (bool, error) {
	t, ok := kindTables[kind]
	if !ok {
		return false, fmt.Errorf("agreements: unknown kind %q", kind)
	}
	if r.tx == nil {
		return insert(ctx, r.db, kind, t.table, rec)
	}
	var inserted bool
	err := db.WithTx(ctx, r.tx, func(tx pgx.Tx) error {
		var err error
		inserted, err = insert(ctx, tx, kind, t.table, rec)
		return err
	})
	return inserted, err
}

func insert(ctx context.Context, q db.Querier, kind Kind, table string, rec Record) (bool, error) {
	tag, err := q.Exec(ctx, `INSERT INTO `+table+` (user_id, version, agreed_text, typed_name, expected_name, user_agent, agreed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, version) DO NOTHING`,
		rec.UserID, rec.Version, rec.AgreedText, rec.TypedName, rec.ExpectedName, rec.UserAgent, rec.AgreedAt)
	if err != nil {
		return false, fmt.Errorf("agreements: insert %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	err = shared.RecordAudit(ctx, q, shared.AuditLog{
		ActorID:  rec.UserID,
		Action:   "agree",
		Entity:   table,
		EntityID: rec.UserID.String() + "@" + rec.Version,
		Meta:     map[string]any{"kind": string(kind), "user_agent": rec.UserAgent},
		At:       rec.AgreedAt,
	})
	if err != nil {
		return false, fmt.Errorf("agreements: audit %s: %w", kind, err)
	}
	return true, nil
}
