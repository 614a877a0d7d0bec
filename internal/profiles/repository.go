package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dspops/portal/internal/platform/db"
	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.Querier
}

// NewRepository constructs a repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// Get loads the profile for userID.
func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (Profile, error) {
	const query = `SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(role, ''),
		COALESCE(profile_complete, false), COALESCE(company_name, '')
		FROM profiles WHERE id = $1`
	var (
		p    Profile
		role string
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.FirstName, &p.LastName, &role, &p.ProfileComplete, &p.CompanyName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, fmt.Errorf("profiles: get: %w", err)
	}
	p.Role = roles.Role(role)
	return p, nil
}

// List returns profiles ordered by name.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Profile, error) {
	const query = `SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(role, ''),
		COALESCE(profile_complete, false), COALESCE(company_name, '')
		FROM profiles
		WHERE ($1 = '' OR role = $1)
		ORDER BY last_name, first_name, id
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, string(f.Role), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("profiles: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Profile, error) {
		var (
			p    Profile
			role string
		)
		if err := row.Scan(&p.UserID, &p.FirstName, &p.LastName, &role, &p.ProfileComplete, &p.CompanyName); err != nil {
			return Profile{}, err
		}
		p.Role = roles.Role(role)
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("profiles: list: %w", err)
	}
	return out, nil
}

// Promote invokes the promote_user procedure.
func (r *Repository) Promote(ctx context.Context, target uuid.UUID, role roles.Role) (PromoteResult, error) {
	var res PromoteResult
	err := r.db.QueryRow(ctx, `SELECT success, COALESCE(message, '') FROM promote_user($1, $2)`, target, string(role)).Scan(&res.Success, &res.Message)
	if err != nil {
		return PromoteResult{}, fmt.Errorf("profiles: promote: %w", err)
	}
	return res, nil
}
