package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// maxExportRows bounds a single CSV export.
	maxExportRows = 5000
)

// Store is the persistence port of the service.
type Store interface {
	Timeline(ctx context.Context, p TimelineParams) ([]TimelineRow, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Store
}

// NewService builds an audit timeline service.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit rows.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	params := toParams(filters)
	params.OffsetRows = int32((page - 1) * pageSize)
	params.LimitRows = int32(pageSize + 1)

	rows, err := s.repo.Timeline(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row up to the export cap.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	params := toParams(filters)
	params.LimitRows = maxExportRows
	return s.repo.Timeline(ctx, params)
}

func toParams(f TimelineFilters) TimelineParams {
	p := TimelineParams{
		FromAt: toPgTime(f.From),
		ToAt:   toPgTime(f.To),
		Entity: optionalText(f.Entity),
		Action: optionalText(f.Action),
	}
	if f.ActorID != uuid.Nil {
		p.ActorID = pgtype.UUID{Bytes: [16]byte(f.ActorID), Valid: true}
	}
	return p
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
