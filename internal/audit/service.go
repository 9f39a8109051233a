package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/praxishq/praxis/internal/shared"
)

const maxPageSize = 50

// TimelineFilters narrows the audit timeline. Zero values mean "no
// filter" for every field.
type TimelineFilters struct {
	ActorID int64
	Entity  string
	Action  string
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

// Result is one timeline page together with its paging metadata.
type Result struct {
	Rows   []shared.AuditLog
	Paging shared.Pagination
}

// Repository reads audit_logs.
type Repository interface {
	Timeline(ctx context.Context, f TimelineFilters) ([]shared.AuditLog, error)
	CountTimeline(ctx context.Context, f TimelineFilters) (int, error)
}

// Service serves the audit timeline read side. Writing stays with
// shared.AuditLogger; this package never inserts.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit records, newest first.
func (s *Service) Timeline(ctx context.Context, f TimelineFilters) (Result, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return Result{}, fmt.Errorf("%w: time window end precedes start", shared.ErrInvalidInput)
	}
	if f.PerPage <= 0 || f.PerPage > maxPageSize {
		f.PerPage = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	total, err := s.repo.CountTimeline(ctx, f)
	if err != nil {
		return Result{}, err
	}
	rows, err := s.repo.Timeline(ctx, f)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Rows:   rows,
		Paging: shared.NewPagination(f.Page, f.PerPage, total),
	}, nil
}
