package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxishq/praxis/internal/shared"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed audit repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// timelineWhere builds the shared WHERE clause for timeline queries.
func timelineWhere(f TimelineFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorID != 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.Action != "" {
		add("action LIKE $%d", f.Action+"%")
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repository) Timeline(ctx context.Context, f TimelineFilters) ([]shared.AuditLog, error) {
	where, args := timelineWhere(f)
	offset := (f.Page - 1) * f.PerPage
	args = append(args, f.PerPage, offset)
	query := fmt.Sprintf(`SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs%s
ORDER BY occurred_at DESC, id DESC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shared.AuditLog
	for rows.Next() {
		var log shared.AuditLog
		if err := rows.Scan(&log.ID, &log.ActorID, &log.Action, &log.Entity, &log.EntityID, &log.Meta, &log.At); err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

func (r *repository) CountTimeline(ctx context.Context, f TimelineFilters) (int, error) {
	where, args := timelineWhere(f)
	var total int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total)
	if err != nil && err != pgx.ErrNoRows {
		return 0, err
	}
	return total, nil
}
