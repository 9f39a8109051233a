package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/praxishq/praxis/internal/shared"
	_ "github.com/praxishq/praxis/testing"
)

type memoryRepo struct {
	logs []shared.AuditLog
}

func (r *memoryRepo) matches(log shared.AuditLog, f TimelineFilters) bool {
	if f.ActorID != 0 && log.ActorID != f.ActorID {
		return false
	}
	if f.Entity != "" && log.Entity != f.Entity {
		return false
	}
	if f.Action != "" && (len(log.Action) < len(f.Action) || log.Action[:len(f.Action)] != f.Action) {
		return false
	}
	if !f.From.IsZero() && log.At.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && log.At.After(f.To) {
		return false
	}
	return true
}

func (r *memoryRepo) Timeline(ctx context.Context, f TimelineFilters) ([]shared.AuditLog, error) {
	var all []shared.AuditLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.matches(r.logs[i], f) {
			all = append(all, r.logs[i])
		}
	}
	start := (f.Page - 1) * f.PerPage
	if start >= len(all) {
		return nil, nil
	}
	end := start + f.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *memoryRepo) CountTimeline(ctx context.Context, f TimelineFilters) (int, error) {
	total := 0
	for _, log := range r.logs {
		if r.matches(log, f) {
			total++
		}
	}
	return total, nil
}

func seedLogs(n int, entity string) []shared.AuditLog {
	base := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	logs := make([]shared.AuditLog, 0, n)
	for i := 0; i < n; i++ {
		logs = append(logs, shared.AuditLog{
			ActorID:  int64(i%3 + 1),
			Action:   "billing.task.complete",
			Entity:   entity,
			EntityID: "1",
			At:       base.Add(time.Duration(i) * time.Hour),
		})
	}
	return logs
}

func TestTimelinePagesNewestFirst(t *testing.T) {
	repo := &memoryRepo{logs: seedLogs(45, "task")}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PerPage: 20})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.Equal(t, 45, result.Paging.Total)
	require.Equal(t, 3, result.Paging.TotalPages)
	// Newest entry leads.
	require.True(t, result.Rows[0].At.After(result.Rows[1].At))

	last, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PerPage: 20})
	require.NoError(t, err)
	require.Len(t, last.Rows, 5)
}

func TestTimelineDefaultsAndCaps(t *testing.T) {
	repo := &memoryRepo{logs: seedLogs(5, "task")}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PerPage: 500})
	require.NoError(t, err)
	require.Equal(t, 20, result.Paging.PerPage)
	require.Equal(t, 1, result.Paging.Page)
}

func TestTimelineRejectsInvertedWindow(t *testing.T) {
	svc := NewService(&memoryRepo{})

	_, err := svc.Timeline(context.Background(), TimelineFilters{
		From: time.Date(2025, time.October, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestTimelineFiltersByActorAndEntity(t *testing.T) {
	logs := append(seedLogs(6, "task"), seedLogs(3, "invoice")...)
	repo := &memoryRepo{logs: logs}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Entity: "invoice"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	for _, row := range result.Rows {
		require.Equal(t, "invoice", row.Entity)
	}

	result, err = svc.Timeline(context.Background(), TimelineFilters{ActorID: 2, Entity: "task"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Paging.Total)
}
