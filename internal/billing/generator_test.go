package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/praxishq/praxis/internal/catalog"
	"github.com/praxishq/praxis/internal/shared"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func f64(v float64) *float64 { return &v }

func newTestGenerator(repo *memoryRepo, now time.Time) *Generator {
	g := NewGenerator(repo, testLogger(), nil)
	g.WithNow(fixedClock(now))
	return g
}

func TestCreateWorkCatchesUpElapsedPeriods(t *testing.T) {
	repo := newMemoryRepo()
	repo.services[1] = ServiceBilling{Name: "Bookkeeping", PaymentTerms: catalog.TermsNet30}
	now := time.Date(2025, time.October, 20, 9, 0, 0, 0, time.UTC)
	g := newTestGenerator(repo, now)

	work, err := g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1,
		ServiceID:  1,
		Title:      "Monthly books",
		Recurring:  true,
		Recurrence: Monthly,
		AnchorDay:  10,
		StartDate:  time.Date(2025, time.October, 7, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, work.Active)

	periods, err := repo.ListPeriods(context.Background(), work.ID)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	require.Equal(t, time.Date(2025, time.October, 10, 0, 0, 0, 0, time.UTC), periods[0].DueDate)
	require.Equal(t, time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC), periods[1].DueDate)
	require.Equal(t, "October 2025", periods[0].Name)
	require.Equal(t, StatusPending, periods[0].Status)
}

func TestCreateWorkValidatesInput(t *testing.T) {
	repo := newMemoryRepo()
	g := newTestGenerator(repo, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))

	_, err := g.CreateWork(context.Background(), WorkInput{ServiceID: 1})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1, ServiceID: 1, Recurring: true, Recurrence: "weekly", AnchorDay: 10,
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1, ServiceID: 1, Recurring: true, Recurrence: Monthly, AnchorDay: 0,
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCreateWorkCopiesTemplatesIntoPeriod(t *testing.T) {
	repo := newMemoryRepo()
	repo.services[1] = ServiceBilling{Name: "VAT Filing", PaymentTerms: catalog.TermsNet15}
	repo.taskTemplates[1] = []catalog.TaskTemplate{
		{ServiceID: 1, Title: "Collect receipts", Priority: "high"},
		{ServiceID: 1, Title: "File return", Priority: "normal"},
	}
	repo.docTemplates[1] = []catalog.DocumentTemplate{
		{ServiceID: 1, Name: "Bank statement"},
	}
	now := time.Date(2025, time.October, 5, 0, 0, 0, 0, time.UTC)
	g := newTestGenerator(repo, now)

	work, err := g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1,
		ServiceID:  1,
		Title:      "VAT",
		Recurring:  true,
		Recurrence: Monthly,
		AnchorDay:  10,
		StartDate:  now,
	})
	require.NoError(t, err)

	periods, err := repo.ListPeriods(context.Background(), work.ID)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	require.Equal(t, 2, periods[0].TotalTasks)
	require.Equal(t, 0, periods[0].CompletedTasks)

	tasks, err := repo.ListTasks(context.Background(), OwnerRef{WorkID: work.ID, PeriodID: &periods[0].ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "Collect receipts", tasks[0].Title)
	require.Equal(t, TaskPending, tasks[0].Status)
	require.Equal(t, []string{"Bank statement"}, repo.docs[periods[0].ID])
}

func TestCreateWorkNonRecurringSeedsWorkTasks(t *testing.T) {
	repo := newMemoryRepo()
	repo.services[1] = ServiceBilling{Name: "Annual Audit"}
	repo.taskTemplates[1] = []catalog.TaskTemplate{
		{ServiceID: 1, Title: "Fieldwork"},
		{ServiceID: 1, Title: "Draft report"},
		{ServiceID: 1, Title: "Sign off"},
	}
	g := newTestGenerator(repo, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC))

	work, err := g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1, ServiceID: 1, Title: "FY25 audit",
	})
	require.NoError(t, err)

	stored, err := repo.GetWork(context.Background(), work.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.TotalTasks)
	require.Equal(t, StatusPending, stored.Status)

	periods, err := repo.ListPeriods(context.Background(), work.ID)
	require.NoError(t, err)
	require.Empty(t, periods)

	tasks, err := repo.ListTasks(context.Background(), OwnerRef{WorkID: work.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
}

func TestGeneratePeriodsIfDueIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	repo.services[1] = ServiceBilling{Name: "Bookkeeping"}
	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	g := newTestGenerator(repo, start)

	work, err := g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1, ServiceID: 1, Title: "Books",
		Recurring: true, Recurrence: Monthly, AnchorDay: 10, StartDate: start,
	})
	require.NoError(t, err)

	now := time.Date(2025, time.October, 20, 0, 0, 0, 0, time.UTC)
	created, err := g.GeneratePeriodsIfDue(context.Background(), now)
	require.NoError(t, err)
	// Jul 10 existed from creation; Aug, Sep, Oct and the upcoming Nov
	// period are new.
	require.Equal(t, 4, created)

	created, err = g.GeneratePeriodsIfDue(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 0, created)

	periods, err := repo.ListPeriods(context.Background(), work.ID)
	require.NoError(t, err)
	require.Len(t, periods, 5)
}

func TestGeneratePeriodsIfDueSkipsInactiveWorks(t *testing.T) {
	repo := newMemoryRepo()
	repo.services[1] = ServiceBilling{Name: "Bookkeeping"}
	start := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	g := newTestGenerator(repo, start)

	work, err := g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1, ServiceID: 1, Title: "Books",
		Recurring: true, Recurrence: Monthly, AnchorDay: 10, StartDate: start,
	})
	require.NoError(t, err)
	require.NoError(t, g.SetWorkActive(context.Background(), work.ID, false))

	created, err := g.GeneratePeriodsIfDue(context.Background(), time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 0, created)
}

func TestGenerateForWorkGuards(t *testing.T) {
	repo := newMemoryRepo()
	repo.services[1] = ServiceBilling{Name: "Bookkeeping"}
	now := time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	g := newTestGenerator(repo, now)

	oneOff, err := g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1, ServiceID: 1, Title: "One-off",
	})
	require.NoError(t, err)
	_, err = g.GenerateForWork(context.Background(), oneOff.ID, now)
	require.ErrorIs(t, err, ErrNotRecurring)

	recurring, err := g.CreateWork(context.Background(), WorkInput{
		CustomerID: 1, ServiceID: 1, Title: "Books",
		Recurring: true, Recurrence: Monthly, AnchorDay: 10, StartDate: now,
	})
	require.NoError(t, err)
	require.NoError(t, g.SetWorkActive(context.Background(), recurring.ID, false))
	_, err = g.GenerateForWork(context.Background(), recurring.ID, now)
	require.ErrorIs(t, err, ErrWorkInactive)
}
