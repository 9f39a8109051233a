package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFirstDueDateAnchorsInStartMonth(t *testing.T) {
	due := FirstDueDate(date(2025, time.October, 7), Monthly, 10)
	require.Equal(t, date(2025, time.October, 10), due)
}

func TestFirstDueDateRollsForwardWhenAnchorPassed(t *testing.T) {
	// Start on the 15th with anchor 10: the October anchor already
	// passed, so the first due date is November 10.
	due := FirstDueDate(date(2025, time.October, 15), Monthly, 10)
	require.Equal(t, date(2025, time.November, 10), due)
}

func TestNextDueDateClipsShortMonths(t *testing.T) {
	due := NextDueDate(Monthly, date(2025, time.January, 31), 31)
	require.Equal(t, date(2025, time.February, 28), due)

	// Leap year clips to the 29th.
	due = NextDueDate(Monthly, date(2024, time.January, 31), 31)
	require.Equal(t, date(2024, time.February, 29), due)

	// After a clipped month the anchor day is restored.
	due = NextDueDate(Monthly, date(2025, time.February, 28), 31)
	require.Equal(t, date(2025, time.March, 31), due)
}

func TestNextDueDateQuarterly(t *testing.T) {
	due := NextDueDate(Quarterly, date(2025, time.November, 30), 30)
	require.Equal(t, date(2026, time.February, 28), due)
}

func TestPeriodBounds(t *testing.T) {
	cases := []struct {
		rec        Recurrence
		due        time.Time
		start, end time.Time
	}{
		{Monthly, date(2025, time.October, 10), date(2025, time.October, 1), date(2025, time.October, 31)},
		{Quarterly, date(2025, time.November, 15), date(2025, time.October, 1), date(2025, time.December, 31)},
		{HalfYearly, date(2025, time.August, 1), date(2025, time.July, 1), date(2025, time.December, 31)},
		{Yearly, date(2025, time.March, 31), date(2025, time.January, 1), date(2025, time.December, 31)},
	}
	for _, tc := range cases {
		start, end := PeriodBounds(tc.rec, tc.due)
		require.Equal(t, tc.start, start, "start for %s %s", tc.rec, tc.due)
		require.Equal(t, tc.end, end, "end for %s %s", tc.rec, tc.due)
	}
}

func TestPeriodLabel(t *testing.T) {
	require.Equal(t, "October 2025", PeriodLabel(Monthly, date(2025, time.October, 10)))
	require.Equal(t, "Q4 2025", PeriodLabel(Quarterly, date(2025, time.November, 15)))
	require.Equal(t, "H2 2025", PeriodLabel(HalfYearly, date(2025, time.August, 1)))
	require.Equal(t, "2025", PeriodLabel(Yearly, date(2025, time.March, 31)))
}

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, StatusPending, DeriveStatus(0, 0))
	require.Equal(t, StatusPending, DeriveStatus(3, 0))
	require.Equal(t, StatusInProgress, DeriveStatus(3, 1))
	require.Equal(t, StatusCompleted, DeriveStatus(3, 3))
}
