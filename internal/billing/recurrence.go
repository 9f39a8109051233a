package billing

import (
	"fmt"
	"time"
)

// DateOf truncates a timestamp to midnight UTC. Period arithmetic works
// at date granularity only.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// anchorDate resolves the anchor day within a month, clipping to the
// month length so day 31 lands on Feb 28/29 instead of overflowing.
func anchorDate(year int, month time.Month, day int) time.Time {
	if day < 1 {
		day = 1
	}
	if max := daysInMonth(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// addMonths advances by whole months anchored at the first of the month,
// so Jan 31 + 1 month lands in February, not March.
func addMonths(t time.Time, months int) (int, time.Month) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	return first.Year(), first.Month()
}

// FirstDueDate anchors the first due date at the start date's month. If
// the anchored date precedes the start date, it rolls forward one
// recurrence unit.
func FirstDueDate(start time.Time, rec Recurrence, anchorDay int) time.Time {
	start = DateOf(start)
	due := anchorDate(start.Year(), start.Month(), anchorDay)
	if due.Before(start) {
		due = NextDueDate(rec, due, anchorDay)
	}
	return due
}

// NextDueDate advances the due date by exactly one recurrence unit,
// re-applying the anchor day with clipping.
func NextDueDate(rec Recurrence, prev time.Time, anchorDay int) time.Time {
	year, month := addMonths(DateOf(prev), rec.Months())
	return anchorDate(year, month, anchorDay)
}

// PeriodBounds returns the full calendar unit containing the due date:
// the month, quarter, half-year or calendar year.
func PeriodBounds(rec Recurrence, due time.Time) (time.Time, time.Time) {
	due = DateOf(due)
	year := due.Year()
	switch rec {
	case Quarterly:
		q := (int(due.Month()) - 1) / 3
		start := time.Date(year, time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, -1)
	case HalfYearly:
		h := (int(due.Month()) - 1) / 6
		start := time.Date(year, time.Month(h*6+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 6, -1)
	case Yearly:
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, -1)
	default:
		start := time.Date(year, due.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1)
	}
}

// PeriodLabel derives the human label for a period, e.g. "October 2025",
// "Q4 2025", "H2 2025" or "2025".
func PeriodLabel(rec Recurrence, due time.Time) string {
	switch rec {
	case Quarterly:
		return fmt.Sprintf("Q%d %d", (int(due.Month())-1)/3+1, due.Year())
	case HalfYearly:
		return fmt.Sprintf("H%d %d", (int(due.Month())-1)/6+1, due.Year())
	case Yearly:
		return fmt.Sprintf("%d", due.Year())
	default:
		return due.Format("January 2006")
	}
}
