package leave

import (
	"time"

	leaveerrors "go-leave/internal/leave/errors"
)

const dateLayout = "2006-01-02"

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, leaveerrors.ErrInvalidDateFormat
	}
	return t, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// validateDates rejects reversed ranges and ranges starting strictly in the
// past. A same-day start is allowed.
func validateDates(start, end, today time.Time) error {
	if start.After(end) {
		return leaveerrors.ErrInvalidDateRange
	}
	if start.Before(today) {
		return leaveerrors.ErrPastStartDate
	}
	return nil
}

// leaveDays counts calendar days with both endpoints included; a request
// for a single day is one day. Weekends and holidays count like any other.
func leaveDays(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}
