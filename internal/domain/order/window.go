package order

import "time"

// DateLayout is the calendar date format accepted by range queries.
const DateLayout = "2006-01-02"

// DayBounds widens t to its calendar day in loc: [00:00:00.000, 23:59:59.999].
// Timestamps are stored at millisecond precision, so the upper bound is inclusive.
func DayBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// Stamp truncates t to the precision orders are persisted with.
func Stamp(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}
