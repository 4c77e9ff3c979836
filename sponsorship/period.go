package sponsorship

import "time"

// =============================================================================
// PERIOD - Closed date interval used for aggregation and reporting
// =============================================================================

// Period is the closed interval [Start, End] at day granularity.
// A measurement taken at any time on the End date is inside the period.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalizes both bounds to UTC midnight and rejects End < Start.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: Day(start), End: Day(end)}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// MustPeriod is NewPeriod for literals known to be valid.
func MustPeriod(start, end time.Time) Period {
	p, err := NewPeriod(start, end)
	if err != nil {
		panic(err)
	}
	return p
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Contains returns true if t falls on a day within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(p.Start)) && !d.After(Day(p.End))
}

// Overlaps returns true if the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !Day(other.End).Before(Day(p.Start)) && !Day(other.Start).After(Day(p.End))
}

// Days returns the whole number of days between Start and End.
// A single-day period has zero length.
func (p Period) Days() int {
	return int(Day(p.End).Sub(Day(p.Start)).Hours() / 24)
}

func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}
