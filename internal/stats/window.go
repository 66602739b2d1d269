package stats

import (
	"strings"
	"time"

	"roomstats/internal/model"
)

// DateLayout is the day-key format used in every per-day statistic.
const DateLayout = "2006-01-02"

// Range is the caller-facing time-range selector.
type Range string

const (
	RangeDay   Range = "day"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeAll   Range = "all"
)

// ParseRange maps a query value to a Range. Unknown or empty values
// select a week.
func ParseRange(s string) Range {
	switch Range(strings.ToLower(strings.TrimSpace(s))) {
	case RangeDay:
		return RangeDay
	case RangeMonth:
		return RangeMonth
	case RangeAll:
		return RangeAll
	default:
		return RangeWeek
	}
}

// Days returns the window length of r; RangeAll has none and returns 0.
func (r Range) Days() int {
	switch r {
	case RangeDay:
		return 1
	case RangeWeek:
		return 7
	case RangeMonth:
		return 30
	default:
		return 0
	}
}

// TrendDays is the length of a daily usage series for r. Weekly trends
// span two weeks; RangeAll falls back to the same.
func (r Range) TrendDays() int {
	switch r {
	case RangeDay:
		return 1
	case RangeMonth:
		return 30
	default:
		return 14
	}
}

// Window is an N-day span of whole calendar days ending today.
type Window struct {
	// Start is 00:00 of the first day.
	Start time.Time
	// End is the last representable instant of today.
	End  time.Time
	Days int
}

// NewWindow returns the window of days calendar days, today included, in
// loc. days below 1 is treated as 1.
func NewWindow(now time.Time, days int, loc *time.Location) Window {
	if days < 1 {
		days = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return Window{
		Start: today.AddDate(0, 0, -(days - 1)),
		End:   today.AddDate(0, 0, 1).Add(-time.Nanosecond),
		Days:  days,
	}
}

// Contains reports whether t lies within [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DayKeys returns every day of the window, oldest first.
func (w Window) DayKeys() []string {
	keys := make([]string, 0, w.Days)
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		keys = append(keys, d.Format(DateLayout))
	}
	return keys
}

// Today is the day key of the window's last day.
func (w Window) Today() string {
	return w.End.Format(DateLayout)
}

// InWindow returns the occurrences whose start lies within w, in input order.
func InWindow(occs []model.Occurrence, w Window) []model.Occurrence {
	out := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if w.Contains(o.Start) {
			out = append(out, o)
		}
	}
	return out
}

// FilterLocation keeps occurrences whose location contains match. An empty
// match keeps everything.
func FilterLocation(occs []model.Occurrence, match string) []model.Occurrence {
	if match == "" {
		return occs
	}
	out := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if strings.Contains(o.Location, match) {
			out = append(out, o)
		}
	}
	return out
}

// dayKey attributes t to the calendar day containing it, in t's location.
// Occurrences are already normalized to the reference zone.
func dayKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateLayout)
}
