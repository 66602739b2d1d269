package model

import "time"

// DefaultSummary is used when a VEVENT carries no SUMMARY.
const DefaultSummary = "Untitled"

// CalendarEvent is a single scheduled occupancy of a room as read from a
// feed, before recurrence expansion.
type CalendarEvent struct {
	// UID is the feed-supplied identifier; may be empty.
	UID string

	Summary  string
	Location string

	// Start / End are in the reference timezone. Start is always before End
	// for events the parser emits.
	Start time.Time
	End   time.Time

	// RRule is the raw RRULE value (e.g. "FREQ=WEEKLY;BYDAY=MO") of a
	// recurring parent; empty for single events.
	RRule string
}

// Duration returns End - Start.
func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// DurationMinutes returns the duration in (possibly fractional) minutes.
func (e CalendarEvent) DurationMinutes() float64 {
	return e.Duration().Minutes()
}

// Occurrence is a concrete, non-recurring booking used by the aggregator.
// It is either a single feed event or one expanded instance of a recurring
// parent.
type Occurrence struct {
	// ID is the effective identifier used for deduplication: the feed UID
	// for single events, "<parent uid>_<start unix ms>" for instances.
	ID string `json:"id"`
	// ParentUID is the UID of the recurring parent, empty for single events.
	ParentUID string `json:"parent_uid,omitempty"`

	Summary  string `json:"summary"`
	Location string `json:"location,omitempty"`

	// Start / End are in the reference timezone.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Recurring bool `json:"recurring"`
}

// Duration returns End - Start.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Hours returns the duration in fractional hours.
func (o Occurrence) Hours() float64 {
	return o.Duration().Hours()
}
