package ics

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"roomstats/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000

	// defaultExpandHorizon bounds a weekly rule that has no usable UNTIL.
	defaultExpandHorizon = 365 * 24 * time.Hour

	unknownUID = "unknown"
)

// ExpandStatus tells callers whether a recurring parent could be expanded.
type ExpandStatus int

const (
	// ExpandExpanded means the rule was understood; Instances may still be
	// empty when the bound precedes the first matching weekday.
	ExpandExpanded ExpandStatus = iota
	// ExpandUnsupported means the rule shape is not handled and no
	// instances were produced. Reason says why.
	ExpandUnsupported
)

func (s ExpandStatus) String() string {
	switch s {
	case ExpandExpanded:
		return "expanded"
	case ExpandUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("ExpandStatus(%d)", int(s))
	}
}

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// MaxOccurrencesPerEvent is a safety cap to avoid extremely large
	// expansions (e.g. UNTIL in a far future year). If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult is the outcome of expanding one recurring parent.
type ExpandResult struct {
	Status    ExpandStatus
	Instances []model.Occurrence
	// Reason describes why the rule is unsupported.
	Reason string
	// Truncated is true when MaxOccurrencesPerEvent cut the expansion short.
	Truncated bool
}

// weekdays maps rrule-go weekday indices (0 = Monday) to canonical values.
var weekdays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// ExpandWeekly expands a parent carrying FREQ=WEEKLY with a single BYDAY.
//
// Starting from the parent's start, the first occurrence is the first day on
// or after it that falls on the target weekday (same wall-clock time in the
// parent's location); further occurrences follow every 7 days up to and
// including the bound. The bound is UNTIL when present and parseable, else
// the parent's start plus 365 days. INTERVAL and other rule parts are not
// consulted.
//
// Every instance keeps the parent's duration, summary and location and gets
// the identifier "<uid>_<start unix ms>" so that deduplication works per
// instance.
func ExpandWeekly(parent model.CalendarEvent, cfg ExpandConfig) ExpandResult {
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	if parent.RRule == "" {
		return unsupported("no RRULE")
	}
	if !parent.End.After(parent.Start) {
		return unsupported("non-positive duration")
	}

	parts := ruleParts(parent.RRule)
	freq := parts["FREQ"]
	if freq != "WEEKLY" {
		return unsupported(fmt.Sprintf("FREQ=%s is not supported", freq))
	}

	opt, hasUntil, err := parseRuleOption(parent.RRule, parts, parent.Start.Location())
	if err != nil {
		return unsupported("unparseable RRULE: " + err.Error())
	}
	if len(opt.Byweekday) != 1 {
		return unsupported(fmt.Sprintf("BYDAY must name exactly one weekday, got %d", len(opt.Byweekday)))
	}
	target := opt.Byweekday[0]
	if target.N() != 0 {
		return unsupported("BYDAY with an ordinal is not supported for WEEKLY")
	}

	start := parent.Start
	bound := start.Add(defaultExpandHorizon)
	if hasUntil && !opt.Until.IsZero() {
		bound = opt.Until
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Byweekday: []rrule.Weekday{weekdays[target.Day()]},
		Until:     bound,
	})
	if err != nil {
		return unsupported("rrule: " + err.Error())
	}

	uid := parent.UID
	if uid == "" {
		uid = unknownUID
	}
	dur := parent.End.Sub(parent.Start)
	loc := start.Location()

	result := ExpandResult{Status: ExpandExpanded, Instances: make([]model.Occurrence, 0)}
	next := r.Iterator()
	for {
		occStart, ok := next()
		if !ok {
			break
		}
		if len(result.Instances) >= cfg.MaxOccurrencesPerEvent {
			result.Truncated = true
			break
		}
		occStart = occStart.In(loc)
		result.Instances = append(result.Instances, model.Occurrence{
			ID:        InstanceID(uid, occStart),
			ParentUID: parent.UID,
			Summary:   parent.Summary,
			Location:  parent.Location,
			Start:     occStart,
			End:       occStart.Add(dur),
			Recurring: true,
		})
	}

	return result
}

// InstanceID synthesizes the identifier of one expanded instance.
func InstanceID(parentUID string, start time.Time) string {
	return fmt.Sprintf("%s_%d", parentUID, start.UnixMilli())
}

func unsupported(reason string) ExpandResult {
	return ExpandResult{Status: ExpandUnsupported, Reason: reason}
}

// ruleParts splits "FREQ=WEEKLY;BYDAY=MO" into an upper-cased key map.
func ruleParts(rule string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(rule, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// parseRuleOption parses rule with rrule-go. An UNTIL without a trailing Z
// is read in loc, like DTSTART. A malformed UNTIL is dropped (the caller
// then applies the default horizon) rather than failing the whole rule;
// hasUntil reports whether a usable UNTIL survived.
func parseRuleOption(rule string, parts map[string]string, loc *time.Location) (*rrule.ROption, bool, error) {
	opt, err := rrule.StrToROptionInLocation(rule, loc)
	if err == nil {
		return opt, parts["UNTIL"] != "", nil
	}
	if parts["UNTIL"] == "" {
		return nil, false, err
	}

	kept := make([]string, 0)
	for _, part := range strings.Split(rule, ";") {
		k, _, _ := strings.Cut(part, "=")
		if strings.EqualFold(strings.TrimSpace(k), "UNTIL") {
			continue
		}
		kept = append(kept, part)
	}
	opt, retryErr := rrule.StrToROptionInLocation(strings.Join(kept, ";"), loc)
	if retryErr != nil {
		return nil, false, err
	}
	return opt, false, nil
}
