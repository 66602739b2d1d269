package ics

import (
	"time"

	appLog "roomstats/internal/log"
	"roomstats/internal/model"
)

// UnsupportedRecurrence records a recurring parent that could not be
// expanded. Its DTSTART occurrence is kept as a single booking.
type UnsupportedRecurrence struct {
	UID     string `json:"uid"`
	Summary string `json:"summary"`
	RRule   string `json:"rrule"`
	Reason  string `json:"reason"`
}

// FeedResult is a feed reduced to concrete, deduplicated occurrences.
type FeedResult struct {
	Occurrences []model.Occurrence
	Parse       ParseReport
	Duplicates  int
	Unsupported []UnsupportedRecurrence
	// Truncated lists parent UIDs that hit the per-event expansion cap.
	Truncated []string
}

// BuildOccurrences deduplicates events in feed order and expands weekly
// recurring parents into instances. Parent UIDs are checked before
// expansion and synthesized instance identifiers after it, sharing one
// seen-set.
func BuildOccurrences(events []model.CalendarEvent, cfg ExpandConfig) FeedResult {
	var res FeedResult
	res.Occurrences = make([]model.Occurrence, 0, len(events))
	d := NewDeduper()

	for _, ev := range events {
		if !d.Keep(ev.UID) {
			continue
		}
		if ev.RRule == "" {
			res.Occurrences = append(res.Occurrences, single(ev))
			continue
		}

		exp := ExpandWeekly(ev, cfg)
		switch exp.Status {
		case ExpandExpanded:
			if len(exp.Instances) == 0 {
				// UNTIL before the first matching weekday: the parent
				// itself is the only booking.
				res.Occurrences = append(res.Occurrences, single(ev))
				continue
			}
			for _, inst := range exp.Instances {
				if d.Keep(inst.ID) {
					res.Occurrences = append(res.Occurrences, inst)
				}
			}
			if exp.Truncated {
				res.Truncated = append(res.Truncated, ev.UID)
			}
		case ExpandUnsupported:
			res.Unsupported = append(res.Unsupported, UnsupportedRecurrence{
				UID:     ev.UID,
				Summary: ev.Summary,
				RRule:   ev.RRule,
				Reason:  exp.Reason,
			})
			res.Occurrences = append(res.Occurrences, single(ev))
		}
	}
	res.Duplicates = d.Dropped()
	return res
}

// ProcessFeed runs parse, dedupe and expand over one fetched body.
func ProcessFeed(src Source, body []byte, loc *time.Location, cfg ExpandConfig) FeedResult {
	events, report := ParseFeed(src, body, loc)
	res := BuildOccurrences(events, cfg)
	res.Parse = report

	for _, u := range res.Unsupported {
		appLog.Warn("ics recurrence not expanded", "id", src.ID, "uid", u.UID, "rrule", u.RRule, "reason", u.Reason)
	}
	for _, uid := range res.Truncated {
		appLog.Warn("ics recurrence truncated at cap", "id", src.ID, "uid", uid, "cap", capOrDefault(cfg.MaxOccurrencesPerEvent))
	}
	appLog.Debug("ics feed processed",
		"id", src.ID,
		"occurrences", len(res.Occurrences),
		"duplicates", res.Duplicates,
		"unsupported", len(res.Unsupported),
	)
	return res
}

func single(ev model.CalendarEvent) model.Occurrence {
	return model.Occurrence{
		ID:       ev.UID,
		Summary:  ev.Summary,
		Location: ev.Location,
		Start:    ev.Start,
		End:      ev.End,
	}
}

func capOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxOccurrencesPerEvent
	}
	return n
}
