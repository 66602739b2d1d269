package stats

import (
	"time"

	"roomstats/internal/model"
)

// Heatmap counts, for every (weekday, hour) cell, the occurrences whose
// span overlaps that hour. An occurrence covering several hours increments
// each of them once, regardless of how much of the hour it fills.
// Cells use the occurrence's own location (the reference zone).
func Heatmap(occs []model.Occurrence) *model.Heatmap {
	var h model.Heatmap
	for _, o := range occs {
		if !o.End.After(o.Start) {
			continue
		}
		s := o.Start
		slot := time.Date(s.Year(), s.Month(), s.Day(), s.Hour(), 0, 0, 0, s.Location())
		for slot.Before(o.End) {
			h[weekdayIndex(slot.Weekday())][slot.Hour()]++
			slot = slot.Add(time.Hour)
		}
	}
	return &h
}

// weekdayIndex maps time.Weekday to a Monday-first row.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}
