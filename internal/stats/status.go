package stats

import (
	"sort"
	"time"

	"roomstats/internal/model"
)

// Status reports whether a room is booked at now, the booking in progress,
// the next one, and until when the room keeps its current state.
func Status(occs []model.Occurrence, now time.Time) model.RoomStatus {
	sorted := make([]model.Occurrence, len(occs))
	copy(sorted, occs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var st model.RoomStatus
	for i := range sorted {
		o := sorted[i]
		if st.CurrentEvent == nil && !o.Start.After(now) && o.End.After(now) {
			cur := o
			st.CurrentEvent = &cur
		}
		if st.NextEvent == nil && o.Start.After(now) {
			next := o
			st.NextEvent = &next
		}
		if st.CurrentEvent != nil && st.NextEvent != nil {
			break
		}
	}

	st.IsOccupied = st.CurrentEvent != nil
	switch {
	case st.CurrentEvent != nil:
		until := st.CurrentEvent.End
		st.AvailableUntil = &until
	case st.NextEvent != nil:
		until := st.NextEvent.Start
		st.AvailableUntil = &until
	}
	return st
}
