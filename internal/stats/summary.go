package stats

import (
	"roomstats/internal/model"
)

const (
	underutilizedBelow = 30
	overbookedAbove    = 80
)

// Summarize computes the usage summary of one room over w. availableHours
// is the assumed operating time per day. Room identity fields are left for
// the caller to fill.
//
// The function is pure: the same occurrences and window always produce the
// same summary.
func Summarize(occs []model.Occurrence, w Window, availableHours float64) model.RoomUsageSummary {
	loc := w.Start.Location()
	inWindow := InWindow(occs, w)

	byDay := make(map[string]float64, w.Days)
	totalMinutes := 0.0
	today := w.Today()
	todayEvents := 0
	for _, o := range inWindow {
		totalMinutes += o.Duration().Minutes()
		key := dayKey(o.Start, loc)
		byDay[key] += o.Hours()
		if key == today {
			todayEvents++
		}
	}

	rawTotal := totalMinutes / 60
	total := round1(rawTotal)

	s := model.RoomUsageSummary{
		Days:               w.Days,
		WindowStart:        w.Start,
		WindowEnd:          w.End,
		TotalHours:         total,
		AverageHoursPerDay: round1(rawTotal / float64(w.Days)),
		BookingCount:       len(inWindow),
		AvailableHours:     float64(w.Days) * availableHours,
		TodayEvents:        todayEvents,
	}
	s.UtilizationRate = percent(total, s.AvailableHours)

	if busiest, ok := busiestDay(w.DayKeys(), byDay); ok {
		s.PeakUtilization = percent(busiest.Hours, availableHours)
		busiest.Hours = round1(busiest.Hours)
		s.BusiestDay = &busiest
	}
	s.Recommendation = Recommend(s.UtilizationRate)

	return s
}

// EmptySummary is the zero-valued, error-flagged summary used when a
// room's feed is unavailable.
func EmptySummary(w Window, availableHours float64) model.RoomUsageSummary {
	return model.RoomUsageSummary{
		Days:           w.Days,
		WindowStart:    w.Start,
		WindowEnd:      w.End,
		AvailableHours: float64(w.Days) * availableHours,
		Recommendation: model.Underutilized,
		Error:          true,
	}
}

// Recommend classifies a utilization rate.
func Recommend(rate int) model.Recommendation {
	switch {
	case rate < underutilizedBelow:
		return model.Underutilized
	case rate > overbookedAbove:
		return model.Overbooked
	default:
		return model.Optimal
	}
}

// busiestDay scans keys in order and returns the first day with the
// highest positive hours. Hours are unrounded.
func busiestDay(keys []string, byDay map[string]float64) (model.DayHours, bool) {
	var best model.DayHours
	found := false
	for _, k := range keys {
		h := byDay[k]
		if h > best.Hours {
			best = model.DayHours{Date: k, Hours: h}
			found = true
		}
	}
	return best, found
}

// DailyUsage returns one entry per day of w, oldest first, including days
// without bookings.
func DailyUsage(occs []model.Occurrence, w Window) []model.DailyUsage {
	loc := w.Start.Location()
	byDay := make(map[string]float64, w.Days)
	for _, o := range InWindow(occs, w) {
		byDay[dayKey(o.Start, loc)] += o.Hours()
	}

	keys := w.DayKeys()
	out := make([]model.DailyUsage, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.DailyUsage{Date: k, Hours: round1(byDay[k])})
	}
	return out
}

// CrossRoom is the aggregate line shown above a multi-room table.
type CrossRoom struct {
	TotalRooms              int     `json:"total_rooms"`
	AverageHoursAcrossRooms float64 `json:"average_hours_across_rooms"`
	TotalTodayEvents        int     `json:"total_today_events"`
}

// Across combines per-room summaries. Error-flagged rooms count with zero
// hours, matching their zero-valued summaries.
func Across(summaries []model.RoomUsageSummary, totalRooms int) CrossRoom {
	out := CrossRoom{TotalRooms: totalRooms}
	if len(summaries) == 0 {
		return out
	}
	sum := 0.0
	for _, s := range summaries {
		sum += s.AverageHoursPerDay
		out.TotalTodayEvents += s.TodayEvents
	}
	out.AverageHoursAcrossRooms = round1(sum / float64(len(summaries)))
	return out
}
