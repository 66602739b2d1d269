package stats

import (
	"sort"
	"time"

	"roomstats/internal/model"
)

const monthLayout = "2006-01"

// AllTime summarizes every occurrence with a month-by-month breakdown,
// most recent month first. Zero occurrences yield zero totals and nil dates.
func AllTime(occs []model.Occurrence) model.AllTimeStats {
	out := model.AllTimeStats{MonthlyBreakdown: []model.MonthlyStats{}}
	if len(occs) == 0 {
		return out
	}

	sorted := make([]model.Occurrence, len(occs))
	copy(sorted, occs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	first := sorted[0].Start
	last := sorted[len(sorted)-1].Start
	out.FirstEvent = &first
	out.LastEvent = &last
	out.TotalBookings = len(occs)

	type bucket struct {
		hours    float64
		bookings int
		byDay    map[string]float64
		days     []string
		year     int
		month    time.Month
	}

	totalMinutes := 0.0
	byDay := make(map[string]float64)
	var dayOrder []string
	months := make(map[string]*bucket)
	var monthOrder []string

	// sorted order makes dayOrder and every bucket's days chronological.
	for _, o := range sorted {
		totalMinutes += o.Duration().Minutes()
		hours := o.Hours()

		dk := o.Start.Format(DateLayout)
		if _, ok := byDay[dk]; !ok {
			dayOrder = append(dayOrder, dk)
		}
		byDay[dk] += hours

		mk := o.Start.Format(monthLayout)
		b, ok := months[mk]
		if !ok {
			b = &bucket{byDay: make(map[string]float64), year: o.Start.Year(), month: o.Start.Month()}
			months[mk] = b
			monthOrder = append(monthOrder, mk)
		}
		b.hours += hours
		b.bookings++
		if _, seen := b.byDay[dk]; !seen {
			b.days = append(b.days, dk)
		}
		b.byDay[dk] += hours
	}

	out.TotalHours = round1(totalMinutes / 60)
	if d, ok := busiestDay(dayOrder, byDay); ok {
		d.Hours = round1(d.Hours)
		out.BusiestDay = &d
	}

	for i := len(monthOrder) - 1; i >= 0; i-- {
		mk := monthOrder[i]
		b := months[mk]
		ms := model.MonthlyStats{
			Month:              mk,
			TotalHours:         round1(b.hours),
			AverageHoursPerDay: round1(b.hours / float64(daysIn(b.year, b.month))),
			BookingCount:       b.bookings,
		}
		if d, ok := busiestDay(b.days, b.byDay); ok {
			d.Hours = round1(d.Hours)
			ms.BusiestDay = &d
		}
		out.MonthlyBreakdown = append(out.MonthlyBreakdown, ms)
	}

	return out
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
