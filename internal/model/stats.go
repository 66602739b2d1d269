package model

import "time"

// Recommendation classifies a room by utilization rate.
type Recommendation string

const (
	Underutilized Recommendation = "underutilized"
	Optimal       Recommendation = "optimal"
	Overbooked    Recommendation = "overbooked"
)

// DayHours pairs a calendar day (YYYY-MM-DD) with booked hours.
type DayHours struct {
	Date  string  `json:"date"`
	Hours float64 `json:"hours"`
}

// DailyUsage is the booked hours of one room on one calendar day.
type DailyUsage = DayHours

// RoomUsageSummary is the derived, read-only statistics of one room over a
// query window.
type RoomUsageSummary struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	Building string `json:"building"`

	Days               int       `json:"days"`
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	TotalHours         float64   `json:"total_hours"`
	AverageHoursPerDay float64   `json:"average_hours_per_day"`
	BookingCount       int       `json:"booking_count"`
	BusiestDay         *DayHours `json:"busiest_day"`
	AvailableHours     float64   `json:"available_hours"`
	UtilizationRate    int       `json:"utilization_rate"`
	PeakUtilization    int       `json:"peak_utilization"`
	TodayEvents        int       `json:"today_events"`

	Recommendation Recommendation `json:"recommendation"`

	// Error is set when the room's feed could not be fetched; all
	// statistics are then zero.
	Error bool `json:"error"`
}

// MonthlyStats is one YYYY-MM bucket of the all-time breakdown.
type MonthlyStats struct {
	Month              string    `json:"month"`
	TotalHours         float64   `json:"total_hours"`
	AverageHoursPerDay float64   `json:"average_hours_per_day"`
	BookingCount       int       `json:"booking_count"`
	BusiestDay         *DayHours `json:"busiest_day"`
}

// AllTimeStats summarizes every occurrence of a room regardless of window.
type AllTimeStats struct {
	RoomID           string         `json:"room_id"`
	TotalHours       float64        `json:"total_hours"`
	TotalBookings    int            `json:"total_bookings"`
	FirstEvent       *time.Time     `json:"first_event"`
	LastEvent        *time.Time     `json:"last_event"`
	BusiestDay       *DayHours      `json:"busiest_day"`
	MonthlyBreakdown []MonthlyStats `json:"monthly_breakdown"`
	Error            bool           `json:"error"`
}

// Heatmap counts bookings per (weekday, hour) cell. Row 0 is Monday,
// row 6 Sunday; columns are hours 0-23 in the reference timezone.
type Heatmap [7][24]int

// Max returns the largest cell value.
func (h *Heatmap) Max() int {
	m := 0
	for d := range h {
		for _, v := range h[d] {
			if v > m {
				m = v
			}
		}
	}
	return m
}

// Add accumulates other into h.
func (h *Heatmap) Add(other *Heatmap) {
	for d := range h {
		for hr := range h[d] {
			h[d][hr] += other[d][hr]
		}
	}
}

// RoomStatus describes whether a room is booked at a given instant.
type RoomStatus struct {
	RoomID         string      `json:"room_id"`
	RoomName       string      `json:"room_name"`
	Building       string      `json:"building"`
	IsOccupied     bool        `json:"is_occupied"`
	CurrentEvent   *Occurrence `json:"current_event"`
	NextEvent      *Occurrence `json:"next_event"`
	AvailableUntil *time.Time  `json:"available_until"`
	Error          bool        `json:"error"`
}
