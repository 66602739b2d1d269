package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"roomstats/internal/model"
)

var summaryHeader = []string{
	"room_id",
	"room_name",
	"building",
	"window_start",
	"window_end",
	"total_hours",
	"average_hours_per_day",
	"booking_count",
	"busiest_day",
	"busiest_day_hours",
	"utilization_rate",
	"peak_utilization",
	"today_events",
	"recommendation",
	"error",
}

// WriteSummariesCSV writes one row per room summary.
func WriteSummariesCSV(w io.Writer, summaries []model.RoomUsageSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return fmt.Errorf("export: csv header: %w", err)
	}
	for _, s := range summaries {
		busiest, busiestHours := "", ""
		if s.BusiestDay != nil {
			busiest = s.BusiestDay.Date
			busiestHours = formatHours(s.BusiestDay.Hours)
		}
		row := []string{
			s.RoomID,
			s.RoomName,
			s.Building,
			s.WindowStart.Format("2006-01-02"),
			s.WindowEnd.Format("2006-01-02"),
			formatHours(s.TotalHours),
			formatHours(s.AverageHoursPerDay),
			strconv.Itoa(s.BookingCount),
			busiest,
			busiestHours,
			strconv.Itoa(s.UtilizationRate),
			strconv.Itoa(s.PeakUtilization),
			strconv.Itoa(s.TodayEvents),
			string(s.Recommendation),
			strconv.FormatBool(s.Error),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: csv row %s: %w", s.RoomID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', 1, 64)
}
