package rooms

import (
	"context"
	"time"

	"roomstats/internal/config"
	"roomstats/internal/model"
	"roomstats/internal/stats"
)

// UsageReport is the statistics of a room selection over one window.
type UsageReport struct {
	Range       stats.Range              `json:"range"`
	GeneratedAt time.Time                `json:"generated_at"`
	Rooms       []model.RoomUsageSummary `json:"rooms"`
	Summary     stats.CrossRoom          `json:"summary"`
}

// TrendSeries is the daily usage of one room.
type TrendSeries struct {
	RoomID   string             `json:"room_id"`
	RoomName string             `json:"room_name"`
	Daily    []model.DailyUsage `json:"daily"`
	Error    bool               `json:"error"`
}

// Usage computes per-room summaries over w. Rooms whose feed failed get a
// zero-valued summary with the error flag set.
func (s *Service) Usage(ctx context.Context, rooms []config.RoomConfig, r stats.Range, w stats.Window, availableHours float64) UsageReport {
	snaps := s.Snapshots(ctx, rooms)

	out := UsageReport{
		Range:       r,
		GeneratedAt: time.Now().In(s.loc),
		Rooms:       make([]model.RoomUsageSummary, 0, len(snaps)),
	}
	for _, snap := range snaps {
		var sum model.RoomUsageSummary
		if snap.Failed() {
			sum = stats.EmptySummary(w, availableHours)
		} else {
			sum = stats.Summarize(snap.Occurrences, w, availableHours)
		}
		sum.RoomID = snap.Room.ID
		sum.RoomName = snap.Room.Name
		sum.Building = snap.Room.Building
		out.Rooms = append(out.Rooms, sum)
	}
	out.Summary = stats.Across(out.Rooms, len(rooms))
	return out
}

// Trends returns a daily series per room over w.
func (s *Service) Trends(ctx context.Context, rooms []config.RoomConfig, w stats.Window) []TrendSeries {
	snaps := s.Snapshots(ctx, rooms)
	out := make([]TrendSeries, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, TrendSeries{
			RoomID:   snap.Room.ID,
			RoomName: snap.Room.Name,
			Daily:    stats.DailyUsage(snap.Occurrences, w),
			Error:    snap.Failed(),
		})
	}
	return out
}

// Heatmap combines the weekday/hour grid of every room. A nil window
// covers every known occurrence.
func (s *Service) Heatmap(ctx context.Context, rooms []config.RoomConfig, w *stats.Window) *model.Heatmap {
	var total model.Heatmap
	for _, snap := range s.Snapshots(ctx, rooms) {
		occs := snap.Occurrences
		if w != nil {
			occs = stats.InWindow(occs, *w)
		}
		total.Add(stats.Heatmap(occs))
	}
	return &total
}

// AllTime returns the all-time statistics of every room.
func (s *Service) AllTime(ctx context.Context, rooms []config.RoomConfig) []model.AllTimeStats {
	snaps := s.Snapshots(ctx, rooms)
	out := make([]model.AllTimeStats, 0, len(snaps))
	for _, snap := range snaps {
		st := stats.AllTime(snap.Occurrences)
		st.RoomID = snap.Room.ID
		st.Error = snap.Failed()
		out = append(out, st)
	}
	return out
}

// Statuses reports the occupancy of every room at now.
func (s *Service) Statuses(ctx context.Context, rooms []config.RoomConfig, now time.Time) []model.RoomStatus {
	snaps := s.Snapshots(ctx, rooms)
	out := make([]model.RoomStatus, 0, len(snaps))
	for _, snap := range snaps {
		st := stats.Status(snap.Occurrences, now)
		st.RoomID = snap.Room.ID
		st.RoomName = snap.Room.Name
		st.Building = snap.Room.Building
		st.Error = snap.Failed()
		out = append(out, st)
	}
	return out
}

// Occurrences returns the occurrences of rooms whose start lies in w,
// each tagged with its room id.
func (s *Service) Occurrences(ctx context.Context, rooms []config.RoomConfig, w stats.Window) []RoomOccurrence {
	out := make([]RoomOccurrence, 0)
	for _, snap := range s.Snapshots(ctx, rooms) {
		for _, o := range stats.InWindow(snap.Occurrences, w) {
			out = append(out, RoomOccurrence{RoomID: snap.Room.ID, Occurrence: o})
		}
	}
	return out
}

// RoomOccurrence is an occurrence attributed to a room.
type RoomOccurrence struct {
	RoomID string `json:"room_id"`
	model.Occurrence
}
