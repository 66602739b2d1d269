package web

import (
	"errors"
	"net/http"
	"time"

	"roomstats/internal/config"
	"roomstats/internal/ics"
	appLog "roomstats/internal/log"
	"roomstats/internal/model"
	"roomstats/internal/rooms"
	"roomstats/internal/stats"
)

// weekdayLabels are the heatmap row labels, Monday first.
var weekdayLabels = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

type roomDTO struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Building      string     `json:"building"`
	LocationMatch string     `json:"location_match,omitempty"`
	NextRefresh   *time.Time `json:"next_refresh,omitempty"`
}

type roomsResponse struct {
	Rooms                []roomDTO `json:"rooms"`
	Timezone             string    `json:"timezone"`
	AvailableHoursPerDay float64   `json:"available_hours_per_day"`
}

type allTimeResponse struct {
	Range stats.Range          `json:"range"`
	Rooms []model.AllTimeStats `json:"rooms"`
}

type trendsResponse struct {
	Range stats.Range         `json:"range"`
	Days  int                 `json:"days"`
	Rooms []rooms.TrendSeries `json:"rooms"`
}

type heatmapResponse struct {
	Range    string         `json:"range"`
	Weekdays [7]string      `json:"weekdays"`
	Max      int            `json:"max"`
	Cells    *model.Heatmap `json:"cells"`
}

type statusResponse struct {
	AsOf  time.Time          `json:"as_of"`
	Rooms []model.RoomStatus `json:"rooms"`
}

type refreshedRoom struct {
	RoomID      string                      `json:"room_id"`
	FetchedAt   time.Time                   `json:"fetched_at"`
	Occurrences int                         `json:"occurrences"`
	Unsupported []ics.UnsupportedRecurrence `json:"unsupported,omitempty"`
	Error       string                      `json:"error,omitempty"`
}

// handleRooms lists the configured rooms.
//
// GET /api/rooms
func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	cat := s.svc.Catalog()
	resp := roomsResponse{
		Rooms:                make([]roomDTO, 0, cat.Len()),
		Timezone:             s.svc.Location().String(),
		AvailableHoursPerDay: s.cfg.AvailableHoursPerDay,
	}
	for _, r := range cat.Rooms() {
		dto := roomDTO{
			ID:            r.ID,
			Name:          r.Name,
			Building:      r.Building,
			LocationMatch: r.LocationMatch,
		}
		if entry, ok := s.svc.NextRun(r.ID); ok && !entry.Next.IsZero() {
			next := entry.Next
			dto.NextRefresh = &next
		}
		resp.Rooms = append(resp.Rooms, dto)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar proxies the raw feed of one room.
//
// GET /api/calendar?room=ID
//   - 400 when room is missing, 404 when it is unknown
//   - 500 when the upstream fetch fails
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("room")
	if id == "" {
		writeError(w, http.StatusBadRequest, "room parameter is required")
		return
	}

	body, err := s.svc.FetchRaw(r.Context(), id)
	switch {
	case errors.Is(err, rooms.ErrUnknownRoom):
		writeError(w, http.StatusNotFound, "unknown room")
		return
	case err != nil:
		appLog.Error("api calendar: fetch failed", err, "room", id)
		writeError(w, http.StatusInternalServerError, "failed to fetch calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=30")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleStats returns usage summaries of the selected rooms.
//
// GET /api/stats?room=all&range=week
//   - room:  room id or "all" (default)
//   - range: day | week (default) | month | all
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	selected, sel, ok := s.selectRooms(w, r)
	if !ok {
		return
	}
	rng := stats.ParseRange(r.URL.Query().Get("range"))
	now := s.now()
	key := cacheKey("stats", sel, string(rng))

	if v, hit := s.cache.get(key, now); hit {
		writeJSON(w, http.StatusOK, v)
		return
	}

	var resp any
	if rng == stats.RangeAll {
		resp = allTimeResponse{Range: rng, Rooms: s.svc.AllTime(r.Context(), selected)}
	} else {
		win := stats.NewWindow(now, rng.Days(), s.svc.Location())
		resp = s.svc.Usage(r.Context(), selected, rng, win, s.cfg.AvailableHoursPerDay)
	}

	s.cache.put(key, resp, now)
	writeJSON(w, http.StatusOK, resp)
}

// handleTrends returns daily usage series.
//
// GET /api/trends?room=all&range=week
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	selected, sel, ok := s.selectRooms(w, r)
	if !ok {
		return
	}
	rng := stats.ParseRange(r.URL.Query().Get("range"))
	now := s.now()
	key := cacheKey("trends", sel, string(rng))

	if v, hit := s.cache.get(key, now); hit {
		writeJSON(w, http.StatusOK, v)
		return
	}

	win := stats.NewWindow(now, rng.TrendDays(), s.svc.Location())
	resp := trendsResponse{
		Range: rng,
		Days:  win.Days,
		Rooms: s.svc.Trends(r.Context(), selected, win),
	}
	s.cache.put(key, resp, now)
	writeJSON(w, http.StatusOK, resp)
}

// handleHeatmap returns booking counts per weekday and hour.
//
// GET /api/heatmap?room=all[&range=week]
//   - without range (or range=all) every known occurrence is counted
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	selected, sel, ok := s.selectRooms(w, r)
	if !ok {
		return
	}
	rawRange := r.URL.Query().Get("range")
	now := s.now()

	var win *stats.Window
	label := string(stats.RangeAll)
	if rawRange != "" {
		if rng := stats.ParseRange(rawRange); rng != stats.RangeAll {
			ww := stats.NewWindow(now, rng.Days(), s.svc.Location())
			win = &ww
			label = string(rng)
		}
	}

	key := cacheKey("heatmap", sel, label)
	if v, hit := s.cache.get(key, now); hit {
		writeJSON(w, http.StatusOK, v)
		return
	}

	h := s.svc.Heatmap(r.Context(), selected, win)
	resp := heatmapResponse{
		Range:    label,
		Weekdays: weekdayLabels,
		Max:      h.Max(),
		Cells:    h,
	}
	s.cache.put(key, resp, now)
	writeJSON(w, http.StatusOK, resp)
}

// handleAllTime returns all-time statistics with monthly breakdowns.
//
// GET /api/alltime?room=all
func (s *Server) handleAllTime(w http.ResponseWriter, r *http.Request) {
	selected, sel, ok := s.selectRooms(w, r)
	if !ok {
		return
	}
	now := s.now()
	key := cacheKey("alltime", sel, "")

	if v, hit := s.cache.get(key, now); hit {
		writeJSON(w, http.StatusOK, v)
		return
	}

	resp := allTimeResponse{Range: stats.RangeAll, Rooms: s.svc.AllTime(r.Context(), selected)}
	s.cache.put(key, resp, now)
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus reports current occupancy. Never cached.
//
// GET /api/status?room=all
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	selected, _, ok := s.selectRooms(w, r)
	if !ok {
		return
	}
	now := s.now().In(s.svc.Location())
	writeJSON(w, http.StatusOK, statusResponse{
		AsOf:  now,
		Rooms: s.svc.Statuses(r.Context(), selected, now),
	})
}

// handleRefresh refetches the selected rooms immediately.
//
// POST /api/refresh?room=all
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	selected, _, ok := s.selectRooms(w, r)
	if !ok {
		return
	}

	snaps := s.svc.Refresh(r.Context(), selected)
	s.cache.clear()

	out := make([]refreshedRoom, 0, len(snaps))
	for _, snap := range snaps {
		rr := refreshedRoom{
			RoomID:      snap.Room.ID,
			FetchedAt:   snap.FetchedAt,
			Occurrences: len(snap.Occurrences),
			Unsupported: snap.Unsupported,
		}
		if snap.Err != nil {
			rr.Error = snap.Err.Error()
		}
		out = append(out, rr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

// selectRooms resolves the room query parameter. It writes a 404 and
// returns ok=false for unknown rooms.
func (s *Server) selectRooms(w http.ResponseWriter, r *http.Request) ([]config.RoomConfig, string, bool) {
	sel := r.URL.Query().Get("room")
	selected, ok := s.svc.Catalog().Select(sel)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown room")
		return nil, "", false
	}
	if sel == "" {
		sel = "all"
	}
	return selected, sel, true
}

func cacheKey(endpoint, room, rng string) string {
	return endpoint + "|" + room + "|" + rng
}
