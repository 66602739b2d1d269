package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomstats/internal/config"
	"roomstats/internal/ics"
	"roomstats/internal/rooms"
)

var testNow = time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC)

const feedA = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//web//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:today@test\r\n" +
	"SUMMARY:Workshop\r\n" +
	"LOCATION:Room A\r\n" +
	"DTSTART:20250107T110000Z\r\n" +
	"DTEND:20250107T130000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:yesterday@test\r\n" +
	"SUMMARY:Review\r\n" +
	"DTSTART:20250106T130000Z\r\n" +
	"DTEND:20250106T140000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type fakePDF struct {
	html []byte
}

func (f *fakePDF) RenderPDF(_ context.Context, html []byte) ([]byte, error) {
	f.html = html
	return []byte("%PDF-fake"), nil
}

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) (http.Handler, *fakePDF) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a.ics" {
			w.Header().Set("Content-Type", "text/calendar")
			_, _ = io.WriteString(w, feedA)
			return
		}
		http.Error(w, "unavailable", http.StatusBadGateway)
	}))
	t.Cleanup(upstream.Close)

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.BasicAuth = auth
	cfg.Rooms = []config.RoomConfig{
		{ID: "a", Name: "Room A", Building: "Main", URL: upstream.URL + "/a.ics"},
		{ID: "b", Name: "Room B", Building: "Main", URL: upstream.URL + "/b.ics"},
	}

	fetcher := ics.NewFetcher(ics.FetcherOptions{CacheDir: t.TempDir()})
	svc := rooms.NewService(cfg.Catalog(), fetcher, rooms.Options{Location: cfg.Location()})
	pdf := &fakePDF{}
	srv := NewServer(cfg, svc, Options{Now: func() time.Time { return testNow }, PDF: pdf})
	return srv.Handler(), pdf
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRooms(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/rooms")
	if rec.Code != http.StatusOK {
		t.Fatalf("rooms = %d", rec.Code)
	}
	var resp roomsResponse
	decode(t, rec, &resp)
	if len(resp.Rooms) != 2 || resp.Rooms[0].ID != "a" || resp.Timezone != "UTC" {
		t.Fatalf("rooms = %+v", resp)
	}
	// Scheduler is not started in tests.
	if resp.Rooms[0].NextRefresh != nil {
		t.Errorf("next_refresh = %v, want nil", resp.Rooms[0].NextRefresh)
	}
}

func TestCalendarProxy(t *testing.T) {
	h, _ := newTestServer(t, nil)
	tests := []struct {
		target string
		code   int
	}{
		{"/api/calendar", http.StatusBadRequest},
		{"/api/calendar?room=zzz", http.StatusNotFound},
		{"/api/calendar?room=b", http.StatusInternalServerError},
		{"/api/calendar?room=a", http.StatusOK},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.target)
		if rec.Code != tt.code {
			t.Errorf("%s = %d, want %d (%s)", tt.target, rec.Code, tt.code, rec.Body.String())
		}
	}

	rec := do(t, h, http.MethodGet, "/api/calendar?room=a")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=30" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if rec.Body.String() != feedA {
		t.Errorf("body not passed through: %q", rec.Body.String())
	}
}

func TestStats(t *testing.T) {
	h, _ := newTestServer(t, nil)

	var day struct {
		Range string `json:"range"`
		Rooms []struct {
			RoomID          string  `json:"room_id"`
			TotalHours      float64 `json:"total_hours"`
			BookingCount    int     `json:"booking_count"`
			UtilizationRate int     `json:"utilization_rate"`
			TodayEvents     int     `json:"today_events"`
			Error           bool    `json:"error"`
		} `json:"rooms"`
		Summary struct {
			TotalRooms int `json:"total_rooms"`
		} `json:"summary"`
	}
	rec := do(t, h, http.MethodGet, "/api/stats?room=a&range=day")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &day)
	if day.Range != "day" || len(day.Rooms) != 1 {
		t.Fatalf("stats = %+v", day)
	}
	if r := day.Rooms[0]; r.TotalHours != 2 || r.BookingCount != 1 || r.UtilizationRate != 17 || r.TodayEvents != 1 {
		t.Errorf("room a = %+v", r)
	}

	rec = do(t, h, http.MethodGet, "/api/stats")
	decode(t, rec, &day)
	if day.Range != "week" || len(day.Rooms) != 2 || day.Summary.TotalRooms != 2 {
		t.Fatalf("all rooms = %+v", day)
	}
	if day.Rooms[0].TotalHours != 3 || !day.Rooms[1].Error {
		t.Errorf("rooms = %+v", day.Rooms)
	}

	if rec := do(t, h, http.MethodGet, "/api/stats?room=zzz"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown room = %d", rec.Code)
	}

	var all struct {
		Range string `json:"range"`
		Rooms []struct {
			TotalBookings    int `json:"total_bookings"`
			MonthlyBreakdown []struct {
				Month string `json:"month"`
			} `json:"monthly_breakdown"`
		} `json:"rooms"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/stats?room=a&range=all"), &all)
	if all.Range != "all" || len(all.Rooms) != 1 || all.Rooms[0].TotalBookings != 2 || all.Rooms[0].MonthlyBreakdown[0].Month != "2025-01" {
		t.Errorf("all-time = %+v", all)
	}
}

func TestTrendsHeatmapStatus(t *testing.T) {
	h, _ := newTestServer(t, nil)

	var trends struct {
		Days  int `json:"days"`
		Rooms []struct {
			Daily []struct {
				Date  string  `json:"date"`
				Hours float64 `json:"hours"`
			} `json:"daily"`
		} `json:"rooms"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/trends?room=a&range=week"), &trends)
	if trends.Days != 14 || len(trends.Rooms) != 1 || len(trends.Rooms[0].Daily) != 14 {
		t.Fatalf("trends = %+v", trends)
	}
	if last := trends.Rooms[0].Daily[13]; last.Date != "2025-01-07" || last.Hours != 2 {
		t.Errorf("last day = %+v", last)
	}

	var heat struct {
		Range    string     `json:"range"`
		Weekdays []string   `json:"weekdays"`
		Max      int        `json:"max"`
		Cells    [7][24]int `json:"cells"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/heatmap?room=a"), &heat)
	if heat.Range != "all" || heat.Weekdays[0] != "Mon" || heat.Max != 1 {
		t.Errorf("heatmap = %+v", heat)
	}
	if heat.Cells[1][11] != 1 || heat.Cells[1][12] != 1 || heat.Cells[0][13] != 1 {
		t.Errorf("heatmap cells tue 11h=%d 12h=%d mon 13h=%d", heat.Cells[1][11], heat.Cells[1][12], heat.Cells[0][13])
	}

	var status struct {
		Rooms []struct {
			RoomID       string `json:"room_id"`
			IsOccupied   bool   `json:"is_occupied"`
			CurrentEvent *struct {
				Summary string `json:"summary"`
			} `json:"current_event"`
			Error bool `json:"error"`
		} `json:"rooms"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/status"), &status)
	if len(status.Rooms) != 2 {
		t.Fatalf("status = %+v", status)
	}
	if a := status.Rooms[0]; !a.IsOccupied || a.CurrentEvent == nil || a.CurrentEvent.Summary != "Workshop" {
		t.Errorf("room a status = %+v", a)
	}
	if !status.Rooms[1].Error {
		t.Error("room b status not flagged")
	}
}

func TestExport(t *testing.T) {
	h, pdf := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/api/export?room=a&range=week&format=csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv = %d %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="room-analytics-a-week-2025-01-07.csv"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "room_id,room_name") || !strings.Contains(rec.Body.String(), "a,Room A,Main") {
		t.Errorf("csv body = %q", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/export?room=a&range=day&format=ics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "UID:today@test@a") || strings.Contains(rec.Body.String(), "yesterday@test") {
		t.Errorf("ics = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/export?range=month&format=pdf")
	if rec.Code != http.StatusOK || rec.Body.String() != "%PDF-fake" {
		t.Fatalf("pdf = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("pdf Content-Type = %q", ct)
	}
	if !strings.Contains(string(pdf.html), `data-ready="true"`) || !strings.Contains(string(pdf.html), "Room B") {
		t.Errorf("pdf rendered from unexpected html: %s", pdf.html)
	}

	for _, target := range []string{
		"/api/export?format=xlsx",
		"/api/export?range=all&format=csv",
	} {
		if rec := do(t, h, http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/api/export?range=all&format=json"); rec.Code != http.StatusOK {
		t.Errorf("all-time json export = %d", rec.Code)
	}
}

func TestReportPage(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/report?room=a&range=week")
	if rec.Code != http.StatusOK {
		t.Fatalf("report = %d %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{`data-ready="true"`, "Room usage report: a", "Room A", "2025-01-01"} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRefresh(t *testing.T) {
	h, _ := newTestServer(t, nil)
	if rec := do(t, h, http.MethodGet, "/api/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh = %d", rec.Code)
	}

	var resp struct {
		Rooms []struct {
			RoomID      string `json:"room_id"`
			Occurrences int    `json:"occurrences"`
			Error       string `json:"error"`
		} `json:"rooms"`
	}
	rec := do(t, h, http.MethodPost, "/api/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST refresh = %d", rec.Code)
	}
	decode(t, rec, &resp)
	if len(resp.Rooms) != 2 || resp.Rooms[0].Occurrences != 2 || resp.Rooms[1].Error == "" {
		t.Errorf("refresh = %+v", resp)
	}
}

func TestBasicAuth(t *testing.T) {
	h, _ := newTestServer(t, &config.BasicAuthConfig{Username: "admin", Password: "secret"})

	if rec := do(t, h, http.MethodGet, "/health"); rec.Code != http.StatusOK {
		t.Errorf("health behind auth = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/rooms")
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("unauthenticated rooms = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated rooms = %d", rec.Code)
	}
	var rooms struct {
		Rooms    []struct{ ID string } `json:"rooms"`
		Timezone string                `json:"timezone"`
	}
	decode(t, rec, &rooms)
	if len(rooms.Rooms) != 2 || rooms.Rooms[0].ID != "a" || rooms.Timezone != "UTC" {
		t.Errorf("rooms = %+v", rooms)
	}
}
