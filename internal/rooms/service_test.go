package rooms

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"roomstats/internal/config"
	"roomstats/internal/ics"
	"roomstats/internal/stats"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies, calls: make(map[string]int)}
}

func (f *fakeFetcher) FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return ics.FetchResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[src.URL]++
	body, ok := f.bodies[src.URL]
	if !ok {
		return ics.FetchResult{}, &ics.StatusError{StatusCode: 500, Status: "500 Internal Server Error"}
	}
	return ics.FetchResult{Source: src, Body: []byte(body), FetchedAt: time.Now()}, nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func calendar(events ...string) string {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//rooms//EN"}
	lines = append(lines, events...)
	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

func vevent(uid, location, start, end string) string {
	return strings.Join([]string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"SUMMARY:" + uid,
		"LOCATION:" + location,
		"DTSTART:" + start,
		"DTEND:" + end,
		"END:VEVENT",
	}, "\r\n")
}

const (
	sharedURL = "https://feeds.example/shared.ics"
	greatURL  = "https://feeds.example/great.ics"
	brokenURL = "https://feeds.example/broken.ics"
)

func testRooms() []config.RoomConfig {
	return []config.RoomConfig{
		{ID: "confa", Name: "Conference Room A", Building: "Garrett Hall", URL: sharedURL},
		{ID: "b1", Name: "Basement Room 1", Building: "Pavilion X", URL: sharedURL, LocationMatch: "Basement Room 1"},
		{ID: "great", Name: "Great Hall", Building: "Garrett Hall", URL: greatURL},
		{ID: "seminar", Name: "Seminar Room", Building: "Garrett Hall", URL: brokenURL},
	}
}

func newTestService(t *testing.T) (*Service, *fakeFetcher) {
	t.Helper()
	ff := newFakeFetcher(map[string]string{
		sharedURL: calendar(
			vevent("a1", "Conference Room A", "20250106T090000Z", "20250106T110000Z"),
			vevent("b1", "Pavilion X Basement Room 1", "20250107T090000Z", "20250107T100000Z"),
		),
		greatURL: calendar(
			vevent("g1", "Great Hall", "20250107T130000Z", "20250107T160000Z"),
		),
	})
	svc := NewService(config.NewCatalog(testRooms()), ff, Options{Location: time.UTC, Concurrency: 2})
	return svc, ff
}

func TestRefreshIsolatesFailures(t *testing.T) {
	svc, _ := newTestService(t)
	snaps := svc.Refresh(context.Background(), testRooms())

	if len(snaps) != 4 {
		t.Fatalf("len(snaps) = %d", len(snaps))
	}
	wantCounts := map[string]int{"confa": 2, "b1": 1, "great": 1, "seminar": 0}
	for _, snap := range snaps {
		if got := len(snap.Occurrences); got != wantCounts[snap.Room.ID] {
			t.Errorf("%s: %d occurrences, want %d", snap.Room.ID, got, wantCounts[snap.Room.ID])
		}
	}

	broken := snaps[3]
	var se *ics.StatusError
	if !broken.Failed() || !errors.As(broken.Err, &se) {
		t.Errorf("seminar err = %v, want StatusError", broken.Err)
	}
	if broken.Occurrences == nil {
		t.Error("failed snapshot carries nil occurrences")
	}

	if snap, ok := svc.Snapshot("b1"); !ok || snap.Occurrences[0].ID != "b1" {
		t.Errorf("stored b1 snapshot = %+v, %v", snap, ok)
	}
}

// gatedFetcher holds every download until release is closed.
type gatedFetcher struct {
	*fakeFetcher
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedFetcher) FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.fakeFetcher.FetchOne(ctx, src)
}

func TestSharedDownloadSurvivesCallerCancel(t *testing.T) {
	gf := &gatedFetcher{
		fakeFetcher: newFakeFetcher(map[string]string{
			sharedURL: calendar(vevent("a1", "Conference Room A", "20250106T090000Z", "20250106T110000Z")),
		}),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(config.NewCatalog(testRooms()), gf, Options{Location: time.UTC})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		body []byte
		err  error
	}
	leader := make(chan result, 1)
	go func() {
		body, err := svc.FetchRaw(ctx, "confa")
		leader <- result{body, err}
	}()
	<-gf.started

	follower := make(chan result, 1)
	go func() {
		body, err := svc.FetchRaw(context.Background(), "b1")
		follower <- result{body, err}
	}()

	cancel()
	close(gf.release)

	for name, ch := range map[string]chan result{"leader": leader, "follower": follower} {
		res := <-ch
		if res.err != nil {
			t.Errorf("%s: FetchRaw err = %v", name, res.err)
			continue
		}
		if !strings.Contains(string(res.body), "UID:a1") {
			t.Errorf("%s: body = %q", name, res.body)
		}
	}
}

func TestSnapshotsRefreshOnlyMissing(t *testing.T) {
	svc, ff := newTestService(t)
	ctx := context.Background()
	great, _ := svc.Catalog().Room("great")

	svc.Snapshots(ctx, []config.RoomConfig{great})
	svc.Snapshots(ctx, []config.RoomConfig{great})
	if n := ff.callCount(greatURL); n != 1 {
		t.Errorf("great fetched %d times, want 1", n)
	}

	if _, err := svc.RefreshRoom(ctx, "great"); err != nil {
		t.Fatalf("RefreshRoom: %v", err)
	}
	if n := ff.callCount(greatURL); n != 2 {
		t.Errorf("great fetched %d times after explicit refresh, want 2", n)
	}

	if _, err := svc.RefreshRoom(ctx, "nope"); !errors.Is(err, ErrUnknownRoom) {
		t.Errorf("RefreshRoom(nope) err = %v", err)
	}
	if _, err := svc.FetchRaw(ctx, "nope"); !errors.Is(err, ErrUnknownRoom) {
		t.Errorf("FetchRaw(nope) err = %v", err)
	}
	body, err := svc.FetchRaw(ctx, "great")
	if err != nil || !strings.Contains(string(body), "UID:g1") {
		t.Errorf("FetchRaw(great) = %q, %v", body, err)
	}
}

func TestUsageReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 7, 18, 0, 0, 0, time.UTC)
	win := stats.NewWindow(now, 7, time.UTC)

	rep := svc.Usage(ctx, svc.Catalog().Rooms(), stats.RangeWeek, win, 12)
	if len(rep.Rooms) != 4 {
		t.Fatalf("len(rooms) = %d", len(rep.Rooms))
	}
	byID := make(map[string]int)
	for i, r := range rep.Rooms {
		byID[r.RoomID] = i
	}

	confa := rep.Rooms[byID["confa"]]
	if confa.TotalHours != 3 || confa.BookingCount != 2 || confa.RoomName != "Conference Room A" {
		t.Errorf("confa = %+v", confa)
	}
	seminar := rep.Rooms[byID["seminar"]]
	if !seminar.Error || seminar.TotalHours != 0 {
		t.Errorf("seminar = %+v", seminar)
	}
	if rep.Summary.TotalRooms != 4 || rep.Summary.TotalTodayEvents != 3 {
		t.Errorf("summary = %+v", rep.Summary)
	}

	trends := svc.Trends(ctx, svc.Catalog().Rooms(), win)
	if len(trends) != 4 || len(trends[0].Daily) != 7 || !trends[3].Error {
		t.Errorf("trends = %+v", trends)
	}

	h := svc.Heatmap(ctx, svc.Catalog().Rooms(), nil)
	// b1's booking is counted by both confa (no location filter) and b1.
	if h[0][9] != 1 || h[0][10] != 1 || h[1][9] != 2 || h[1][13] != 1 {
		t.Errorf("heatmap mon 9h=%d 10h=%d, tue 9h=%d 13h=%d", h[0][9], h[0][10], h[1][9], h[1][13])
	}

	occs := svc.Occurrences(ctx, []config.RoomConfig{testRooms()[2]}, win)
	if len(occs) != 1 || occs[0].RoomID != "great" {
		t.Errorf("occurrences = %+v", occs)
	}
}

func TestStatusesAndAllTime(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	rooms := svc.Catalog().Rooms()

	now := time.Date(2025, 1, 7, 14, 0, 0, 0, time.UTC)
	statuses := svc.Statuses(ctx, rooms, now)
	if len(statuses) != 4 {
		t.Fatalf("len(statuses) = %d", len(statuses))
	}
	if great := statuses[2]; !great.IsOccupied || great.CurrentEvent.ID != "g1" || great.RoomName != "Great Hall" {
		t.Errorf("great status = %+v", great)
	}
	if !statuses[3].Error {
		t.Error("seminar status not flagged")
	}

	all := svc.AllTime(ctx, rooms)
	if all[0].RoomID != "confa" || all[0].TotalBookings != 2 || all[0].TotalHours != 3 {
		t.Errorf("confa all-time = %+v", all[0])
	}
	if !all[3].Error || all[3].TotalBookings != 0 {
		t.Errorf("seminar all-time = %+v", all[3])
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Start(ctx, "not a cron spec", false); err == nil {
		t.Fatal("Start accepted an invalid cron expression")
	}

	if err := svc.Start(ctx, "0 */4 * * *", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(ctx, "0 */4 * * *", false); err == nil {
		t.Error("second Start succeeded")
	}

	entry, ok := svc.NextRun("great")
	if !ok || entry.Next.IsZero() {
		t.Errorf("NextRun(great) = %+v, %v", entry, ok)
	}
	if _, ok := svc.NextRun("nope"); ok {
		t.Error("NextRun(nope) ok")
	}

	select {
	case <-svc.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not finish")
	}
	if _, ok := svc.NextRun("great"); ok {
		t.Error("NextRun after Stop ok")
	}
}
