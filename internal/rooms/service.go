package rooms

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"roomstats/internal/config"
	"roomstats/internal/ics"
	appLog "roomstats/internal/log"
	"roomstats/internal/model"
	"roomstats/internal/stats"
)

// ErrUnknownRoom is returned for a room id not present in the catalog.
var ErrUnknownRoom = errors.New("unknown room")

const defaultConcurrency = 4

// Snapshot is the latest processed feed of one room.
type Snapshot struct {
	Room config.RoomConfig
	// Occurrences are deduplicated, expanded and filtered by the room's
	// LocationMatch.
	Occurrences []model.Occurrence
	Unsupported []ics.UnsupportedRecurrence
	FetchedAt   time.Time
	// Err is set when the feed could not be fetched; Occurrences is then empty.
	Err error
}

// Failed reports whether the snapshot stands for an unavailable feed.
func (s Snapshot) Failed() bool {
	return s.Err != nil
}

// FeedFetcher is the part of ics.Fetcher the service needs.
type FeedFetcher interface {
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// Options configures a Service.
type Options struct {
	// Location is the reference timezone for parsing.
	Location *time.Location
	Expand   ics.ExpandConfig
	// Concurrency limits simultaneous room refreshes.
	Concurrency int
}

// Service keeps one snapshot per room and refreshes them on demand or on
// a schedule. Each refresh replaces the room's snapshot as a whole, so
// readers see either the previous or the new result.
type Service struct {
	catalog     *config.Catalog
	fetcher     FeedFetcher
	loc         *time.Location
	expand      ics.ExpandConfig
	concurrency int

	// downloads collapses concurrent fetches of the same URL, since
	// several rooms share one upstream feed.
	downloads singleflight.Group

	mu        sync.RWMutex
	snapshots map[string]Snapshot

	schedMu sync.Mutex
	sched   *scheduler
}

// NewService constructs a Service for the rooms in catalog.
func NewService(catalog *config.Catalog, fetcher FeedFetcher, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Service{
		catalog:     catalog,
		fetcher:     fetcher,
		loc:         opts.Location,
		expand:      opts.Expand,
		concurrency: opts.Concurrency,
		snapshots:   make(map[string]Snapshot),
	}
}

// Catalog returns the room catalog the service serves.
func (s *Service) Catalog() *config.Catalog {
	return s.catalog
}

// Location returns the reference timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Snapshot returns the stored snapshot of a room.
func (s *Service) Snapshot(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	return snap, ok
}

func (s *Service) store(snap Snapshot) {
	s.mu.Lock()
	s.snapshots[snap.Room.ID] = snap
	s.mu.Unlock()
}

// Refresh fetches and processes the given rooms concurrently and stores the
// results. It returns after every room finished; a failing room yields an
// error-flagged snapshot and never affects the others. Results follow the
// order of rooms.
func (s *Service) Refresh(ctx context.Context, rooms []config.RoomConfig) []Snapshot {
	runID := uuid.NewString()
	started := time.Now()
	out := make([]Snapshot, len(rooms))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, room := range rooms {
		i, room := i, room
		g.Go(func() error {
			out[i] = s.refreshRoom(ctx, room)
			s.store(out[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, snap := range out {
		if snap.Failed() {
			failed++
		}
	}
	appLog.Info("rooms refresh completed",
		"run_id", runID,
		"rooms", len(rooms),
		"failed", failed,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return out
}

// RefreshRoom refreshes a single room by id.
func (s *Service) RefreshRoom(ctx context.Context, id string) (Snapshot, error) {
	room, ok := s.catalog.Room(id)
	if !ok {
		return Snapshot{}, ErrUnknownRoom
	}
	return s.Refresh(ctx, []config.RoomConfig{room})[0], nil
}

// Snapshots returns the stored snapshots of rooms, refreshing (concurrently)
// those that have none yet.
func (s *Service) Snapshots(ctx context.Context, rooms []config.RoomConfig) []Snapshot {
	out := make([]Snapshot, len(rooms))
	missing := make([]config.RoomConfig, 0)
	missingIdx := make([]int, 0)

	for i, room := range rooms {
		if snap, ok := s.Snapshot(room.ID); ok {
			out[i] = snap
			continue
		}
		missing = append(missing, room)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		fresh := s.Refresh(ctx, missing)
		for j, snap := range fresh {
			out[missingIdx[j]] = snap
		}
	}
	return out
}

// FetchRaw downloads a room's feed body without processing it.
func (s *Service) FetchRaw(ctx context.Context, id string) ([]byte, error) {
	room, ok := s.catalog.Room(id)
	if !ok {
		return nil, ErrUnknownRoom
	}
	res, err := s.download(ctx, room)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (s *Service) download(ctx context.Context, room config.RoomConfig) (ics.FetchResult, error) {
	// The download is shared by every room on the URL, so one caller
	// going away must not cancel it for the others.
	shared := context.WithoutCancel(ctx)
	v, err, joined := s.downloads.Do(room.URL, func() (interface{}, error) {
		return s.fetcher.FetchOne(shared, ics.Source{ID: room.ID, URL: room.URL})
	})
	if joined {
		appLog.Debug("rooms feed download shared", "room", room.ID)
	}
	if err != nil {
		return ics.FetchResult{}, err
	}
	return v.(ics.FetchResult), nil
}

func (s *Service) refreshRoom(ctx context.Context, room config.RoomConfig) Snapshot {
	snap := Snapshot{Room: room, Occurrences: []model.Occurrence{}}

	res, err := s.download(ctx, room)
	if err != nil {
		appLog.Error("rooms feed unavailable", err, "room", room.ID)
		snap.Err = err
		snap.FetchedAt = time.Now()
		return snap
	}

	feed := ics.ProcessFeed(ics.Source{ID: room.ID, URL: room.URL}, res.Body, s.loc, s.expand)
	snap.Occurrences = stats.FilterLocation(feed.Occurrences, room.LocationMatch)
	snap.Unsupported = feed.Unsupported
	snap.FetchedAt = res.FetchedAt
	return snap
}
