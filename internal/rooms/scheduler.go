package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"roomstats/internal/config"
	appLog "roomstats/internal/log"
)

// scheduler runs one periodic refresh task per room. A tick is never
// cancelled; a tick that finds the previous one of the same room still
// running is skipped.
type scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// Start registers a cron job per room using spec (standard 5-field cron
// syntax, evaluated in the reference timezone) and starts the scheduler.
// If runNow is true every room is refreshed once before Start returns.
func (s *Service) Start(ctx context.Context, spec string, runNow bool) error {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	if s.sched != nil {
		return errors.New("rooms: scheduler already started")
	}

	logger := appLog.CronLogger{}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	sched := &scheduler{cron: c, entries: make(map[string]cron.EntryID)}
	for _, room := range s.catalog.Rooms() {
		id, err := c.AddFunc(spec, s.tick(room))
		if err != nil {
			return fmt.Errorf("rooms: schedule %q for room %s: %w", spec, room.ID, err)
		}
		sched.entries[room.ID] = id
	}

	if runNow {
		s.Refresh(ctx, s.catalog.Rooms())
	}

	c.Start()
	s.sched = sched
	appLog.Info("rooms scheduler started", "spec", spec, "rooms", len(sched.entries))
	return nil
}

// Stop stops the scheduler. The returned context is done once running
// ticks have finished.
func (s *Service) Stop() context.Context {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	if s.sched == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := s.sched.cron.Stop()
	s.sched = nil
	return ctx
}

// NextRun returns when a room's task fires next, if scheduled.
func (s *Service) NextRun(id string) (cron.Entry, bool) {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	if s.sched == nil {
		return cron.Entry{}, false
	}
	eid, ok := s.sched.entries[id]
	if !ok {
		return cron.Entry{}, false
	}
	return s.sched.cron.Entry(eid), true
}

func (s *Service) tick(room config.RoomConfig) func() {
	return func() {
		s.Refresh(context.Background(), []config.RoomConfig{room})
	}
}
