package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomstats/internal/capture"
	"roomstats/internal/config"
	"roomstats/internal/export"
	"roomstats/internal/ics"
	appLog "roomstats/internal/log"
	"roomstats/internal/rooms"
	"roomstats/internal/stats"
	"roomstats/internal/web"
)

const shutdownTimeout = 10 * time.Second

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	rangeName  string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("roomstats starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"rooms", len(conf.Rooms),
		"feeds", len(conf.Catalog().FeedURLs()),
		"once", flags.once,
	)

	svc := newService(conf)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.once {
		if err := runOnce(ctx, svc, conf, stats.ParseRange(flags.rangeName)); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := svc.Start(ctx, conf.RefreshCron, true); err != nil {
		appLog.Error("failed to start scheduler", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr: conf.Listen,
		Handler: web.NewServer(conf, svc, web.Options{
			PDF: capture.Renderer{Timeout: capture.DefaultTimeoutSec * time.Second},
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			appLog.Error("HTTP server failed", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}

	select {
	case <-svc.Stop().Done():
	case <-shutdownCtx.Done():
		appLog.Warn("refresh still running at shutdown")
	}
	appLog.Info("roomstats exiting")
}

func newService(conf *config.Config) *rooms.Service {
	fetcher := ics.NewFetcher(ics.FetcherOptions{
		CacheDir: conf.CacheDir,
		Timeout:  conf.FetchTimeout,
		Proxy:    conf.FeedProxy,
	})
	return rooms.NewService(conf.Catalog(), fetcher, rooms.Options{
		Location:    conf.Location(),
		Expand:      ics.ExpandConfig{MaxOccurrencesPerEvent: conf.MaxOccurrencesPerEvent},
		Concurrency: conf.FetchConcurrency,
	})
}

// runOnce fetches every room, prints the usage report of rng as JSON on
// stdout and exits.
func runOnce(ctx context.Context, svc *rooms.Service, conf *config.Config, rng stats.Range) error {
	all := svc.Catalog().Rooms()
	svc.Refresh(ctx, all)

	if rng == stats.RangeAll {
		return export.WriteJSON(os.Stdout, svc.AllTime(ctx, all))
	}
	win := stats.NewWindow(time.Now(), rng.Days(), svc.Location())
	return export.WriteJSON(os.Stdout, svc.Usage(ctx, all, rng, win, conf.AvailableHoursPerDay))
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/roomstats/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+aggregate cycle, print the report and exit")
	flag.StringVar(&cfg.rangeName, "range", "week", "Report range for -once: day, week, month or all")

	flag.Parse()

	return cfg
}
