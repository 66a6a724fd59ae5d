// Command marcaje-agentd is the background sync agent: it periodically
// pushes the locally queued attendance backlog to the server.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/cechriza/marcaje/internal/agent"
	"github.com/cechriza/marcaje/internal/api"
	"github.com/cechriza/marcaje/internal/device"
	"github.com/cechriza/marcaje/internal/geocode"
	"github.com/cechriza/marcaje/internal/photostore"
	"github.com/cechriza/marcaje/internal/pipeline"
	"github.com/cechriza/marcaje/internal/repository/sqlite"
	"github.com/cechriza/marcaje/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func dataDir() string {
	if v := os.Getenv("MARCAJE_DATA"); v != "" {
		return v
	}
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "marcaje")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "marcaje")
}

// main wires the reconciliation pipeline and runs the scheduler until a
// termination signal arrives.
func main() {
	server := flag.String("server", "https://api.cechrizaoperaciones.com/api", "server base URL")
	dir := flag.String("data", dataDir(), "local data directory")
	interval := flag.Duration("interval", agent.DefaultConfig().Interval, "reconciliation interval")
	geocodeURL := flag.String("geocode-url", "", "reverse geocoding base URL (empty disables)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.Duration("interval", *interval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(*dir)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	photos, err := photostore.New(filepath.Join(*dir, "photos"))
	if err != nil {
		logger.Fatal("open photo store", zap.Error(err))
	}

	var geo geocode.Reverser = geocode.Noop{}
	if *geocodeURL != "" {
		geo = geocode.NewHTTPReverser(*geocodeURL, "marcaje-agentd/"+version)
	}

	sessions := session.NewContext(session.NewFileStore(filepath.Join(*dir, "session.json")))
	store := sqlite.NewAttendanceStore(db)
	probe := device.NewHostProbe()
	client := api.NewClient(*server)

	pipe := pipeline.NewService(sessions, store, photos, probe, geo, client, clock.WallClock, logger)

	cfg := agent.DefaultConfig()
	cfg.Interval = *interval
	sched := agent.NewScheduler(pipe, probe, clock.WallClock, cfg, logger)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
