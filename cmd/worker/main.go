// worker deletes expired sessions on a fixed interval (SESSION_SWEEP_INTERVAL).
// It shares DATABASE_URL with the server and can run as one or more replicas.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noahsadir/courseman/internal/config"
	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/jobs"
	"github.com/noahsadir/courseman/internal/logging"
	sessionrepo "github.com/noahsadir/courseman/internal/session/repository"
	sessionservice "github.com/noahsadir/courseman/internal/session/service"
	"github.com/noahsadir/courseman/internal/telemetry/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Level(), !cfg.IsProduction())
	defer logging.LogPanics(nil)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	// Sweeping never issues tokens, so no allocator is needed.
	tokens := sessionservice.NewTokenService(sessionrepo.NewPostgresRepository(conn), nil, cfg.TokenTTL(), cfg.TokenLength, metrics.NewRegistry(), nil)

	sweeper := jobs.Sweeper("session sweeper", jobs.SweeperConfig{Interval: cfg.SessionSweepInterval()},
		jobs.Task{Name: "expired sessions", Run: func(ctx context.Context) (int64, error) {
			return tokens.DeleteExpired(ctx)
		}},
	)
	logging.Info().Dur("interval", cfg.SessionSweepInterval()).Msg("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("worker shutting down")
	if unfinished := (jobs.Jobs{sweeper}).CancelAndWait(10 * time.Second); len(unfinished) > 0 {
		logging.Warn().Strs("jobs", unfinished).Msg("jobs did not finish in time")
	}
}
