// server runs the gradebook HTTP API. Configure it with a .env file or environment variables.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/tracelog"

	accounthandler "github.com/noahsadir/courseman/internal/account/handler"
	accountrepo "github.com/noahsadir/courseman/internal/account/repository"
	accountservice "github.com/noahsadir/courseman/internal/account/service"
	"github.com/noahsadir/courseman/internal/config"
	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/db/migrate"
	gradebookhandler "github.com/noahsadir/courseman/internal/gradebook/handler"
	gradebookrepo "github.com/noahsadir/courseman/internal/gradebook/repository"
	gradebookservice "github.com/noahsadir/courseman/internal/gradebook/service"
	healthhandler "github.com/noahsadir/courseman/internal/health/handler"
	"github.com/noahsadir/courseman/internal/identifier"
	"github.com/noahsadir/courseman/internal/jobs"
	"github.com/noahsadir/courseman/internal/logging"
	permissionrepo "github.com/noahsadir/courseman/internal/permission/repository"
	permissionservice "github.com/noahsadir/courseman/internal/permission/service"
	"github.com/noahsadir/courseman/internal/platform/respond"
	"github.com/noahsadir/courseman/internal/security"
	"github.com/noahsadir/courseman/internal/server"
	"github.com/noahsadir/courseman/internal/server/middleware"
	sessionrepo "github.com/noahsadir/courseman/internal/session/repository"
	sessionservice "github.com/noahsadir/courseman/internal/session/service"
	"github.com/noahsadir/courseman/internal/telemetry"
	"github.com/noahsadir/courseman/internal/telemetry/metrics"
	telemetryotel "github.com/noahsadir/courseman/internal/telemetry/otel"
)

const (
	serviceName     = "courseman"
	shutdownTimeout = 15 * time.Second
	limiterIdle     = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Level(), !cfg.IsProduction())
	defer logging.LogPanics(nil)

	queryLogLevel := tracelog.LogLevel(0)
	if !cfg.IsProduction() {
		queryLogLevel = tracelog.LogLevelDebug
	}
	conn, err := db.OpenWithOptions(cfg.DatabaseURL, db.Options{QueryLogLevel: queryLogLevel})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	providers, err := telemetryotel.NewProviders(context.Background(), telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: serviceName,
		Environment: cfg.Env,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to set up OpenTelemetry")
	}
	providers.SetGlobal()
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	m := metrics.NewRegistry()
	resp := respond.Responder{ExposeDetails: !cfg.IsProduction()}
	alloc := identifier.NewAllocator(nil, identifier.NewPostgresChecker(conn), cfg.IDMaxAttempts, m)

	tokens := sessionservice.NewTokenService(sessionrepo.NewPostgresRepository(conn), alloc, cfg.TokenTTL(), cfg.TokenLength, m, emitter)
	permissions := permissionservice.NewRegistry(permissionrepo.NewPostgresRepository(conn), m, emitter)
	accounts := accountservice.NewAccountService(
		accountrepo.NewPostgresRepository(conn),
		alloc,
		tokens,
		security.NewHasher(cfg.BcryptCost),
		cfg.IDLength,
		emitter,
	)
	gradebook := gradebookservice.NewGradebookService(
		gradebookrepo.NewPostgresRepository(conn),
		permissions,
		alloc,
		gradebookrepo.Transactor(conn, func(q db.Querier) gradebookservice.TxGrants {
			return permissions.WithRepo(permissionrepo.NewPostgresRepository(q))
		}),
		cfg.IDLength,
	)

	var authLimiter *middleware.LimiterRegistry
	if cfg.AuthRateLimit > 0 {
		authLimiter = middleware.NewLimiterRegistry(cfg.AuthRateLimit, cfg.AuthRateBurst, limiterIdle)
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies())
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid trusted proxies")
	}

	handler := server.NewHandler(server.Deps{
		Accounts:  accounthandler.NewHandler(accounts, tokens, cfg.APIKey, resp),
		Gradebook: gradebookhandler.NewHandler(gradebook, tokens, permissions, resp),
		Health: healthhandler.NewHandler(conn, func(ctx context.Context) (uint, bool, error) {
			return migrate.Version(cfg.DatabaseURL)
		}, resp),
		Metrics:        m,
		AuthLimiter:    authLimiter,
		TrustedProxies: proxies,
		Responder:      resp,
	})

	var background jobs.Jobs
	if authLimiter != nil {
		background = append(background, jobs.Sweeper("rate limiter sweeper", jobs.SweeperConfig{Interval: limiterIdle},
			jobs.Task{Name: "idle limiters", Run: func(ctx context.Context) (int64, error) {
				return int64(authLimiter.Sweep(time.Now())), nil
			}},
		))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.Env).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("HTTP server did not shut down cleanly")
	}
	if unfinished := background.CancelAndWait(5 * time.Second); len(unfinished) > 0 {
		logging.Warn().Strs("jobs", unfinished).Msg("background jobs did not finish in time")
	}

	// Give in-flight async telemetry emits a chance to land before the exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("failed to flush telemetry")
	}
	logging.Info().Msg("HTTP server stopped")
}
