package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/api"
	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/db"
	"github.com/hackgods/consultation-scheduling/internal/jobs"
	"github.com/hackgods/consultation-scheduling/internal/logger"
	"github.com/hackgods/consultation-scheduling/internal/metrics"
	"github.com/hackgods/consultation-scheduling/internal/notify"
	"github.com/hackgods/consultation-scheduling/internal/payment"
	redisclient "github.com/hackgods/consultation-scheduling/internal/redis"
	"github.com/hackgods/consultation-scheduling/internal/referral"
	"github.com/hackgods/consultation-scheduling/internal/reminder"
	"github.com/hackgods/consultation-scheduling/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel, "api-server")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(rootCtx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "consultation-api",
		Version:     cfg.Version,
		SampleRate:  cfg.TraceSampleRate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("tracing init error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		log.Fatal().Err(err).Msg("schema migration error")
	}
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	m := metrics.NewCollector("consultation", prometheus.DefaultRegisterer)

	notifier, closeNotifier, err := notify.Build(cfg.NotifyBackend, cfg.KafkaBrokers, cfg.KafkaTopic, log, m)
	if err != nil {
		log.Fatal().Err(err).Msg("notifier setup error")
	}
	defer func() { _ = closeNotifier() }()

	gateway := payment.NewBreakerGateway(payment.NewSandboxGateway(), log)

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool, cfg.ClinicLocation),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockRetries),
		notifier,
		gateway,
		cfg,
		log,
		appointment.WithMetrics(m),
	)

	// Follow-up jobs are only enqueued here; the scheduler-worker runs them.
	planner, err := reminder.NewPlanner(jobs.NewPgStore(pgPool), cfg.ClinicLocation, cfg.DailyTriggerAt, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("planner setup error")
	}
	svc.SetFollowUps(planner)

	referrals := referral.NewService(referral.NewPgRepository(pgPool), notifier, cfg.PublicBaseURL, log)

	router := api.NewRouter(api.RouterConfig{
		Appointments:   svc,
		Referrals:      referrals,
		Postgres:       pgPool,
		Redis:          redisclient.Pinger{Client: rdb},
		Logger:         log,
		Metrics:        m,
		MetricsHandler: metrics.Handler(),
		Env:            cfg.Env,
		Version:        cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("api-server stopped")
}
