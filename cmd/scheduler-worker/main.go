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
	"github.com/hackgods/consultation-scheduling/internal/reminder"
	"github.com/hackgods/consultation-scheduling/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel, "scheduler-worker")
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Str("daily_trigger_at", cfg.DailyTriggerAt).
		Msg("scheduler-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(rootCtx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "consultation-scheduler",
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

	m := metrics.NewCollector("consultation", prometheus.DefaultRegisterer)

	notifier, closeNotifier, err := notify.Build(cfg.NotifyBackend, cfg.KafkaBrokers, cfg.KafkaTopic, log, m)
	if err != nil {
		log.Fatal().Err(err).Msg("notifier setup error")
	}
	defer func() { _ = closeNotifier() }()

	// The worker never books, so the per-process lock is enough here.
	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool, cfg.ClinicLocation),
		redisclient.NewLocalLocker(),
		notifier,
		payment.NewSandboxGateway(),
		cfg,
		log,
		appointment.WithMetrics(m),
	)

	scheduler := jobs.NewScheduler(jobs.NewPgStore(pgPool), jobs.Config{
		PollInterval: cfg.WorkerInterval,
		BatchSize:    cfg.JobBatchSize,
		Concurrency:  cfg.JobConcurrency,
		Lease:        cfg.JobLease,
		MaxAttempts:  cfg.JobMaxAttempts,
		RetryDelay:   cfg.JobRetryDelay,
	}, log, jobs.WithMetrics(m))

	planner, err := reminder.NewPlanner(scheduler, cfg.ClinicLocation, cfg.DailyTriggerAt, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("planner setup error")
	}
	svc.SetFollowUps(planner)

	reminder.NewHandlers(svc, planner, notifier, cfg.MeetingBaseURL, log).Register(scheduler)

	if err := planner.SeedNextSweep(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("seed daily sweep error")
	}

	opsSrv := &http.Server{
		Addr: ":" + cfg.MetricsPort,
		Handler: api.NewOpsRouter(api.OpsConfig{
			Postgres:       pgPool,
			Logger:         log,
			MetricsHandler: metrics.Handler(),
			Env:            cfg.Env,
			Version:        cfg.Version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", opsSrv.Addr).Msg("metrics listener started")
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics listener error")
		}
	}()

	if err := scheduler.Start(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start error")
	}

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics listener shutdown error")
	}

	log.Info().Msg("scheduler-worker stopped")
}
