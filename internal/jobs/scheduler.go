package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/consultation-scheduling/internal/metrics"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// Handler executes one job. Returning an error schedules a retry unless the
// error wraps ErrPermanent or the attempts are exhausted.
type Handler func(ctx context.Context, job Job) error

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int           // appointment groups executed in parallel
	Lease        time.Duration // how long a claimed job belongs to this worker
	MaxAttempts  int
	RetryDelay   time.Duration // multiplied by the attempt number
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Lease <= 0 {
		c.Lease = 2 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	return c
}

type Scheduler struct {
	store    Store
	cfg      Config
	log      zerolog.Logger
	metrics  *metrics.Collector
	now      func() time.Time
	tracer   trace.Tracer
	handlers map[Kind]Handler

	mu    sync.Mutex
	stop  context.CancelFunc // stops polling
	abort context.CancelFunc // cancels in-flight handlers
	done  chan struct{}
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func NewScheduler(store Store, cfg Config, log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		tracer:   otel.Tracer("github.com/hackgods/consultation-scheduling/internal/jobs"),
		handlers: make(map[Kind]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers h for kind. It must be called before Start.
func (s *Scheduler) Handle(kind Kind, h Handler) {
	s.handlers[kind] = h
}

func (s *Scheduler) Enqueue(ctx context.Context, job Job) (bool, error) {
	created, err := s.store.Enqueue(ctx, job)
	if err != nil {
		return false, err
	}
	if created {
		s.log.Debug().Str("key", job.Key).Time("fire_at", job.FireAt).Msg("job scheduled")
	}
	return created, nil
}

// Start runs a recovery pass over every overdue or abandoned job and then
// polls in the background until ctx is done or Shutdown is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	workCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	pollCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	s.stop, s.abort, s.done = stop, abort, done
	s.mu.Unlock()

	recovered, err := s.drain(pollCtx, workCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("recovery pass failed")
	}
	s.log.Info().
		Int("recovered", recovered).
		Dur("interval", s.cfg.PollInterval).
		Int("concurrency", s.cfg.Concurrency).
		Msg("scheduler started")

	go s.loop(pollCtx, workCtx, done)
	return nil
}

// Shutdown stops polling and waits for in-flight jobs. When ctx expires
// first, in-flight handlers are cancelled; their leases lapse and another
// worker picks them up.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	stop, abort, done := s.stop, s.abort, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	stop()
	select {
	case <-done:
		abort()
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		abort()
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) loop(pollCtx, workCtx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			return
		case <-ticker.C:
			if _, err := s.drain(pollCtx, workCtx); err != nil {
				s.log.Error().Err(err).Msg("poll failed")
			}
		}
	}
}

// drain claims batches until one comes back short.
func (s *Scheduler) drain(pollCtx, workCtx context.Context) (int, error) {
	total := 0
	for pollCtx.Err() == nil {
		n, err := s.RunOnce(workCtx)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.cfg.BatchSize {
			break
		}
	}
	return total, nil
}

// RunOnce claims one batch of due jobs and executes it. Jobs of the same
// subject run one after another in fire order; different subjects run
// concurrently.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	claimed, err := s.store.ClaimDue(ctx, s.now(), s.cfg.BatchSize, s.cfg.Lease)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for _, group := range groupBySubject(claimed) {
		group := group
		g.Go(func() error {
			for _, job := range group {
				s.execute(ctx, job)
			}
			return nil
		})
	}

	return len(claimed), g.Wait()
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	ctx, span := s.tracer.Start(ctx, "jobs.execute", trace.WithAttributes(
		attribute.String("job.kind", string(job.Kind)),
		attribute.String("job.key", job.Key),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()

	start := s.now()
	lag := start.Sub(job.FireAt)
	log := s.log.With().Str("key", job.Key).Int("attempt", job.Attempts).Logger()

	h, ok := s.handlers[job.Kind]
	if !ok {
		s.fail(ctx, job, "no handler registered for kind "+string(job.Kind))
		s.metrics.JobExecuted(string(job.Kind), "failed", lag)
		span.SetStatus(codes.Error, "unknown kind")
		return
	}

	err := runHandler(ctx, h, job)
	if err == nil {
		if cerr := s.store.Complete(ctx, job.ID, s.now()); cerr != nil {
			log.Error().Err(cerr).Msg("failed to mark job done")
		}
		s.metrics.JobExecuted(string(job.Kind), "done", lag)
		log.Debug().Dur("lag", lag).Msg("job done")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if errors.Is(err, ErrPermanent) || job.Attempts >= s.cfg.MaxAttempts {
		s.fail(ctx, job, err.Error())
		s.metrics.JobExecuted(string(job.Kind), "failed", lag)
		return
	}

	next := s.now().Add(time.Duration(job.Attempts) * s.cfg.RetryDelay)
	if rerr := s.store.Retry(ctx, job.ID, s.now(), next, err.Error()); rerr != nil {
		log.Error().Err(rerr).Msg("failed to reschedule job")
	}
	s.metrics.JobExecuted(string(job.Kind), "retry", lag)
	log.Warn().Err(err).Time("next", next).Msg("job failed, will retry")
}

func (s *Scheduler) fail(ctx context.Context, job Job, reason string) {
	if err := s.store.Fail(ctx, job.ID, s.now(), reason); err != nil {
		s.log.Error().Err(err).Str("key", job.Key).Msg("failed to mark job failed")
	}
	s.log.Error().Str("key", job.Key).Int("attempt", job.Attempts).Str("reason", reason).Msg("job failed permanently")
}

func runHandler(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// groupBySubject keeps the first-seen order of subjects and sorts each group
// by fire time.
func groupBySubject(claimed []Job) [][]Job {
	index := make(map[string]int)
	var groups [][]Job
	for _, j := range claimed {
		i, ok := index[j.Subject()]
		if !ok {
			i = len(groups)
			index[j.Subject()] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], j)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool { return g[a].FireAt.Before(g[b].FireAt) })
	}
	return groups
}
