package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultDispatchInterval is the wait between scheduled deliveries.
const DefaultDispatchInterval = 30 * time.Minute

// Deliverer runs one delivery cycle.
type Deliverer interface {
	DeliverOne(ctx context.Context) DispatchOutcome
}

// SchedulerConfig configures the background delivery loop.
type SchedulerConfig struct {
	// Deliverer is required.
	Deliverer Deliverer

	// Interval between cycles. The first cycle fires one interval after
	// Start. Defaults to DefaultDispatchInterval.
	Interval time.Duration

	// Disabled keeps the loop from scheduling anything. Trigger still works.
	Disabled bool

	Logger *slog.Logger
}

// Scheduler fires the deliverer on a fixed interval on cron's goroutine,
// independent of request handling. A cycle still running when the next one
// is due causes that one to be skipped.
type Scheduler struct {
	cron     *cron.Cron
	job      cron.Job
	interval time.Duration
	disabled bool
	logger   *slog.Logger

	ctx    context.Context //nolint:containedctx // lifetime of background cycles
	cancel context.CancelFunc

	// mu guards started and stopping, and orders wg.Add before Stop's Wait.
	mu       sync.Mutex
	started  bool
	stopping bool
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Call Start to begin firing.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Deliverer == nil {
		panic("app: SchedulerConfig.Deliverer is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("component", "app.Scheduler"))
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cl)),
		interval: interval,
		disabled: cfg.Disabled,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	deliverer := cfg.Deliverer
	s.job = cron.NewChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	).Then(cron.FuncJob(func() {
		outcome := deliverer.DeliverOne(s.ctx)
		logger.DebugContext(s.ctx, "dispatch cycle finished", slog.String("outcome", string(outcome)))
	}))

	return s
}

// Interval returns the configured wait between cycles.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start schedules the loop. It is a no-op when disabled or already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.started = true

	if s.disabled {
		s.logger.Info("scheduled dispatch disabled")
		return
	}

	s.cron.Schedule(cron.Every(s.interval), s.job)
	s.cron.Start()

	s.logger.Info("scheduled dispatch started", slog.Duration("interval", s.interval))
}

// Trigger runs one cycle now on its own goroutine and returns immediately.
// It is skipped if a cycle is already running, and ignored once Stop has
// been called.
func (s *Scheduler) Trigger(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		s.logger.WarnContext(ctx, "scheduler stopped, ignoring manual dispatch")
		return
	}

	s.logger.InfoContext(ctx, "manual dispatch triggered")

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()
}

// Stop halts scheduling and waits for running cycles until ctx is done,
// after which in-flight deliveries are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	started := s.started && !s.disabled
	s.mu.Unlock()

	done := make(chan struct{})

	go func() {
		if started {
			<-s.cron.Stop().Done()
		}

		s.wg.Wait()
		close(done)
	}()

	defer s.cancel()

	select {
	case <-done:
		s.logger.Info("scheduled dispatch stopped")
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("scheduler stop timed out"), ctx.Err())
	}
}

// cronLogger adapts slog to cron.Logger. Cron's info messages are
// bookkeeping, so they go to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
