package app

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/metrics"
	"github.com/jsamuelsen/trmnl-quotes/internal/ports"
)

// DefaultDispatchTimeout bounds one webhook delivery.
const DefaultDispatchTimeout = 5 * time.Second

// DispatchOutcome is the result of one delivery cycle.
type DispatchOutcome string

const (
	// OutcomeSkipped means there was nothing to send or nowhere to send it.
	OutcomeSkipped DispatchOutcome = "skipped"

	// OutcomeDelivered means the webhook accepted the quote.
	OutcomeDelivered DispatchOutcome = "delivered"

	// OutcomeFailed means loading or delivery failed. The failure was logged.
	OutcomeFailed DispatchOutcome = "failed"
)

// DispatcherConfig contains the dependencies of the dispatcher.
type DispatcherConfig struct {
	// Repository is required.
	Repository ports.QuoteRepository

	// Notifier delivers the quote. When nil every cycle is skipped.
	Notifier ports.QuoteNotifier

	// Timeout bounds each delivery. Defaults to DefaultDispatchTimeout.
	Timeout time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Picker  Picker
	Now     func() time.Time
}

// Dispatcher pushes one random quote to the display webhook per call.
// It never returns errors: every failure is logged and reported as an outcome.
type Dispatcher struct {
	repo     ports.QuoteRepository
	notifier ports.QuoteNotifier
	timeout  time.Duration
	metrics  *metrics.Metrics
	pick     Picker
	now      func() time.Time
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Repository == nil {
		panic("app: DispatcherConfig.Repository is required")
	}

	d := &Dispatcher{
		repo:     cfg.Repository,
		notifier: cfg.Notifier,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
		pick:     cfg.Picker,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}

	if d.timeout <= 0 {
		d.timeout = DefaultDispatchTimeout
	}

	if d.pick == nil {
		d.pick = rand.IntN
	}

	if d.now == nil {
		d.now = time.Now
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}

	d.logger = d.logger.With(slog.String("component", "app.Dispatcher"))

	return d
}

// DeliverOne runs a single cycle: load, pick, notify.
func (d *Dispatcher) DeliverOne(ctx context.Context) DispatchOutcome {
	logger := logging.FromContextOr(ctx, d.logger)

	if d.notifier == nil {
		logger.DebugContext(ctx, "no webhook configured, skipping dispatch")
		d.metrics.ObserveDispatch(string(OutcomeSkipped), 0)

		return OutcomeSkipped
	}

	quotes, err := d.repo.Load(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to load quotes for dispatch", slog.Any("error", err))
		d.metrics.ObserveDispatch(string(OutcomeFailed), 0)

		return OutcomeFailed
	}

	if len(quotes) == 0 {
		logger.InfoContext(ctx, "no quotes to dispatch")
		d.metrics.ObserveDispatch(string(OutcomeSkipped), 0)

		return OutcomeSkipped
	}

	q := quotes[d.pick(len(quotes))]
	delivery := domain.Delivery{Quote: q, Timestamp: d.now()}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err = d.notifier.Notify(sendCtx, delivery)
	elapsed := time.Since(start)

	if err != nil {
		logger.WarnContext(ctx, "quote dispatch failed",
			slog.Int("quote_id", q.ID),
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)
		d.metrics.ObserveDispatch(string(OutcomeFailed), elapsed.Seconds())

		return OutcomeFailed
	}

	logger.InfoContext(ctx, "quote dispatched",
		slog.Int("quote_id", q.ID),
		slog.String("author", q.Author),
		slog.Duration("duration", elapsed),
	)
	d.metrics.ObserveDispatch(string(OutcomeDelivered), elapsed.Seconds())

	return OutcomeDelivered
}
