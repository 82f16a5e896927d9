package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeliverer counts cycles and can block until released.
type fakeDeliverer struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func newFakeDeliverer(block bool) *fakeDeliverer {
	f := &fakeDeliverer{started: make(chan struct{})}
	if block {
		f.release = make(chan struct{})
	}

	return f
}

func (f *fakeDeliverer) DeliverOne(ctx context.Context) DispatchOutcome {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return OutcomeFailed
		}
	}

	return OutcomeDelivered
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Deliverer: newFakeDeliverer(false)})

	assert.Equal(t, DefaultDispatchInterval, s.Interval())
	assert.Panics(t, func() { NewScheduler(SchedulerConfig{}) })
}

func TestScheduler_FiresOnInterval(t *testing.T) {
	d := newFakeDeliverer(false)
	s := NewScheduler(SchedulerConfig{
		Deliverer: d,
		Interval:  time.Second,
		Logger:    discardLogger(),
	})

	s.Start()
	s.Start() // idempotent

	assert.Zero(t, d.calls.Load(), "first cycle waits one interval")
	assert.Eventually(t, func() bool { return d.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_DisabledStillTriggers(t *testing.T) {
	d := newFakeDeliverer(false)
	s := NewScheduler(SchedulerConfig{
		Deliverer: d,
		Interval:  time.Second,
		Disabled:  true,
		Logger:    discardLogger(),
	})

	s.Start()
	s.Trigger(context.Background())

	assert.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_TriggerSkipsWhileRunning(t *testing.T) {
	d := newFakeDeliverer(true)
	s := NewScheduler(SchedulerConfig{Deliverer: d, Logger: discardLogger()})

	s.Trigger(context.Background())
	<-d.started

	s.Trigger(context.Background())
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), d.calls.Load())

	close(d.release)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_StopCancelsInFlightAfterDeadline(t *testing.T) {
	d := newFakeDeliverer(true)
	s := NewScheduler(SchedulerConfig{Deliverer: d, Logger: discardLogger()})

	s.Trigger(context.Background())
	<-d.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Stop(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The in-flight cycle observes cancellation and the trigger goroutine exits.
	assert.Eventually(t, func() bool {
		done := make(chan struct{})
		go func() { s.wg.Wait(); close(done) }()
		select {
		case <-done:
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, time.Second, 20*time.Millisecond)

	s.Trigger(context.Background())
	assert.Equal(t, int32(1), d.calls.Load(), "stopped scheduler ignores triggers")
}

func TestScheduler_TriggerAfterStopIsIgnored(t *testing.T) {
	d := newFakeDeliverer(false)
	s := NewScheduler(SchedulerConfig{Deliverer: d, Logger: discardLogger()})

	require.NoError(t, s.Stop(context.Background()))

	assert.NotPanics(t, func() { s.Trigger(context.Background()) })
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, d.calls.Load())
}

func TestScheduler_TriggerRacingStop(t *testing.T) {
	d := newFakeDeliverer(false)
	s := NewScheduler(SchedulerConfig{Deliverer: d, Interval: time.Hour, Logger: discardLogger()})
	s.Start()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() { s.Trigger(context.Background()) })
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	wg.Wait()

	// Stop waited for every cycle that was admitted before it.
	calls := d.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, d.calls.Load())
}

func TestCronLogger(t *testing.T) {
	l := cronLogger{logger: discardLogger()}

	assert.NotPanics(t, func() {
		l.Info("wake", "now", time.Now())
		l.Error(assert.AnError, "panic", "stack", "...")
	})
}
