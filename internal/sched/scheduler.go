// Package sched runs a task at a fixed wall-clock cadence.
//
// Fire times are computed against the absolute schedule t0 + n*period, so
// per-tick jitter does not accumulate. A tick that overruns is followed
// immediately by the next one; slots that were missed entirely are skipped,
// not replayed. Ticks never overlap.
package sched

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrRunning       = errors.New("sched: already running")
	ErrInvalidPeriod = errors.New("sched: period must be positive")
)

// Fire describes one executed tick.
type Fire struct {
	N        int
	Target   time.Time
	Actual   time.Time
	Duration time.Duration
}

// Lateness is how far behind the absolute schedule the tick started.
func (f Fire) Lateness() time.Duration { return f.Actual.Sub(f.Target) }

type Stats struct {
	Fired   int64
	Skipped int64
	Panics  int64
}

type Option func(*Scheduler)

func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithOnFire registers a hook called on the scheduler goroutine after each
// tick.
func WithOnFire(fn func(Fire)) Option {
	return func(s *Scheduler) { s.onFire = fn }
}

type Scheduler struct {
	period time.Duration
	clock  Clock
	log    *slog.Logger
	onFire func(Fire)

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	fired   atomic.Int64
	skipped atomic.Int64
	panics  atomic.Int64
}

func New(period time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		period: period,
		clock:  wallClock{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	done := make(chan struct{})
	close(done)
	s.done = done
	return s
}

func (s *Scheduler) Period() time.Duration { return s.period }

// Start begins calling task every period on a dedicated goroutine.
func (s *Scheduler) Start(task func()) error {
	if s.period <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, s.period)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(task, s.stop, s.done)
	return nil
}

// Stop requests that no further ticks start. It does not wait for a tick
// that is already executing; use Wait for that. Safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

// Done is closed once the scheduler goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the scheduler goroutine exits or the timeout elapses,
// reporting whether it exited.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	select {
	case <-s.Done():
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Fired:   s.fired.Load(),
		Skipped: s.skipped.Load(),
		Panics:  s.panics.Load(),
	}
}

func (s *Scheduler) loop(task func(), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	t0 := s.clock.Now()
	s.log.Debug("scheduler started", "period", s.period.String())

	n := 1
	for {
		select {
		case <-stop:
			s.log.Debug("scheduler stopped", "fired", s.fired.Load())
			return
		default:
		}

		target := t0.Add(time.Duration(n) * s.period)
		if delta := target.Sub(s.clock.Now()); delta > 0 {
			select {
			case <-stop:
				s.log.Debug("scheduler stopped", "fired", s.fired.Load())
				return
			case <-s.clock.After(delta):
			}
		}

		actual := s.clock.Now()
		s.run(task, n)
		s.fired.Add(1)
		if s.onFire != nil {
			s.onFire(Fire{N: n, Target: target, Actual: actual, Duration: s.clock.Now().Sub(actual)})
		}

		next := n + 1
		if behind := int(s.clock.Now().Sub(t0) / s.period); behind > next {
			s.skipped.Add(int64(behind - next))
			s.log.Warn("scheduler overrun", "tick", n, "skipped", behind-next)
			next = behind
		}
		n = next
	}
}

func (s *Scheduler) run(task func(), n int) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.log.Error("tick panicked", "tick", n, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
