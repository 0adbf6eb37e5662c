// Package sim runs a FOPDT process model in closed loop with an external
// controller. A Loop performs individual scans; a Session owns the tag
// I/O connection and drives the Loop from a drift-corrected scheduler.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/san-kum/fopdtsim/internal/config"
	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/process"
	"github.com/san-kum/fopdtsim/internal/sched"
	"github.com/san-kum/fopdtsim/internal/tagio"
)

var ErrAlreadyRunning = errors.New("sim: session already running")

type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// StopError wraps a failure to release the tag I/O connection.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return fmt.Sprintf("stop: %v", e.Err) }

func (e *StopError) Is(target error) bool { return target == dynamo.ErrStop }

func (e *StopError) Unwrap() error { return e.Err }

type SessionOption func(*Session)

func WithLogger(log *slog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithClock replaces the scheduler clock.
func WithClock(c sched.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithOnFire is called on the scheduler goroutine after every tick.
func WithOnFire(fn func(sched.Fire)) SessionOption {
	return func(s *Session) { s.onFire = fn }
}

// WithNoiseSource overrides the noise chosen from configuration.
func WithNoiseSource(n NoiseSource) SessionOption {
	return func(s *Session) { s.noise = n }
}

// Session is the Idle/Running lifecycle around a Loop.
type Session struct {
	opener tagio.Opener
	log    *slog.Logger
	clock  sched.Clock
	onFire func(sched.Fire)
	noise  NoiseSource

	mu        sync.Mutex
	observers []Observer
	io        tagio.TagIO
	sched     *sched.Scheduler
	parsed    config.Parsed

	state atomic.Int32
	id    atomic.Pointer[xid.ID]
	loop  atomic.Pointer[Loop]
}

func NewSession(opener tagio.Opener, opts ...SessionOption) *Session {
	s := &Session{
		opener: opener,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loop.Store(NewLoop(nil, Tags{}, process.Params{}, WithLoopLogger(s.log)))
	return s
}

// Subscribe adds an observer. It takes effect on the next Start.
func (s *Session) Subscribe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *Session) State() State { return State(s.state.Load()) }

// ID identifies the current or most recent run; empty before the first Start.
func (s *Session) ID() string {
	if id := s.id.Load(); id != nil {
		return id.String()
	}
	return ""
}

// Snapshot returns the series, scan count and last error as of the last
// completed tick. It never blocks the tick.
func (s *Session) Snapshot() *Snapshot {
	return s.loop.Load().Snapshot()
}

// Parsed returns the configuration of the current or most recent run.
func (s *Session) Parsed() config.Parsed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parsed
}

// SchedulerStats reports fired, skipped and panicked ticks of the current
// or most recent run.
func (s *Session) SchedulerStats() sched.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return sched.Stats{}
	}
	return s.sched.Stats()
}

// Start validates cfg, connects and probes the tags, then begins ticking.
// Every failure before ticking starts is a *dynamo.ConfigError and leaves
// the session Idle with no connection held.
func (s *Session) Start(ctx context.Context, cfg config.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Running {
		return ErrAlreadyRunning
	}

	parsed, err := cfg.Parse()
	if err != nil {
		return err
	}

	io, err := s.opener()
	if err != nil {
		return &dynamo.ConfigError{Field: "backend", Reason: err.Error(), Err: err}
	}

	cctx, cancel := context.WithTimeout(ctx, parsed.Timeout)
	err = io.Connect(cctx, parsed.Address, parsed.Unit, parsed.Timeout)
	cancel()
	if err != nil {
		s.release(io)
		return &dynamo.ConfigError{Field: "address", Reason: fmt.Sprintf("connect %s: %v", parsed.Address, err), Err: err}
	}

	if err := s.preflight(ctx, io, parsed); err != nil {
		s.release(io)
		return err
	}

	noise := s.noise
	if noise == nil {
		if parsed.Noise {
			noise = process.NewNoise(parsed.Seed)
		} else {
			noise = process.Silent{}
		}
	}

	id := xid.New()
	log := s.log.With("session", id.String())
	for _, obs := range s.observers {
		if b, ok := obs.(SessionBinder); ok {
			b.BindSession(id.String())
		}
	}
	loop := NewLoop(io, Tags{SP: parsed.SPTag, PV: parsed.PVTag, CV: parsed.CVTag}, parsed.Params,
		WithNoise(noise),
		WithIOTimeout(parsed.Timeout),
		WithLoopLogger(log),
		WithObservers(s.observers...),
		WithModelOptions(process.WithIntegrator(parsed.Integrator), process.WithSubsteps(parsed.Substeps)),
	)

	schedOpts := []sched.Option{sched.WithLogger(log)}
	if s.clock != nil {
		schedOpts = append(schedOpts, sched.WithClock(s.clock))
	}
	if s.onFire != nil {
		schedOpts = append(schedOpts, sched.WithOnFire(s.onFire))
	}
	sch := sched.New(parsed.Period, schedOpts...)

	tickCtx := context.WithoutCancel(ctx)
	if err := sch.Start(func() { loop.Tick(tickCtx) }); err != nil {
		s.release(io)
		return &dynamo.ConfigError{Field: "period", Reason: err.Error(), Err: err}
	}

	s.io = io
	s.sched = sch
	s.parsed = parsed
	s.id.Store(&id)
	s.loop.Store(loop)
	s.state.Store(int32(Running))

	log.Info("session started",
		"address", parsed.Address,
		"unit", parsed.Unit,
		"period", parsed.Period,
		"gain", parsed.Params.Gain,
		"time_constant_ticks", parsed.Params.TimeConstant,
		"dead_time_ticks", parsed.Params.DeadTime,
		"bias", parsed.Params.Bias,
	)
	return nil
}

func (s *Session) preflight(ctx context.Context, io tagio.TagIO, p config.Parsed) error {
	rctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	tags := []string{p.SPTag, p.PVTag, p.CVTag}
	fields := []string{"sp_tag", "pv_tag", "cv_tag"}
	vals, err := io.Read(rctx, tags)
	if err != nil {
		return &dynamo.ConfigError{Field: "tags", Reason: fmt.Sprintf("pre-flight read: %v", err), Err: err}
	}
	if len(vals) != len(tags) {
		return &dynamo.ConfigError{Field: "tags", Reason: fmt.Sprintf("pre-flight read returned %d values for %d tags", len(vals), len(tags))}
	}
	for i, v := range vals {
		if !v.OK() {
			return &dynamo.ConfigError{
				Field:  fields[i],
				Reason: fmt.Sprintf("tag %q unreadable: %s", tags[i], v.Status),
				Err:    &dynamo.TagError{Kind: dynamo.TagRead, Tag: tags[i], Status: v.Status},
			}
		}
	}
	return nil
}

func (s *Session) release(io tagio.TagIO) {
	if err := io.Close(); err != nil {
		s.log.Warn("close after failed start", "err", err)
	}
}

// Stop halts ticking, waits up to the grace interval for an in-flight tick,
// then closes the tag I/O. Calling Stop on an Idle session does nothing.
// A close failure is returned as a *StopError and becomes the last error.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != Running {
		return nil
	}
	log := s.log.With("session", s.ID())

	s.sched.Stop()
	if !s.sched.Wait(s.parsed.Grace) {
		log.Warn("tick still running after grace interval", "grace", s.parsed.Grace)
	}

	var stopErr error
	if err := s.io.Close(); err != nil {
		stopErr = &StopError{Err: err}
		s.loop.Load().RecordError(stopErr)
		log.Error("close tag io", "err", err)
	}
	s.io = nil

	for _, obs := range s.observers {
		f, ok := obs.(Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(); err != nil {
			log.Warn("flush observer", "err", err)
		}
	}

	s.state.Store(int32(Idle))
	snap := s.Snapshot()
	st := s.sched.Stats()
	log.Info("session stopped", "scan_count", snap.ScanCount, "ticks", snap.Ticks, "failures", snap.Failures, "skipped", st.Skipped)
	return stopErr
}
