package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/process"
	"github.com/san-kum/fopdtsim/internal/series"
	"github.com/san-kum/fopdtsim/internal/tagio"
)

// StatusNoValue is reported when a tag read claims success but carries no
// value.
const StatusNoValue = "NoValue"

type Tags struct {
	SP string
	PV string
	CV string
}

type LoopOption func(*Loop)

func WithNoise(n NoiseSource) LoopOption {
	return func(l *Loop) { l.noise = n }
}

// WithIOTimeout bounds every tag read and write.
func WithIOTimeout(d time.Duration) LoopOption {
	return func(l *Loop) { l.timeout = d }
}

func WithLoopLogger(log *slog.Logger) LoopOption {
	return func(l *Loop) { l.log = log }
}

func WithObservers(obs ...Observer) LoopOption {
	return func(l *Loop) { l.observers = append(l.observers, obs...) }
}

func WithModelOptions(opts ...process.Option) LoopOption {
	return func(l *Loop) { l.modelOpts = append(l.modelOpts, opts...) }
}

// Loop performs one simulation scan per Tick: read CV and SP, advance the
// process model, write PV. Tick must not be called concurrently; every
// other method is safe from any goroutine.
type Loop struct {
	io        tagio.TagIO
	tags      Tags
	params    process.Params
	noise     NoiseSource
	timeout   time.Duration
	log       *slog.Logger
	observers []Observer
	modelOpts []process.Option

	cv    *series.Series
	sp    *series.Series
	pv    *series.Series
	model *process.Model

	ticks     int
	scanCount int
	failures  int
	lastErr   string

	snap atomic.Pointer[Snapshot]
}

func NewLoop(io tagio.TagIO, tags Tags, params process.Params, opts ...LoopOption) *Loop {
	l := &Loop{
		io:      io,
		tags:    tags,
		params:  params,
		noise:   process.Silent{},
		timeout: 2 * time.Second,
		log:     slog.Default(),
		cv:      series.New(tags.CV, 1024),
		sp:      series.New(tags.SP, 1024),
		pv:      series.New(tags.PV, 1024),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.model = process.NewFromSeries(params, l.cv, l.modelOpts...)
	l.publish(time.Time{})
	return l
}

func (l *Loop) Params() process.Params { return l.params }

// Snapshot returns the state as of the last completed tick.
func (l *Loop) Snapshot() *Snapshot {
	return l.snap.Load()
}

// Tick runs one scan. Failures are returned in the Outcome and recorded as
// the last error; they never panic.
func (l *Loop) Tick(ctx context.Context) Outcome {
	start := time.Now()
	l.ticks++

	out := l.scan(ctx)
	out.Scan = l.ticks
	out.Time = start
	out.Duration = time.Since(start)

	if out.Err != nil {
		out.Err = &dynamo.TickError{Scan: out.Scan, Wrapped: out.Err}
		l.failures++
		l.lastErr = out.Err.Error()
		l.log.Warn("tick failed", "scan", out.Scan, "scan_count", l.scanCount, "err", out.Err)
	} else {
		l.scanCount++
		l.log.Debug("tick", "scan", out.Scan, "cv", out.Sample.CV, "sp", out.Sample.SP, "pv", out.Sample.PV)
	}
	out.ScanCount = l.scanCount

	l.publish(start)
	for _, obs := range l.observers {
		obs.OnTick(out)
	}
	return out
}

func (l *Loop) scan(ctx context.Context) Outcome {
	var out Outcome

	vals, err := l.read(ctx)
	if err != nil {
		out.Err = err
		return out
	}
	cv, sp := vals[0].Float(), vals[1].Float()
	out.Sample.CV, out.Sample.SP = cv, sp

	// model time is the count of successful scans; a failed tick does not
	// move it even though its samples are appended
	k := l.scanCount
	prev := l.params.Bias
	if last, ok := l.pv.Last(); ok {
		prev = last
	}

	l.cv.Append(cv)
	l.sp.Append(sp)

	integrated, err := l.model.Advance(prev, float64(k), float64(k+1))
	if err != nil {
		// hold PV so the series stay the same length
		l.pv.Append(prev)
		out.Sample.PV, out.Sample.Integrated = prev, prev
		out.Appended = true
		out.Err = err
		return out
	}
	pv := integrated + l.noise.Sample()
	l.pv.Append(pv)
	out.Sample.PV, out.Sample.Integrated = pv, integrated
	out.Appended = true

	out.Err = l.write(ctx, pv)
	return out
}

func (l *Loop) read(ctx context.Context) ([]tagio.Value, error) {
	rctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	tags := []string{l.tags.CV, l.tags.SP}
	vals, err := l.io.Read(rctx, tags)
	if err != nil {
		return nil, &dynamo.TagError{Kind: dynamo.TagRead, Tag: l.tags.CV, Status: err.Error()}
	}
	if len(vals) != len(tags) {
		return nil, &dynamo.TagError{Kind: dynamo.TagRead, Tag: l.tags.CV, Status: fmt.Sprintf("read returned %d values for %d tags", len(vals), len(tags))}
	}
	for i, v := range vals {
		if v.OK() {
			continue
		}
		status := v.Status
		if status == tagio.StatusSuccess {
			status = StatusNoValue
		}
		return nil, &dynamo.TagError{Kind: dynamo.TagRead, Tag: tags[i], Status: status}
	}
	return vals, nil
}

func (l *Loop) write(ctx context.Context, pv float64) error {
	wctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.io.Write(wctx, l.tags.PV, pv)
	if err != nil {
		return &dynamo.TagError{Kind: dynamo.TagWrite, Tag: l.tags.PV, Status: err.Error()}
	}
	if res.Status != tagio.StatusSuccess {
		return &dynamo.TagError{Kind: dynamo.TagWrite, Tag: l.tags.PV, Status: res.Status}
	}
	return nil
}

func (l *Loop) publish(at time.Time) {
	l.snap.Store(&Snapshot{
		CV:        l.cv.View(),
		SP:        l.sp.View(),
		PV:        l.pv.View(),
		ScanCount: l.scanCount,
		Ticks:     l.ticks,
		Failures:  l.failures,
		LastError: l.lastErr,
		UpdatedAt: at,
	})
}

// RecordError replaces the published last error without touching the
// series. Used for failures outside a tick, such as closing the tag I/O.
func (l *Loop) RecordError(err error) {
	for {
		cur := l.snap.Load()
		next := *cur
		next.LastError = err.Error()
		if l.snap.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// Run ticks n times back to back, without a scheduler. It stops early when
// ctx is done.
func (l *Loop) Run(ctx context.Context, n int) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, n)
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		default:
		}
		outcomes = append(outcomes, l.Tick(ctx))
	}
	return outcomes, nil
}
