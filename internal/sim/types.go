package sim

import (
	"time"
)

// Sample is the data one tick produced.
type Sample struct {
	CV float64
	SP float64
	// PV is the value written to the controller, Integrated the model
	// output before noise.
	PV         float64
	Integrated float64
}

// Outcome is the result of one tick. Err is nil on full success and a
// *dynamo.TickError otherwise.
type Outcome struct {
	Scan     int
	Time     time.Time
	Duration time.Duration
	Sample   Sample
	// Appended reports whether the tick added a sample to the series.
	Appended  bool
	ScanCount int
	Err       error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Observer is notified after every tick, on the tick goroutine. Slow
// observers should buffer.
type Observer interface {
	OnTick(Outcome)
}

type ObserverFunc func(Outcome)

func (f ObserverFunc) OnTick(o Outcome) { f(o) }

// Flusher is implemented by observers that buffer and want a chance to
// drain when the session stops.
type Flusher interface {
	Flush() error
}

// SessionBinder is implemented by observers that label their output with
// the id of the session feeding them. BindSession is called on every Start.
type SessionBinder interface {
	BindSession(id string)
}

// NoiseSource perturbs the integrated PV before it is written.
type NoiseSource interface {
	Sample() float64
}

// Snapshot is an immutable view of the loop after a completed tick.
type Snapshot struct {
	CV        []float64
	SP        []float64
	PV        []float64
	ScanCount int
	Ticks     int
	Failures  int
	LastError string
	UpdatedAt time.Time
}

// Len is the number of samples in each series.
func (s *Snapshot) Len() int { return len(s.PV) }

// Since returns the samples from index from onward.
func (s *Snapshot) Since(from int) (cv, sp, pv []float64) {
	if from < 0 {
		from = 0
	}
	if from > len(s.PV) {
		from = len(s.PV)
	}
	return s.CV[from:], s.SP[from:], s.PV[from:]
}
