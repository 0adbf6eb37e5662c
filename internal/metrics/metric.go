// Package metrics scores closed-loop performance and exports session
// counters to Prometheus.
package metrics

import (
	"sort"
	"sync"

	"github.com/san-kum/fopdtsim/internal/sim"
)

// Metric accumulates a single figure of merit over the samples of a run.
type Metric interface {
	Name() string
	Observe(s sim.Sample, dt float64)
	Value() float64
	Reset()
}

// Set feeds successful tick samples to a group of metrics. It is a
// sim.Observer.
type Set struct {
	mu      sync.Mutex
	dt      float64
	metrics []Metric
}

// NewSet creates a set scoring samples taken every dt seconds.
func NewSet(dt float64, metrics ...Metric) *Set {
	return &Set{dt: dt, metrics: metrics}
}

// Default is IAE, ISE, control effort and an in-band ratio of ±band.
func Default(dt, band float64) *Set {
	return NewSet(dt, NewIAE(), NewISE(), NewControlEffort(), NewStability(band))
}

func (s *Set) OnTick(o sim.Outcome) {
	if !o.Appended {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Observe(o.Sample, s.dt)
	}
}

func (s *Set) BindSession(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Reset()
	}
}

func (s *Set) Values() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Names returns the metric names in sorted order.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.metrics))
	for _, m := range s.metrics {
		names = append(names, m.Name())
	}
	sort.Strings(names)
	return names
}
