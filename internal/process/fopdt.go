// Package process implements the first-order-plus-dead-time process model
// driven by a recorded manipulated-variable history.
package process

import (
	"fmt"
	"math"

	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/integrators"
	"github.com/san-kum/fopdtsim/internal/series"
)

// History is the read side of the CV series the model looks its input up
// in. *series.Series satisfies it.
type History interface {
	Len() int
	At(i int) float64
}

// Model is a FOPDT process:
//
//	dPV/dt = (-(PV - bias) + gain*u(t - deadTime)) / timeConstant
//
// where u is the zero-order-hold of the CV history. The model only reads
// the history; the simulation loop owns and appends to it.
type Model struct {
	params   Params
	cv       History
	integ    dynamo.Integrator
	substeps int

	// the step being integrated; a stage landing on its end reads the
	// input held over the step rather than the next sample
	stepEnd float64
	stepLen float64
	inStep  bool
}

type Option func(*Model)

// WithIntegrator selects the integrator used by Advance.
func WithIntegrator(integ dynamo.Integrator) Option {
	return func(m *Model) { m.integ = integ }
}

// WithSubsteps sets the number of fixed steps per tick.
func WithSubsteps(n int) Option {
	return func(m *Model) { m.substeps = n }
}

func New(params Params, cv History, opts ...Option) *Model {
	m := &Model{
		params:   params,
		cv:       cv,
		integ:    integrators.NewRK4(),
		substeps: integrators.DefaultSubsteps,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFromSeries is New with the CV series of a session.
func NewFromSeries(params Params, cv *series.Series, opts ...Option) *Model {
	return New(params, cv, opts...)
}

func (m *Model) Params() Params { return m.params }

// Input returns the effective manipulated value at process time t.
func (m *Model) Input(t float64) float64 {
	delayed := t - m.params.DeadTime
	if delayed <= 0 {
		return 0
	}
	return m.sample(int(math.Floor(delayed)))
}

// heldInput is Input taken as the limit from the left, so a sample that
// starts exactly at t is not yet in effect.
func (m *Model) heldInput(t float64) float64 {
	delayed := t - m.params.DeadTime
	if delayed <= 0 {
		return 0
	}
	idx := int(math.Floor(delayed))
	if float64(idx) == delayed {
		idx--
	}
	return m.sample(idx)
}

func (m *Model) sample(idx int) float64 {
	n := m.cv.Len()
	if n == 0 {
		return 0
	}
	if idx >= n {
		return m.cv.At(n - 1)
	}
	return m.cv.At(idx)
}

// Derivative returns dPV/dt at process time t.
func (m *Model) Derivative(pv, t float64) float64 {
	return m.slope(pv, m.Input(t))
}

func (m *Model) slope(pv, u float64) float64 {
	return (-(pv - m.params.Bias) + m.params.Gain*u) / m.params.TimeConstant
}

func (m *Model) Derive(x dynamo.State, t float64) dynamo.State {
	u := m.Input(t)
	if m.inStep && t >= m.stepEnd {
		// back off inside the step so a rounded step end cannot land past
		// a sample boundary
		u = m.heldInput(m.stepEnd - 1e-6*m.stepLen)
	}
	return dynamo.State{m.slope(x[0], u)}
}

// BeginStep records the step [t, t+dt) the integrator is about to take.
func (m *Model) BeginStep(t, dt float64) {
	m.stepEnd = t + dt
	m.stepLen = dt
	m.inStep = true
}

func (m *Model) StateDim() int { return 1 }

// Advance integrates PV from prev at t0 to t1 and returns PV(t1).
func (m *Model) Advance(prev, t0, t1 float64) (float64, error) {
	if m.params.TimeConstant <= 0 {
		return 0, fmt.Errorf("time constant %g: %w", m.params.TimeConstant, dynamo.ErrNumeric)
	}
	x, err := integrators.Integrate(m.integ, m, dynamo.State{prev}, t0, t1, m.substeps)
	m.inStep = false
	if err != nil {
		return 0, fmt.Errorf("advance [%g, %g]: %w", t0, t1, err)
	}
	return x[0], nil
}
