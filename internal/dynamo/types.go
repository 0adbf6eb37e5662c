package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// System is an ODE right-hand side dX/dt = f(X, t). Any exogenous input is
// owned by the system itself (the FOPDT model looks its input up by time).
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// StepBounded is implemented by systems whose right-hand side is piecewise
// constant in time. Fixed and adaptive drivers announce each step before
// taking it so that a stage evaluated at t+dt still reads the input held
// over [t, t+dt).
type StepBounded interface {
	BeginStep(t, dt float64)
}

type Integrator interface {
	Step(sys System, x State, t float64, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, t, dt, tol float64) (State, float64, error)
}
