package integrators

import "github.com/san-kum/fopdtsim/internal/dynamo"

// Euler is forward Euler. Being first order, it drifts visibly from the
// analytic FOPDT response when tau is only a few ticks; it is selectable
// for comparison against RK4 and RK45.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	slope := sys.Derive(x, t)
	next := x.Clone()
	for i, d := range slope {
		next[i] += dt * d
	}
	return next
}
