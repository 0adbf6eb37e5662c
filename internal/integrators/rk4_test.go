package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/fopdtsim/internal/dynamo"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *simpleDynamics) StateDim() int { return 2 }

// decay is dx/dt = (-(x - bias) + k) / tau, a first order lag towards
// bias + k with a closed-form solution.
type decay struct {
	tau, bias, k float64
}

func (d *decay) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{(-(x[0] - d.bias) + d.k) / d.tau}
}

func (d *decay) StateDim() int { return 1 }

func (d *decay) exact(x0, t float64) float64 {
	target := d.bias + d.k
	return target + (x0-target)*math.Exp(-t/d.tau)
}

func TestRK4Accuracy(t *testing.T) {
	dyn := &simpleDynamics{}
	integ := NewRK4()

	x0 := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100

	x := x0
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}

	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestRK4FirstOrderLag(t *testing.T) {
	d := &decay{tau: 5, bias: 13.5, k: 14.5}
	integ := NewRK4()

	x := dynamo.State{13.5}
	for i := 0; i < 50; i++ {
		x = integ.Step(d, x, float64(i)*0.1, 0.1)
	}

	want := d.exact(13.5, 5)
	if math.Abs(x[0]-want) > 1e-6 {
		t.Errorf("got %.8f, want %.8f", x[0], want)
	}
}
