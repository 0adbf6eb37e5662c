package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/fopdtsim/internal/dynamo"
)

func TestIntegrate(t *testing.T) {
	d := &decay{tau: 3, bias: 1, k: 2}
	want := d.exact(1, 1)

	tests := []struct {
		name  string
		integ dynamo.Integrator
		tol   float64
	}{
		{"rk4", NewRK4(), 1e-9},
		{"rk45", NewRK45(), 1e-7},
		{"euler", NewEuler(), 1e-2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := Integrate(tt.integ, d, dynamo.State{1}, 0, 1, 0)
			if err != nil {
				t.Fatalf("integrate: %v", err)
			}
			if math.Abs(x[0]-want) > tt.tol {
				t.Errorf("got %.10f, want %.10f", x[0], want)
			}
		})
	}
}

func TestIntegrateDeterministic(t *testing.T) {
	d := &decay{tau: 7, bias: 0, k: 1}
	a, err := Integrate(NewRK4(), d, dynamo.State{0.3}, 4, 5, 20)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Integrate(NewRK4(), d, dynamo.State{0.3}, 4, 5, 20)
	if err != nil {
		t.Fatal(err)
	}
	if a[0] != b[0] {
		t.Errorf("non-deterministic result: %v vs %v", a[0], b[0])
	}
}

type blowup struct{}

func (blowup) Derive(x dynamo.State, t float64) dynamo.State { return dynamo.State{math.Inf(1)} }
func (blowup) StateDim() int                                  { return 1 }

func TestIntegrateNonFinite(t *testing.T) {
	_, err := Integrate(NewRK4(), blowup{}, dynamo.State{0}, 0, 1, 4)
	if !errors.Is(err, dynamo.ErrNumeric) {
		t.Errorf("expected ErrNumeric, got %v", err)
	}

	_, err = Integrate(NewRK4(), blowup{}, dynamo.State{0}, 1, 0, 4)
	if !errors.Is(err, dynamo.ErrNumeric) {
		t.Errorf("expected ErrNumeric for reversed interval, got %v", err)
	}
}

func TestRK45_AdaptiveStep(t *testing.T) {
	integrator := NewRK45()
	dyn := &simpleDynamics{}

	x, newDt, err := integrator.StepAdaptive(dyn, dynamo.State{1.0, 0.0}, 0, 0.1, 1e-8)
	if err != nil && !errors.Is(err, ErrStepRejected) {
		t.Errorf("StepAdaptive returned error: %v", err)
	}
	if !x.IsValid() {
		t.Error("StepAdaptive produced invalid state")
	}
	if newDt <= 0 {
		t.Errorf("StepAdaptive returned invalid dt: %f", newDt)
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("verlet"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}
