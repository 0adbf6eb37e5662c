package process

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/integrators"
	"github.com/san-kum/fopdtsim/internal/series"
)

func cvSeries(values ...float64) *series.Series {
	s := series.New("cv", len(values))
	for _, v := range values {
		s.Append(v)
	}
	return s
}

func TestInputDeadTimeLookup(t *testing.T) {
	m := New(Params{Gain: 1, TimeConstant: 1, DeadTime: 1}, cvSeries(1, 2, 3))

	tests := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{0.5, 0},
		{1, 0},
		{1.5, 1},
		{2, 2},
		{2.99, 2},
		{3.5, 3},
		{4, 3},
		{5, 3},
		{100, 3},
	}

	for _, tt := range tests {
		if got := m.Input(tt.t); got != tt.want {
			t.Errorf("Input(%g) = %g, want %g", tt.t, got, tt.want)
		}
	}
}

func TestInputEmptyHistory(t *testing.T) {
	m := New(Params{Gain: 1, TimeConstant: 1}, cvSeries())
	if got := m.Input(10); got != 0 {
		t.Errorf("Input on empty history = %g, want 0", got)
	}
}

func TestDerivative(t *testing.T) {
	m := New(Params{Gain: 2, TimeConstant: 4, DeadTime: 0, Bias: 10}, cvSeries(3))

	// u = 3, PV = 12: (-(12-10) + 2*3) / 4 = 1
	if got := m.Derivative(12, 0.5); math.Abs(got-1) > 1e-12 {
		t.Errorf("Derivative = %g, want 1", got)
	}
	// at steady state the derivative vanishes
	if got := m.Derivative(16, 0.5); math.Abs(got) > 1e-12 {
		t.Errorf("Derivative at steady state = %g, want 0", got)
	}
}

func TestAdvanceMatchesAnalytic(t *testing.T) {
	p := Params{Gain: 1.45, TimeConstant: 20, DeadTime: 0, Bias: 13.5}
	cv := cvSeries(10, 10)
	m := New(p, cv)

	pv, err := m.Advance(p.Bias, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := p.Bias + p.Gain*10*(1-math.Exp(-1.0/20))
	if math.Abs(pv-want) > 1e-9 {
		t.Errorf("Advance = %.10f, want %.10f", pv, want)
	}
}

func TestAdvanceHoldsInputAcrossTick(t *testing.T) {
	// CV steps at sample 1; with one tick of dead time the step must not
	// reach PV until the tick that starts at t=2
	p := Params{Gain: 1, TimeConstant: 5, DeadTime: 1}
	cv := cvSeries(0, 10)

	for _, name := range integrators.Names() {
		integ, _ := integrators.ByName(name)
		m := New(p, cv, WithIntegrator(integ))

		pv, err := m.Advance(0, 1, 2)
		if err != nil {
			t.Fatal(err)
		}
		if pv != 0 {
			t.Errorf("%s: PV over [1, 2] = %g, want 0", name, pv)
		}

		pv, err = m.Advance(0, 2, 3)
		if err != nil {
			t.Fatal(err)
		}
		want := 10 * (1 - math.Exp(-1.0/5))
		tol := 1e-6
		if name == "euler" {
			tol = 1e-2
		}
		if math.Abs(pv-want) > tol {
			t.Errorf("%s: PV over [2, 3] = %g, want %g", name, pv, want)
		}
	}
}

func TestDeriveOutsideStepUsesInput(t *testing.T) {
	m := New(Params{Gain: 1, TimeConstant: 1, DeadTime: 1}, cvSeries(1, 2, 3))
	if got := m.Derive(dynamo.State{0}, 2)[0]; got != 2 {
		t.Errorf("Derive at t=2 = %g, want 2", got)
	}
}

func TestAdvanceDeterministic(t *testing.T) {
	p := Params{Gain: 1.45, TimeConstant: 6.23, DeadTime: 1.01, Bias: 13.5}
	cv := cvSeries(10, 11, 12)

	for _, integ := range integrators.Names() {
		in, _ := integrators.ByName(integ)
		a, err := New(p, cv, WithIntegrator(in)).Advance(14, 2, 3)
		if err != nil {
			t.Fatal(err)
		}
		in2, _ := integrators.ByName(integ)
		b, err := New(p, cv, WithIntegrator(in2)).Advance(14, 2, 3)
		if err != nil {
			t.Fatal(err)
		}
		if a != b {
			t.Errorf("%s: %v != %v", integ, a, b)
		}
	}
}

func TestAdvanceDegenerate(t *testing.T) {
	m := New(Params{Gain: 1, TimeConstant: 0}, cvSeries(1))
	_, err := m.Advance(0, 0, 1)
	if !errors.Is(err, dynamo.ErrNumeric) {
		t.Errorf("expected ErrNumeric, got %v", err)
	}
}

func TestReplayStepResponse(t *testing.T) {
	p := Params{Gain: 1.45, TimeConstant: 623, DeadTime: 101, Bias: 13.5}
	cv := make([]float64, 200)
	for i := range cv {
		cv[i] = 10
	}

	pv, err := Replay(p, cv)
	if err != nil {
		t.Fatal(err)
	}
	want := StepResponse(p, 10, 200)

	for k := range pv {
		// the dead-time onset is evaluated with u=0 at its left edge, which
		// costs a few 1e-4 against the analytic curve
		if math.Abs(pv[k]-want[k+1]) > 1e-3 {
			t.Fatalf("tick %d: replay %.8f, analytic %.8f", k+1, pv[k], want[k+1])
		}
	}
	for k := 101; k < len(pv); k++ {
		if pv[k] <= pv[k-1] {
			t.Fatalf("PV not rising at tick %d", k+1)
		}
	}
	if pv[99] != p.Bias {
		t.Errorf("PV moved before dead time elapsed: %v", pv[99])
	}
}

func TestFromSeconds(t *testing.T) {
	p, err := FromSeconds(1.45, 62.3, 10.1, 13.5, 100_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p.TimeConstant-623) > 1e-9 || math.Abs(p.DeadTime-101) > 1e-9 {
		t.Errorf("unexpected conversion: %+v", p)
	}

	if _, err := FromSeconds(1, 0, 1, 0, 100_000_000); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for zero time constant, got %v", err)
	}
	if _, err := FromSeconds(1, 1, -1, 0, 100_000_000); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for negative dead time, got %v", err)
	}
	if _, err := FromSeconds(1, 1, 1, 0, 0); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for zero period, got %v", err)
	}
}

func TestNoiseBound(t *testing.T) {
	n := NewNoise(42)
	seen := make(map[int]bool)
	for i := 0; i < 5000; i++ {
		v := n.Sample()
		if math.Abs(v) > NoiseBound+1e-12 {
			t.Fatalf("noise %v out of bound", v)
		}
		seen[int(math.Round(v*100))] = true
	}
	if len(seen) != 11 {
		t.Errorf("expected 11 distinct levels, saw %d", len(seen))
	}
}

func TestNoiseReproducible(t *testing.T) {
	a, b := NewNoise(7), NewNoise(7)
	for i := 0; i < 100; i++ {
		if a.Sample() != b.Sample() {
			t.Fatal("same seed produced different noise")
		}
	}
}
