package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/fopdtsim/internal/process"
)

// Bounds limit the FOPDT identification grid. Times are in ticks.
type Bounds struct {
	GainMin, GainMax float64
	TauMin, TauMax   float64
	DeadMin, DeadMax float64

	GainSteps int
	TauSteps  int
	DeadSteps int
	// Refine is the number of zoom passes around the best point.
	Refine int
}

func DefaultBounds(n int) Bounds {
	return Bounds{
		GainMin:   0.1,
		GainMax:   5,
		TauMin:    1,
		TauMax:    math.Max(2, float64(n)),
		DeadMin:   0,
		DeadMax:   math.Max(0, float64(n)/4),
		GainSteps: 25,
		TauSteps:  25,
		DeadSteps: 21,
		Refine:    2,
	}
}

type Fit struct {
	Params process.Params
	SSE    float64
	RMSE   float64
}

// Identify fits gain, time constant and dead time to a recorded CV/PV
// pair by replaying the CV history through the model without noise. The
// bias is taken from the first PV sample.
func Identify(ctx context.Context, cv, pv []float64, b Bounds) (Fit, error) {
	n := min(len(cv), len(pv))
	if n < 2 {
		return Fit{}, errors.New("optim: need at least two samples")
	}
	cv, pv = cv[:n], pv[:n]
	bias := pv[0]

	objective := func(p map[string]float64) (float64, error) {
		params := process.Params{Gain: p["gain"], TimeConstant: p["tau"], DeadTime: p["dead"], Bias: bias}
		if err := params.Validate(); err != nil {
			return 0, err
		}
		sim, err := process.Replay(params, cv)
		if err != nil {
			return 0, err
		}
		floats.Sub(sim, pv)
		return floats.Dot(sim, sim), nil
	}

	gain := Linspace(b.GainMin, b.GainMax, b.GainSteps)
	tau := Linspace(b.TauMin, b.TauMax, b.TauSteps)
	dead := Linspace(b.DeadMin, b.DeadMax, b.DeadSteps)

	var best map[string]float64
	var sse float64
	for pass := 0; pass <= b.Refine; pass++ {
		g := NewGridSearch([]string{"gain", "tau", "dead"}, [][]float64{gain, tau, dead})
		var err error
		best, sse, err = g.Search(ctx, objective)
		if err != nil {
			return Fit{}, fmt.Errorf("identify pass %d: %w", pass, err)
		}
		if sse == 0 {
			break
		}
		gain = zoom(gain, best["gain"], 0)
		tau = zoom(tau, best["tau"], 1e-6)
		dead = zoom(dead, best["dead"], 0)
	}

	params := process.Params{Gain: best["gain"], TimeConstant: best["tau"], DeadTime: best["dead"], Bias: bias}
	return Fit{Params: params, SSE: sse, RMSE: math.Sqrt(sse / float64(n))}, nil
}

// zoom returns a grid of the same size spanning one step either side of
// center, clamped below at floor.
func zoom(grid []float64, center, floor float64) []float64 {
	if len(grid) < 2 {
		return grid
	}
	step := (grid[len(grid)-1] - grid[0]) / float64(len(grid)-1)
	return Linspace(math.Max(floor, center-step), center+step, len(grid))
}
