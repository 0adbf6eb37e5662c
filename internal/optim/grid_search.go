// Package optim fits process models to recorded data.
package optim

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/fopdtsim/internal/dynamo"
)

// Objective scores one parameter combination; lower is better.
type Objective func(params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Size is the number of combinations the search evaluates.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// combo decodes the i-th combination in row-major order.
func (g *GridSearch) combo(i int) map[string]float64 {
	params := make(map[string]float64, len(g.paramNames))
	for d := len(g.paramNames) - 1; d >= 0; d-- {
		r := g.ranges[d]
		params[g.paramNames[d]] = r[i%len(r)]
		i /= len(r)
	}
	return params
}

// Search evaluates every combination, in parallel, and returns the best.
// Combinations whose objective fails or is not finite are skipped.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, errors.New("optim: one range per parameter required")
	}
	n := g.Size()
	if n == 0 {
		return nil, 0, errors.New("optim: empty grid")
	}

	scores := make([]float64, n)
	dynamo.ParallelFor(n, 8, func(start, end int) {
		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				scores[i] = math.Inf(1)
				continue
			}
			v, err := objective(g.combo(i))
			if err != nil || math.IsNaN(v) {
				v = math.Inf(1)
			}
			scores[i] = v
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	bestIdx := floats.MinIdx(scores)
	if math.IsInf(scores[bestIdx], 1) {
		return nil, 0, errors.New("optim: no combination could be evaluated")
	}
	return g.combo(bestIdx), scores[bestIdx], nil
}
