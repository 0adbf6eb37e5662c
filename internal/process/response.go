package process

import "math"

// StepResponse returns the noise-free PV of a process starting at rest at
// its bias with the input stepped to u at t=0, sampled at ticks 0..n.
func StepResponse(p Params, u float64, n int) []float64 {
	out := make([]float64, n+1)
	for k := 0; k <= n; k++ {
		out[k] = p.Bias + p.Gain*u*Fraction(p, float64(k))
	}
	return out
}

// Fraction is the normalized step response 1 - exp(-(t-d)/tau) at time t,
// zero before the dead time has elapsed.
func Fraction(p Params, t float64) float64 {
	if t <= p.DeadTime {
		return 0
	}
	return 1 - math.Exp(-(t-p.DeadTime)/p.TimeConstant)
}

// Replay runs the model offline over a recorded CV history without noise,
// returning one PV per CV sample. PV[k] is the value at the end of tick k.
func Replay(p Params, cv []float64, opts ...Option) ([]float64, error) {
	h := &prefixHistory{samples: cv}
	m := New(p, h, opts...)
	pv := make([]float64, len(cv))
	prev := p.Bias
	for k := range cv {
		// the live loop appends CV before advancing, so tick k sees k+1 samples
		h.n = k + 1
		next, err := m.Advance(prev, float64(k), float64(k+1))
		if err != nil {
			return pv[:k], err
		}
		pv[k] = next
		prev = next
	}
	return pv, nil
}

type prefixHistory struct {
	samples []float64
	n       int
}

func (h *prefixHistory) Len() int          { return h.n }
func (h *prefixHistory) At(i int) float64 { return h.samples[i] }
