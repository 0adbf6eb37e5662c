package metrics

import (
	"math"

	"github.com/san-kum/fopdtsim/internal/sim"
)

// Stability is the fraction of samples with PV within threshold of SP.
type Stability struct {
	name      string
	threshold float64
	inBand    int
	samples   int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "in_band",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(x sim.Sample, dt float64) {
	s.samples++
	if math.Abs(x.SP-x.PV) <= s.threshold {
		s.inBand++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return float64(s.inBand) / float64(s.samples)
}

func (s *Stability) Reset() {
	s.inBand = 0
	s.samples = 0
}
