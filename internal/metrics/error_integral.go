package metrics

import (
	"math"

	"github.com/san-kum/fopdtsim/internal/sim"
)

// IAE is the integral of |SP - PV| over time.
type IAE struct{ sum float64 }

func NewIAE() *IAE { return &IAE{} }

func (m *IAE) Name() string { return "iae" }

func (m *IAE) Observe(s sim.Sample, dt float64) { m.sum += math.Abs(s.SP-s.PV) * dt }

func (m *IAE) Value() float64 { return m.sum }

func (m *IAE) Reset() { m.sum = 0 }

// ISE is the integral of (SP - PV)^2 over time.
type ISE struct{ sum float64 }

func NewISE() *ISE { return &ISE{} }

func (m *ISE) Name() string { return "ise" }

func (m *ISE) Observe(s sim.Sample, dt float64) {
	e := s.SP - s.PV
	m.sum += e * e * dt
}

func (m *ISE) Value() float64 { return m.sum }

func (m *ISE) Reset() { m.sum = 0 }
