package metrics

import (
	"math"

	"github.com/san-kum/fopdtsim/internal/sim"
)

// ControlEffort is the mean absolute CV move per tick.
type ControlEffort struct {
	name    string
	sum     float64
	prev    float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(s sim.Sample, dt float64) {
	if c.samples > 0 {
		c.sum += math.Abs(s.CV - c.prev)
	}
	c.prev = s.CV
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples < 2 {
		return 0
	}
	return c.sum / float64(c.samples-1)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.prev = 0
	c.samples = 0
}
