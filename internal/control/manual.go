package control

// Manual holds its output regardless of the process value, the way a
// controller in manual mode does.
type Manual struct {
	Output float64
	Target float64
}

func NewManual(output, target float64) *Manual {
	return &Manual{Output: output, Target: target}
}

func (m *Manual) Compute(pv, t float64) float64 { return m.Output }

func (m *Manual) Setpoint() float64 { return m.Target }

func (m *Manual) SetSetpoint(sp float64) { m.Target = sp }

func (m *Manual) GetParams() map[string]float64 {
	return map[string]float64{"Output": m.Output, "Target": m.Target}
}

func (m *Manual) SetParam(name string, value float64) {
	switch name {
	case "Output":
		m.Output = value
	case "Target":
		m.Target = value
	}
}
