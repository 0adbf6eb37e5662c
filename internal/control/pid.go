package control

import "math"

type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Target   float64
	OutMin   float64
	OutMax   float64
	integral float64
	prevErr  float64
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd, target float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		OutMin: math.Inf(-1),
		OutMax: math.Inf(1),
		first:  true,
	}
}

// WithLimits clamps the controller output to [lo, hi].
func (p *PID) WithLimits(lo, hi float64) *PID {
	p.OutMin, p.OutMax = lo, hi
	return p
}

func (p *PID) Compute(pv, t float64) float64 {
	err := p.Target - pv

	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		return p.clamp(p.Kp*err + p.Ki*p.integral)
	}

	dt := t - p.prevT
	if dt <= 0 {
		return p.clamp(p.Kp*err + p.Ki*p.integral)
	}

	derivative := (err - p.prevErr) / dt
	p.prevErr = err
	p.prevT = t

	integral := p.integral + err*dt
	u := p.Kp*err + p.Ki*integral + p.Kd*derivative
	clamped := p.clamp(u)
	// conditional integration: stop winding up while saturated
	if clamped == u || math.Signbit(err) != math.Signbit(u-clamped) {
		p.integral = integral
	}
	return clamped
}

func (p *PID) clamp(u float64) float64 {
	return math.Max(p.OutMin, math.Min(p.OutMax, u))
}

func (p *PID) Setpoint() float64 { return p.Target }

func (p *PID) SetSetpoint(sp float64) { p.Target = sp }

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":     p.Kp,
		"Ki":     p.Ki,
		"Kd":     p.Kd,
		"Target": p.Target,
	}
}

// SetParam adjusts a PID parameter
func (p *PID) SetParam(name string, value float64) {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	case "Target":
		p.Target = value
	}
}
