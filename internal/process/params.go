package process

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/fopdtsim/internal/dynamo"
)

// Params describe a FOPDT process. TimeConstant and DeadTime are in scan
// ticks, not seconds; use FromSeconds to convert.
type Params struct {
	Gain         float64 `json:"gain" yaml:"gain"`
	TimeConstant float64 `json:"time_constant" yaml:"time_constant"`
	DeadTime     float64 `json:"dead_time" yaml:"dead_time"`
	Bias         float64 `json:"bias" yaml:"bias"`
}

// FromSeconds builds Params from a time constant and dead time given in
// seconds, scaling them by the scheduler period.
func FromSeconds(gain, tauSeconds, deadSeconds, bias float64, period time.Duration) (Params, error) {
	if period <= 0 {
		return Params{}, &dynamo.ConfigError{Field: "period", Reason: "must be > 0"}
	}
	ticksPerSecond := float64(time.Second) / float64(period)
	p := Params{
		Gain:         gain,
		TimeConstant: tauSeconds * ticksPerSecond,
		DeadTime:     deadSeconds * ticksPerSecond,
		Bias:         bias,
	}
	return p, p.Validate()
}

func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"gain", p.Gain},
		{"time_constant", p.TimeConstant},
		{"dead_time", p.DeadTime},
		{"bias", p.Bias},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &dynamo.ConfigError{Field: f.name, Reason: "must be finite"}
		}
	}
	if p.TimeConstant <= 0 {
		return &dynamo.ConfigError{Field: "time_constant", Reason: fmt.Sprintf("must be > 0, got %g", p.TimeConstant)}
	}
	if p.DeadTime < 0 {
		return &dynamo.ConfigError{Field: "dead_time", Reason: fmt.Sprintf("must be >= 0, got %g", p.DeadTime)}
	}
	return nil
}

// SteadyState is the PV the process settles at for a constant input u.
func (p Params) SteadyState(u float64) float64 {
	return p.Bias + p.Gain*u
}
