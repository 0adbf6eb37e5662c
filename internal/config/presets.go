package config

import (
	"sort"
	"time"
)

// Presets are named session variants layered over DefaultConfig.
var Presets = map[string]Session{
	// e2e is the reference scenario: gain 2, tau 5 s, dead time 1 s, bias 0.
	"e2e": {
		Gain: "2.0", TimeConstant: "5.0", DeadTime: "1.0", Bias: "0.0",
		Period: DefaultPeriod,
	},
	"fast": {
		Gain: "1.0", TimeConstant: "0.5", DeadTime: "0.0", Bias: "0.0",
		Period: 50 * time.Millisecond,
	},
	"slow_deadtime": {
		Gain: "1.5", TimeConstant: "20.0", DeadTime: "8.0", Bias: "10.0",
		Period: DefaultPeriod,
	},
	"sluggish": {
		Gain: "0.5", TimeConstant: "120.0", DeadTime: "2.0", Bias: "20.0",
		Period: 200 * time.Millisecond,
	},
}

// GetPreset returns DefaultConfig with the named preset's model and period
// applied, or nil when the preset does not exist.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.ApplyPreset(p)
	return cfg
}

// ApplyPreset overwrites the model parameters and period of cfg.
func (c *Config) ApplyPreset(p Session) {
	c.Session.Gain = p.Gain
	c.Session.TimeConstant = p.TimeConstant
	c.Session.DeadTime = p.DeadTime
	c.Session.Bias = p.Bias
	if p.Period > 0 {
		c.Session.Period = p.Period
		c.Emulator.Period = p.Period.Seconds()
	}
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
