package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/fopdtsim/internal/config"
	"github.com/san-kum/fopdtsim/internal/logging"
)

// sessionFlags override the loaded configuration; only flags the user
// actually set are applied.
type sessionFlags struct {
	backend    string
	address    string
	slot       string
	spTag      string
	pvTag      string
	cvTag      string
	gain       string
	tau        string
	dead       string
	bias       string
	period     time.Duration
	timeout    time.Duration
	grace      time.Duration
	integrator string
	seed       uint64
	noNoise    bool
	manualCV   float64
	setpoint   float64
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	d := config.DefaultConfig()
	fs := cmd.Flags()
	fs.StringVar(&f.backend, "backend", d.Backend, "tag backend (emulated, mqtt)")
	fs.StringVar(&f.address, "address", d.Session.Address, "controller address (host[:port])")
	fs.StringVar(&f.slot, "slot", d.Session.Slot, "controller slot / unit (0..255)")
	fs.StringVar(&f.spTag, "sp-tag", d.Session.SPTag, "setpoint tag")
	fs.StringVar(&f.pvTag, "pv-tag", d.Session.PVTag, "process value tag")
	fs.StringVar(&f.cvTag, "cv-tag", d.Session.CVTag, "control variable tag")
	fs.StringVar(&f.gain, "gain", d.Session.Gain, "process gain")
	fs.StringVar(&f.tau, "tau", d.Session.TimeConstant, "time constant in seconds")
	fs.StringVar(&f.dead, "dead-time", d.Session.DeadTime, "dead time in seconds")
	fs.StringVar(&f.bias, "bias", d.Session.Bias, "PV bias")
	fs.DurationVar(&f.period, "period", d.Session.Period, "scan period")
	fs.DurationVar(&f.timeout, "timeout", d.Session.Timeout, "tag I/O timeout")
	fs.DurationVar(&f.grace, "grace", d.Session.Grace, "how long stop waits for an in-flight tick")
	fs.StringVar(&f.integrator, "integrator", d.Session.Integrator, "integrator")
	fs.Uint64Var(&f.seed, "seed", 0, "noise seed (0 picks one from the clock)")
	fs.BoolVar(&f.noNoise, "no-noise", false, "disable measurement noise")
	fs.Float64Var(&f.manualCV, "manual-cv", 0, "emulated backend: hold CV at this value instead of running the PID")
	fs.Float64Var(&f.setpoint, "setpoint", d.Emulator.Setpoint, "emulated backend: initial setpoint")
}

func (f *sessionFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	s := &cfg.Session
	set("backend", func() { cfg.Backend = f.backend })
	set("address", func() { s.Address = f.address })
	set("slot", func() { s.Slot = f.slot })
	set("sp-tag", func() { s.SPTag = f.spTag; cfg.Emulator.SPTag = f.spTag })
	set("pv-tag", func() { s.PVTag = f.pvTag; cfg.Emulator.PVTag = f.pvTag })
	set("cv-tag", func() { s.CVTag = f.cvTag; cfg.Emulator.CVTag = f.cvTag })
	set("gain", func() { s.Gain = f.gain })
	set("tau", func() { s.TimeConstant = f.tau })
	set("dead-time", func() { s.DeadTime = f.dead })
	set("bias", func() { s.Bias = f.bias })
	set("period", func() { s.Period = f.period })
	set("timeout", func() { s.Timeout = f.timeout })
	set("grace", func() { s.Grace = f.grace })
	set("integrator", func() { s.Integrator = f.integrator })
	set("seed", func() { s.Seed = f.seed })
	set("no-noise", func() { s.NoNoise = f.noNoise })
	set("manual-cv", func() { cfg.Emulator.Manual = true; cfg.Emulator.InitialCV = f.manualCV })
	set("setpoint", func() { cfg.Emulator.Setpoint = f.setpoint })
}

// loadConfig layers defaults, the config file, the preset, the environment
// and finally flags.
func loadConfig(cmd *cobra.Command, f *sessionFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if preset != "" {
		p, ok := config.Presets[preset]
		if !ok {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		cfg.ApplyPreset(p)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if f != nil {
		f.apply(cmd, cfg)
	}
	if cmd.Flags().Changed("data") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	return cfg, nil
}

// newLogger returns the process logger and a func closing its log file.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var w io.Writer
	closeFn := func() {}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}
	log, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Writer:  w,
		Journal: cfg.Log.Journal,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	slog.SetDefault(log)
	return log, closeFn, nil
}
