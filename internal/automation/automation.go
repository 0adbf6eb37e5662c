// Package automation runs scripted sessions offline against the emulated
// controller: setpoint and CV changes, injected tag faults, parameter
// sweeps and noise trials. Nothing here waits on the wall clock.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/metrics"
	"github.com/san-kum/fopdtsim/internal/process"
	"github.com/san-kum/fopdtsim/internal/sim"
	"github.com/san-kum/fopdtsim/internal/tagio"
)

// Scenario is a scripted run. Model timings are in seconds and converted
// with Period.
type Scenario struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Period      time.Duration        `yaml:"period"`
	Ticks       int                  `yaml:"ticks"`
	Gain        float64              `yaml:"gain"`
	TimeConst   float64              `yaml:"time_constant"`
	DeadTime    float64              `yaml:"dead_time"`
	Bias        float64              `yaml:"bias"`
	Seed        uint64               `yaml:"seed"`
	Noise       bool                 `yaml:"noise"`
	Controller  tagio.EmulatorConfig `yaml:"controller"`
	Events      []Event              `yaml:"events"`
}

// Event fires before the scan with index At.
type Event struct {
	At       int      `yaml:"at"`
	Setpoint *float64 `yaml:"setpoint,omitempty"`
	CV       *float64 `yaml:"cv,omitempty"`
	Fault    *Fault   `yaml:"fault,omitempty"`
}

type Fault struct {
	Tag    string `yaml:"tag"`
	Status string `yaml:"status"`
	// Count is the number of failed operations; negative fails until the
	// end of the run.
	Count int `yaml:"count"`
}

// Result is the outcome of one scenario run.
type Result struct {
	Name     string
	Params   process.Params
	Snapshot *sim.Snapshot
	Outcomes []sim.Outcome
	Summary  metrics.Summary
}

// Failures counts outcomes that carried an error.
func (r Result) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, sc.Validate()
}

func (sc *Scenario) Validate() error {
	if sc.Ticks <= 0 {
		return &dynamo.ConfigError{Field: "ticks", Reason: "must be positive"}
	}
	for i, ev := range sc.Events {
		if ev.At < 0 || ev.At >= sc.Ticks {
			return &dynamo.ConfigError{Field: fmt.Sprintf("events[%d].at", i), Reason: fmt.Sprintf("%d outside 0..%d", ev.At, sc.Ticks-1)}
		}
		if ev.Fault != nil && ev.Fault.Status == "" {
			return &dynamo.ConfigError{Field: fmt.Sprintf("events[%d].fault.status", i), Reason: "must not be empty"}
		}
	}
	return nil
}

func (sc *Scenario) period() time.Duration {
	if sc.Period <= 0 {
		return 100 * time.Millisecond
	}
	return sc.Period
}

// EmulatorConfig is the controller config with default tags filled in.
func (sc *Scenario) EmulatorConfig() tagio.EmulatorConfig {
	c := sc.Controller
	d := tagio.DefaultEmulatorConfig()
	if c.CVTag == "" {
		c.CVTag = d.CVTag
	}
	if c.SPTag == "" {
		c.SPTag = d.SPTag
	}
	if c.PVTag == "" {
		c.PVTag = d.PVTag
	}
	c.Period = sc.period().Seconds()
	return c
}

// Params converts the scenario model to ticks.
func (sc *Scenario) Params() (process.Params, error) {
	return process.FromSeconds(sc.Gain, sc.TimeConst, sc.DeadTime, sc.Bias, sc.period())
}

// RunScenario plays sc against a fresh emulator.
func RunScenario(ctx context.Context, sc *Scenario, log *slog.Logger) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	params, err := sc.Params()
	if err != nil {
		return nil, err
	}
	return run(ctx, sc, params, log)
}

func run(ctx context.Context, sc *Scenario, params process.Params, log *slog.Logger) (*Result, error) {
	if log == nil {
		log = slog.Default()
	}
	ctrl := sc.EmulatorConfig()
	emu := tagio.NewEmulator(ctrl)
	if err := emu.Connect(ctx, "127.0.0.1", "0", time.Second); err != nil {
		return nil, err
	}
	defer emu.Close()

	var noise sim.NoiseSource = process.Silent{}
	if sc.Noise {
		noise = process.NewNoise(sc.Seed)
	}
	loop := sim.NewLoop(emu, sim.Tags{SP: ctrl.SPTag, PV: ctrl.PVTag, CV: ctrl.CVTag}, params,
		sim.WithNoise(noise), sim.WithLoopLogger(log))

	events := append([]Event(nil), sc.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })

	res := &Result{Name: sc.Name, Params: params, Outcomes: make([]sim.Outcome, 0, sc.Ticks)}
	done := 0
	for _, ev := range events {
		out, err := loop.Run(ctx, ev.At-done)
		res.Outcomes = append(res.Outcomes, out...)
		done = ev.At
		if err != nil {
			return res, err
		}
		apply(emu, ctrl, ev)
		log.Debug("scenario event", "at", ev.At)
	}
	out, err := loop.Run(ctx, sc.Ticks-done)
	res.Outcomes = append(res.Outcomes, out...)

	res.Snapshot = loop.Snapshot()
	res.Summary = metrics.Summarize(res.Snapshot.SP, res.Snapshot.PV, res.Snapshot.CV, sc.period().Seconds())
	return res, err
}

func apply(emu *tagio.Emulator, ctrl tagio.EmulatorConfig, ev Event) {
	if ev.Setpoint != nil {
		emu.SetValue(ctrl.SPTag, *ev.Setpoint)
	}
	if ev.CV != nil {
		emu.SetValue(ctrl.CVTag, *ev.CV)
	}
	if ev.Fault != nil {
		emu.InjectFault(ev.Fault.Tag, ev.Fault.Status, ev.Fault.Count)
	}
}

// Sweep varies one model parameter over Values, in seconds for the
// time_constant and dead_time parameters.
type Sweep struct {
	Param  string
	Values []float64
}

type SweepResult struct {
	Value   float64
	Summary metrics.Summary
	Err     error
}

var ErrUnknownParam = errors.New("automation: unknown sweep parameter")

// RunSweep runs sc once per value. Runs are independent and spread over
// the CPUs.
func RunSweep(ctx context.Context, sc *Scenario, sw Sweep, log *slog.Logger) ([]SweepResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	switch sw.Param {
	case "gain", "time_constant", "dead_time", "bias":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownParam, sw.Param)
	}

	results := make([]SweepResult, len(sw.Values))
	dynamo.ParallelFor(len(sw.Values), 1, func(start, end int) {
		for i := start; i < end; i++ {
			variant := *sc
			v := sw.Values[i]
			switch sw.Param {
			case "gain":
				variant.Gain = v
			case "time_constant":
				variant.TimeConst = v
			case "dead_time":
				variant.DeadTime = v
			case "bias":
				variant.Bias = v
			}
			results[i].Value = v
			res, err := RunScenario(ctx, &variant, log)
			if err != nil {
				results[i].Err = err
				continue
			}
			results[i].Summary = res.Summary
		}
	})
	return results, ctx.Err()
}

// TrialStats summarizes repeated noisy runs.
type TrialStats struct {
	Trials  int
	IAEMean float64
	IAEStd  float64
	PVStd   float64
}

// RunTrials repeats sc with noise on and seeds seed, seed+1, ... and
// reports the spread of the integrated error.
func RunTrials(ctx context.Context, sc *Scenario, trials int, seed uint64, log *slog.Logger) (TrialStats, error) {
	if trials < 2 {
		return TrialStats{}, errors.New("automation: need at least two trials")
	}
	iae := make([]float64, 0, trials)
	pvStd := make([]float64, 0, trials)
	for i := 0; i < trials; i++ {
		variant := *sc
		variant.Noise = true
		variant.Seed = seed + uint64(i) + 1
		res, err := RunScenario(ctx, &variant, log)
		if err != nil {
			return TrialStats{}, fmt.Errorf("trial %d: %w", i, err)
		}
		iae = append(iae, res.Summary.IAE)
		pvStd = append(pvStd, res.Summary.PVStd)
	}
	mean, std := stat.MeanStdDev(iae, nil)
	return TrialStats{
		Trials:  trials,
		IAEMean: mean,
		IAEStd:  std,
		PVStd:   stat.Mean(pvStd, nil),
	}, nil
}
