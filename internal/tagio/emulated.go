package tagio

import (
	"context"
	"sync"
	"time"

	"github.com/san-kum/fopdtsim/internal/control"
)

// EmulatorConfig describes the emulated controller: which tags it owns and
// how it drives CV from SP and the written PV.
type EmulatorConfig struct {
	CVTag     string  `yaml:"cv_tag" json:"cv_tag"`
	SPTag     string  `yaml:"sp_tag" json:"sp_tag"`
	PVTag     string  `yaml:"pv_tag" json:"pv_tag"`
	Setpoint  float64 `yaml:"setpoint" json:"setpoint"`
	InitialCV float64 `yaml:"initial_cv" json:"initial_cv"`
	Manual    bool    `yaml:"manual" json:"manual"`
	Kp        float64 `yaml:"kp" json:"kp"`
	Ki        float64 `yaml:"ki" json:"ki"`
	Kd        float64 `yaml:"kd" json:"kd"`
	OutMin    float64 `yaml:"out_min" json:"out_min"`
	OutMax    float64 `yaml:"out_max" json:"out_max"`
	// Period is the controller's sample time in seconds, used as the PID time base.
	Period float64 `yaml:"period" json:"period"`
}

func DefaultEmulatorConfig() EmulatorConfig {
	return EmulatorConfig{
		CVTag:     "CV",
		SPTag:     "SP",
		PVTag:     "PV",
		Setpoint:  25,
		InitialCV: 0,
		Kp:        0.8,
		Ki:        0.05,
		OutMin:    0,
		OutMax:    100,
		Period:    0.1,
	}
}

type fault struct {
	status string
	count  int // remaining operations; <0 means until cleared
}

// Emulator is an in-process stand-in for a PLC running a single loop.
// Every PV write advances the controller by one sample and updates CV.
type Emulator struct {
	mu         sync.Mutex
	cfg        EmulatorConfig
	ctrl       control.Controller
	tags       map[string]float64
	faults     map[string]*fault
	connected  bool
	address    string
	unit       string
	samples    int
	connectErr error
	closeErr   error
	reads      int
	writes     int
}

func NewEmulator(cfg EmulatorConfig) *Emulator {
	if cfg.Period <= 0 {
		cfg.Period = 0.1
	}

	var ctrl control.Controller
	if cfg.Manual {
		ctrl = control.NewManual(cfg.InitialCV, cfg.Setpoint)
	} else {
		pid := control.NewPID(cfg.Kp, cfg.Ki, cfg.Kd, cfg.Setpoint)
		if cfg.OutMax > cfg.OutMin {
			pid.WithLimits(cfg.OutMin, cfg.OutMax)
		}
		ctrl = pid
	}

	e := &Emulator{
		cfg:    cfg,
		ctrl:   ctrl,
		tags:   make(map[string]float64),
		faults: make(map[string]*fault),
	}
	e.tags[cfg.CVTag] = cfg.InitialCV
	e.tags[cfg.SPTag] = cfg.Setpoint
	e.tags[cfg.PVTag] = 0
	return e
}

func (e *Emulator) Connect(ctx context.Context, address, unit string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connectErr != nil {
		return e.connectErr
	}
	e.connected = true
	e.address = address
	e.unit = unit
	return nil
}

func (e *Emulator) Read(ctx context.Context, tags []string) ([]Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reads++

	out := make([]Value, len(tags))
	for i, tag := range tags {
		out[i] = e.lookup(tag)
	}
	return out, nil
}

func (e *Emulator) lookup(tag string) Value {
	if !e.connected {
		return Failed(StatusOffline)
	}
	if status, ok := e.consumeFault(tag); ok {
		return Failed(status)
	}
	v, ok := e.tags[tag]
	if !ok {
		return Failed(StatusBadTag)
	}
	return Success(v)
}

func (e *Emulator) Write(ctx context.Context, tag string, v float64) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writes++

	if !e.connected {
		return Failed(StatusOffline), nil
	}
	if status, ok := e.consumeFault(tag); ok {
		return Failed(status), nil
	}
	if _, ok := e.tags[tag]; !ok {
		return Failed(StatusBadTag), nil
	}

	e.tags[tag] = v
	switch tag {
	case e.cfg.PVTag:
		e.samples++
		e.tags[e.cfg.CVTag] = e.ctrl.Compute(v, float64(e.samples)*e.cfg.Period)
	case e.cfg.SPTag:
		e.ctrl.SetSetpoint(v)
	}
	return Success(v), nil
}

func (e *Emulator) consumeFault(tag string) (string, bool) {
	f, ok := e.faults[tag]
	if !ok {
		return "", false
	}
	if f.count > 0 {
		f.count--
		if f.count == 0 {
			delete(e.faults, tag)
		}
	}
	return f.status, true
}

func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = false
	return e.closeErr
}

// SetValue overwrites a tag, creating it if needed. Writing the setpoint
// tag also retunes the controller.
func (e *Emulator) SetValue(tag string, v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tags[tag] = v
	switch tag {
	case e.cfg.SPTag:
		e.ctrl.SetSetpoint(v)
	case e.cfg.CVTag:
		// an operator moving the output of a manual loop
		if m, ok := e.ctrl.(*control.Manual); ok {
			m.Output = v
		}
	}
}

// Value returns the current raw value of a tag.
func (e *Emulator) Value(tag string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.tags[tag]
	return v, ok
}

// SetStatus forces every operation on tag to report status until cleared
// with an empty status.
func (e *Emulator) SetStatus(tag, status string) {
	e.InjectFault(tag, status, -1)
}

// InjectFault makes the next count operations on tag report status.
func (e *Emulator) InjectFault(tag, status string, count int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if status == "" || count == 0 {
		delete(e.faults, tag)
		return
	}
	e.faults[tag] = &fault{status: status, count: count}
}

func (e *Emulator) FailConnect(err error) {
	e.mu.Lock()
	e.connectErr = err
	e.mu.Unlock()
}

func (e *Emulator) FailClose(err error) {
	e.mu.Lock()
	e.closeErr = err
	e.mu.Unlock()
}

func (e *Emulator) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Endpoint returns the address and unit from the last Connect.
func (e *Emulator) Endpoint() (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.address, e.unit
}

// Counts returns the number of Read and Write calls served.
func (e *Emulator) Counts() (reads, writes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reads, e.writes
}
