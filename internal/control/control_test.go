package control

import (
	"testing"
)

func TestPIDSign(t *testing.T) {
	ctrl := NewPID(10.0, 0.1, 5.0, 0.0)
	u := ctrl.Compute(1.0, 0.0)
	if u >= 0 {
		t.Error("PID should output negative control for positive error")
	}
}

func TestPIDIntegralRemovesOffset(t *testing.T) {
	ctrl := NewPID(0.0, 1.0, 0.0, 2.0)
	ctrl.Compute(0, 0)
	u := 0.0
	for i := 1; i <= 10; i++ {
		u = ctrl.Compute(0, float64(i))
	}
	// error 2 integrated over 10s
	if u != 20 {
		t.Errorf("expected integral action 20, got %f", u)
	}
}

func TestPIDLimitsAndWindup(t *testing.T) {
	ctrl := NewPID(1.0, 1.0, 0.0, 100.0).WithLimits(0, 10)
	ctrl.Compute(0, 0)
	for i := 1; i <= 50; i++ {
		if u := ctrl.Compute(0, float64(i)); u != 10 {
			t.Fatalf("expected output clamped to 10, got %f", u)
		}
	}
	// after reaching the setpoint the output must come off the limit quickly
	// because the integral did not wind up while saturated
	u := ctrl.Compute(100, 51)
	if u >= 10 {
		t.Errorf("integral wound up: output %f", u)
	}
}

func TestPIDParams(t *testing.T) {
	ctrl := NewPID(1, 2, 3, 4)
	ctrl.SetParam("Kp", 5)
	ctrl.SetSetpoint(7)
	params := ctrl.GetParams()
	if params["Kp"] != 5 || params["Target"] != 7 {
		t.Errorf("unexpected params %v", params)
	}
	ctrl.Reset()
	if !ctrl.first {
		t.Error("Reset should re-arm first sample")
	}
}

func TestManual(t *testing.T) {
	var c Controller = NewManual(10, 25)
	if c.Compute(999, 1) != 10 {
		t.Error("manual output must ignore PV")
	}
	if c.Setpoint() != 25 {
		t.Error("unexpected setpoint")
	}
}
