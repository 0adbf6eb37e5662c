// Package control provides the controllers the emulated tag backend runs
// in place of a real PLC loop.
//
//   - [PID]: positional Proportional-Integral-Derivative controller
//   - [Manual]: holds a fixed output (open loop)
//
// # Usage
//
//	pid := control.NewPID(0.8, 0.05, 0.0, 25.0) // Kp, Ki, Kd, setpoint
//	cv := pid.Compute(pv, t)
//
// Both controllers support live tuning through GetParams/SetParam.
package control

// Controller computes a manipulated value from the latest process value.
type Controller interface {
	Compute(pv, t float64) float64
	Setpoint() float64
	SetSetpoint(sp float64)
}
