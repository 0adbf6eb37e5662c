package integrators

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/fopdtsim/internal/dynamo"
)

const (
	// DefaultSubsteps is the number of fixed steps taken across one scan
	// tick by Integrate when the caller passes zero.
	DefaultSubsteps = 20

	minAdaptiveDt = 1e-9
	maxRejections = 64
)

// ByName resolves an integrator by its configuration name.
func ByName(name string) (dynamo.Integrator, error) {
	switch name {
	case "", "rk4":
		return NewRK4(), nil
	case "rk45":
		return NewRK45(), nil
	case "euler":
		return NewEuler(), nil
	default:
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
}

// Names lists the integrators ByName understands.
func Names() []string {
	return []string{"rk4", "rk45", "euler"}
}

// Integrate advances x0 from t0 to t1 in equal fixed steps. Adaptive
// integrators are driven through IntegrateAdaptive instead.
func Integrate(integ dynamo.Integrator, sys dynamo.System, x0 dynamo.State, t0, t1 float64, substeps int) (dynamo.State, error) {
	if t1 < t0 {
		return nil, fmt.Errorf("integrate [%g, %g]: %w", t0, t1, dynamo.ErrNumeric)
	}
	if rk45, ok := integ.(*RK45); ok {
		return IntegrateAdaptive(rk45, sys, x0, t0, t1, 1e-8)
	}
	if substeps <= 0 {
		substeps = DefaultSubsteps
	}

	bounded, _ := sys.(dynamo.StepBounded)
	x := x0.Clone()
	dt := (t1 - t0) / float64(substeps)
	for i := 0; i < substeps; i++ {
		t := t0 + float64(i)*dt
		if bounded != nil {
			bounded.BeginStep(t, dt)
		}
		x = integ.Step(sys, x, t, dt)
		if !x.IsValid() {
			return nil, dynamo.SimError{Time: t + dt, Step: i, Message: "invalid state (NaN/Inf)"}
		}
	}
	return x, nil
}

// IntegrateAdaptive advances x0 from t0 to t1 with embedded error control,
// clamping the final step so it lands on t1 exactly.
func IntegrateAdaptive(rk45 *RK45, sys dynamo.System, x0 dynamo.State, t0, t1, tol float64) (dynamo.State, error) {
	bounded, _ := sys.(dynamo.StepBounded)
	x := x0.Clone()
	t := t0
	dt := t1 - t0
	rejections := 0
	step := 0

	for t < t1 {
		if t+dt > t1 {
			dt = t1 - t
		}
		if bounded != nil {
			bounded.BeginStep(t, dt)
		}
		xNew, dtNew, err := rk45.StepAdaptive(sys, x, t, dt, tol)
		if errors.Is(err, ErrStepRejected) {
			rejections++
			if dtNew < minAdaptiveDt || rejections > maxRejections {
				return nil, fmt.Errorf("integrate at t=%.6f: %w: %w", t, dynamo.ErrNumeric, dynamo.ErrStepTooSmall)
			}
			dt = dtNew
			continue
		}
		if err != nil {
			return nil, err
		}
		if !xNew.IsValid() {
			return nil, dynamo.SimError{Time: t + dt, Step: step, Message: "invalid state (NaN/Inf)"}
		}

		x = xNew
		t += dt
		step++
		rejections = 0
		if math.IsInf(dtNew, 0) || dtNew <= 0 {
			dtNew = t1 - t
		}
		dt = dtNew
		if t1-t < minAdaptiveDt {
			break
		}
	}
	return x, nil
}
