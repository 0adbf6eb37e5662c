package integrators

import "github.com/san-kum/fopdtsim/internal/dynamo"

var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = [4]float64{1, 2, 2, 1}
)

// RK4 is the classic fourth-order Runge-Kutta method and the default
// integrator. Within a step the FOPDT right-hand side is linear in PV with
// the delayed input held, so twenty substeps per tick track the analytic
// lag to better than 1e-9, well below the noise step on PV.
type RK4 struct {
	k     [4]dynamo.State
	stage dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

func (r *RK4) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)
	if n == 1 {
		return dynamo.State{r.scalar(sys, x[0], t, dt)}
	}

	for s, c := range rk4Nodes {
		for i := 0; i < n; i++ {
			r.stage[i] = x[i]
			if s > 0 {
				r.stage[i] += c * dt * r.k[s-1][i]
			}
		}
		copy(r.k[s], sys.Derive(r.stage, t+c*dt))
	}

	next := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for s, w := range rk4Weights {
			sum += w * r.k[s][i]
		}
		next[i] = x[i] + dt/6*sum
	}
	return next
}

// scalar is Step for single-state systems such as the FOPDT model; it runs
// every stage through one reused element instead of the slice loops.
func (r *RK4) scalar(sys dynamo.System, x, t, dt float64) float64 {
	eval := func(v, at float64) float64 {
		r.stage[0] = v
		return sys.Derive(r.stage, at)[0]
	}
	half := t + 0.5*dt
	k1 := eval(x, t)
	k2 := eval(x+0.5*dt*k1, half)
	k3 := eval(x+0.5*dt*k2, half)
	k4 := eval(x+dt*k3, t+dt)
	return x + dt/6*(k1+2*k2+2*k3+k4)
}
