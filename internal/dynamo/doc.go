// Package dynamo provides the primitives shared by the process model and
// the simulation loop.
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, t))
//   - [Integrator]: numerical integrator interface
//
// It also defines the error taxonomy used across a simulation session:
// [ErrConfiguration], [ErrReadFailure], [ErrWriteFailure], [ErrNumeric]
// and [ErrStop]. Typed errors ([TagError], [ConfigError], [TickError],
// [SimError]) match their class with errors.Is.
//
// # Example
//
//	model := process.New(params, cv)
//	pv, err := model.Advance(bias, 0, 1)
//	if errors.Is(err, dynamo.ErrNumeric) {
//		// degenerate parameters
//	}
package dynamo
