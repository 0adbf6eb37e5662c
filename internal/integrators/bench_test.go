package integrators

import (
	"testing"

	"github.com/san-kum/fopdtsim/internal/dynamo"
)

func BenchmarkEuler(b *testing.B) {
	integrator := NewEuler()
	dyn := &decay{tau: 623, bias: 13.5, k: 14.5}
	x := dynamo.State{13.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, 0, 0.05)
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	dyn := &decay{tau: 623, bias: 13.5, k: 14.5}
	x := dynamo.State{13.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, 0, 0.05)
	}
}

func BenchmarkIntegrateTick(b *testing.B) {
	integrator := NewRK4()
	dyn := &decay{tau: 623, bias: 13.5, k: 14.5}
	x := dynamo.State{13.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x, _ = Integrate(integrator, dyn, x, 0, 1, DefaultSubsteps)
	}
}
