package process

import (
	"math/rand/v2"
)

const (
	noiseLevels = 11
	noiseStep   = 0.01
	// NoiseBound is the largest absolute value Noise.Sample returns.
	NoiseBound = noiseStep * (noiseLevels - 1) / 2
)

// Noise draws measurement noise uniformly from the 11 values
// -0.05, -0.04, ..., +0.05.
type Noise struct {
	rng *rand.Rand
}

// NewNoise returns a noise source. A zero seed draws from a random seed.
func NewNoise(seed uint64) *Noise {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Noise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (n *Noise) Sample() float64 {
	k := n.rng.IntN(noiseLevels)
	return float64(k-noiseLevels/2) * noiseStep
}

// Silent is a noise source that always returns zero.
type Silent struct{}

func (Silent) Sample() float64 { return 0 }
