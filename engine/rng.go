package engine

import "math/rand"

// RNG wraps math/rand.Rand with deterministic position tracking.
// Every call consumes exactly one source value, so Position alone is enough
// to restore the stream.
type RNG struct {
	seed int64
	src  *rand.Rand
	pos  int64
}

// NewRNG creates a new deterministic RNG from a seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		seed: seed,
		src:  rand.New(rand.NewSource(seed)),
	}
}

// RandomFloat returns a uniform value in [lo, hi).
func (r *RNG) RandomFloat(lo, hi float64) float64 {
	r.pos++
	f := float64(r.src.Int63()>>10) / (1 << 53)
	return lo + f*(hi-lo)
}

// RandomInt returns a uniform integer in [lo, hi].
func (r *RNG) RandomInt(lo, hi int) int {
	r.pos++
	v := r.src.Int63()
	if hi <= lo {
		return lo
	}
	return lo + int(v%int64(hi-lo+1))
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Position returns the number of RNG calls made since creation.
func (r *RNG) Position() int64 {
	return r.pos
}

// RestoreRNG creates an RNG and advances it to the given position.
// This reproduces the exact RNG state for save/load.
func RestoreRNG(seed int64, position int64) *RNG {
	rng := NewRNG(seed)
	for i := int64(0); i < position; i++ {
		rng.src.Int63()
	}
	rng.pos = position
	return rng
}
