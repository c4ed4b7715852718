package allocator

import "math"

// Seeded hashing and shuffling.
//
// Every tie-break and shuffle in this package derives from the run seed so
// that the same seed over the same inputs produces the same assignments.
// The hash is a 32-bit polynomial rolling hash (h = h*31 + b) with an
// avalanche finaliser; the shuffle is Fisher-Yates driven by a linear
// congruential generator (state = state*1103515245 + 12345). Both rely on
// uint32 wrap-around.

const fnvOffset uint32 = 2166136261

// seedBase folds a 64-bit run seed into the 32-bit hash state
func seedBase(seed int64) uint32 {
	return uint32(seed) ^ uint32(seed>>32) ^ fnvOffset
}

// seededHash hashes parts under the given seed
func seededHash(seed uint32, parts ...string) uint32 {
	h := seed
	for i, part := range parts {
		if i > 0 {
			h = h*31 + '|'
		}
		for j := 0; j < len(part); j++ {
			h = h*31 + uint32(part[j])
		}
	}
	h ^= h >> 16
	h *= 0x45d9f3b
	h ^= h >> 16
	return h
}

// lcg is a deterministic pseudo-random source
type lcg struct {
	state uint32
}

func newLCG(seed uint32) *lcg {
	return &lcg{state: seed}
}

func (l *lcg) next() uint32 {
	l.state = l.state*1103515245 + 12345
	return l.state
}

// intn returns a value in [0, n)
func (l *lcg) intn(n int) int {
	if n <= 0 {
		return 0
	}
	// high bits of an LCG are better distributed than low bits
	return int((l.next() >> 8) % uint32(n))
}

// float returns a value in [0, 1)
func (l *lcg) float() float64 {
	return float64(l.next()>>8) / float64(1<<24)
}

// shuffle permutes items in place
func shuffle[T any](items []T, rng *lcg) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// metropolis reports whether a worse neighbour is accepted at the given temperature
func metropolis(delta, temperature float64, rng *lcg) bool {
	if delta <= 0 {
		return true
	}
	if temperature <= 0 {
		return false
	}
	return rng.float() < math.Exp(-delta/temperature)
}
