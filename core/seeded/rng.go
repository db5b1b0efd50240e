// Package seeded provides the deterministic pseudo-random stream that drives
// both mix composition and event scheduling. Output is reproducible
// bit-for-bit across platforms for a given seed string.
package seeded

const defaultSeed = "default"

// Hash32 is 32-bit FNV-1a over the raw bytes of s.
func Hash32(s string) uint32 {
	h := uint32(0x811c9dc5)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 0x01000193
	}
	return h
}

// Stream yields floats in [0,1) from a mulberry32 generator.
// The zero value is not usable; construct with New or ForTrack.
type Stream struct {
	state uint32
}

// New derives a stream from an arbitrary seed key. Empty keys are normalized
// to a fixed default so the generator stays total over its input domain.
func New(key string) *Stream {
	if key == "" {
		key = defaultSeed
	}
	return &Stream{state: Hash32(key)}
}

// ForTrack derives an independent per-track sub-stream. Using a composite key
// keeps each track's schedule reproducible without tracks interfering with
// each other's draws.
func ForTrack(seed, trackID string) *Stream {
	if seed == "" {
		seed = defaultSeed
	}
	return New(seed + ":" + trackID)
}

// Float returns the next value in [0,1). All arithmetic wraps at 32 bits.
func (s *Stream) Float() float64 {
	s.state += 0x6d2b79f5
	t := s.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296
}

// Between returns a value in [min, max).
func (s *Stream) Between(min, max float64) float64 {
	return min + s.Float()*(max-min)
}

// Chance consumes one draw and reports whether it fell below p.
func (s *Stream) Chance(p float64) bool {
	return s.Float() < p
}

// PickIndex consumes one draw and returns an index in [0, n).
func (s *Stream) PickIndex(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(s.Float() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
