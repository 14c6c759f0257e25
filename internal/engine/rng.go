package engine

// splitMix64 is the per-interaction random stream. Every stream is seeded
// independently from (global seed, tick, participants), so no RNG state is
// shared across goroutines and draws are reproducible for a given seed.
type splitMix64 struct {
	state uint64
}

func (s *splitMix64) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ z>>30) * 0xbf58476d1ce4e5b9
	z = (z ^ z>>27) * 0x94d049bb133111eb
	return z ^ z>>31
}

// Float64 returns a uniform value in [0, 1).
func (s *splitMix64) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Intn returns a uniform value in [0, n). The modulo bias is at most n/2^64.
func (s *splitMix64) Intn(n int) int {
	return int(s.Uint64() % uint64(n))
}

// Stream domain tags keep the pairing draws and the interaction draws on
// disjoint substreams of the same global seed.
const (
	streamPairing     = 0xa5a5a5a5a5a5a5a5
	streamInteraction = 0x5a5a5a5a5a5a5a5a
)

func mix(seed, a, b, c uint64) uint64 {
	s := splitMix64{state: seed}
	s.state ^= s.Uint64() + a
	s.state ^= s.Uint64() + b
	s.state ^= s.Uint64() + c
	return s.Uint64()
}

// pairingStream seeds the neighbor draw of one agent for one tick.
func pairingStream(seed, tick uint64, agent uint32) splitMix64 {
	return splitMix64{state: mix(seed^streamPairing, tick, uint64(agent), 0)}
}

// interactionStream seeds the action draws of one interaction. The seed is
// derived from the unordered pair, so (A,B) and (B,A) interactions in the
// same tick share a stream seed.
func interactionStream(seed, tick uint64, lo, hi uint32) splitMix64 {
	return splitMix64{state: mix(seed^streamInteraction, tick, uint64(lo), uint64(hi))}
}
