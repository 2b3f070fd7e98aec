package logstream

import "github.com/spaolacci/murmur3"

// Hash seeds for the two 32-bit halves of a stream-name hash. The composed
// 64-bit value stays stable across index format versions that address streams
// by either half.
const (
	hashSeedHigh = 0x0
	hashSeedLow  = 0x5bd1e995
)

// Hasher64 hashes stream names to the 64-bit values scavenge state and the
// secondary index are keyed by. The value is composed from two independently
// seeded 32-bit murmur3 halves.
type Hasher64 struct{}

// Hash returns the composed 64-bit hash of a stream name.
func (Hasher64) Hash(streamID string) uint64 {
	b := []byte(streamID)
	hi := murmur3.Sum32WithSeed(b, hashSeedHigh)
	lo := murmur3.Sum32WithSeed(b, hashSeedLow)
	return uint64(hi)<<32 | uint64(lo)
}
