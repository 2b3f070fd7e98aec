package state

import (
	"encoding/binary"
	"math"
)

// Key prefixes for scavenge state tables.
var (
	keyCheckpoint    = []byte("sc/cp")
	collPrefix       = []byte("sc/coll/")
	collHashPrefix   = []byte("sc/collh/")
	hashPrefix       = []byte("sc/hash/")
	metaHashPrefix   = []byte("sc/meta/h/")
	metaIDPrefix     = []byte("sc/meta/i/")
	origHashPrefix   = []byte("sc/orig/h/")
	origIDPrefix     = []byte("sc/orig/i/")
	chunkRangePrefix = []byte("sc/ctr/")
	chunkWtPrefix    = []byte("sc/cw/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func hashedKey(prefix []byte, h uint64) []byte {
	k := make([]byte, 0, len(prefix)+8)
	k = append(k, prefix...)
	return appendBE8(k, h)
}

func namedKey(prefix []byte, id string) []byte {
	k := make([]byte, 0, len(prefix)+len(id))
	k = append(k, prefix...)
	return append(k, id...)
}

func chunkKey(prefix []byte, chunk int) []byte {
	k := make([]byte, 0, len(prefix)+4)
	k = append(k, prefix...)
	return appendBE4(k, uint32(chunk))
}

// keyRange builds [prefix, prefix+0xff) scan bounds.
func keyRange(prefix []byte) (lo, hi []byte) {
	lo = append([]byte(nil), prefix...)
	hi = append(append([]byte(nil), prefix...), 0xff)
	return lo, hi
}

// hashFromKey extracts the big-endian hash suffix of a hash-side key.
func hashFromKey(prefix, key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(prefix):])
}

// nameFromKey extracts the stream id suffix of an id-side key.
func nameFromKey(prefix, key []byte) string {
	return string(key[len(prefix):])
}

// chunkFromKey extracts the chunk number suffix of a chunk key.
func chunkFromKey(prefix, key []byte) int {
	return int(binary.BigEndian.Uint32(key[len(prefix):]))
}

func encodeWeight(w float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], floatBits(w))
	return b[:]
}

func decodeWeight(b []byte) float64 {
	if len(b) < 8 {
		return 0
	}
	return floatFromBits(binary.BigEndian.Uint64(b[:8]))
}

func floatBits(w float64) uint64     { return math.Float64bits(w) }
func floatFromBits(u uint64) float64 { return math.Float64frombits(u) }

