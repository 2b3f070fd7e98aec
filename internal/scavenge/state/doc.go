// Package state persists scavenge state in Pebble.
//
// # Keyspace
//
// All keys live under the "sc/" prefix, lexicographically ordered for range
// scans:
//
//   - sc/cp                  checkpoint row (single row)
//   - sc/coll/{id}           collision set member
//   - sc/collh/{hash_be8}    colliding-hash marker
//   - sc/hash/{hash_be8}     hash -> first registrant stream name
//   - sc/meta/h/{hash_be8}   metastream data, non-colliding side
//   - sc/meta/i/{id}         metastream data, colliding side
//   - sc/orig/h/{hash_be8}   original-stream data, non-colliding side
//   - sc/orig/i/{id}         original-stream data, colliding side
//   - sc/ctr/{chunk_be4}     chunk timestamp range
//   - sc/cw/{chunk_be4}      chunk weight (float64 bits, big-endian)
//
// Values are JSON except chunk weights, the raw stream names of the hash
// rows, and the empty values of the collision markers. Each map is
// collision-aware: a
// stream's row sits on the hash side while its hash is unique and moves to
// the id side the moment a collision is detected; reads and enumerations
// merge both sides.
//
// # Transactions
//
// Every mutation happens inside a transaction backed by an indexed Pebble
// batch, so a stage reads its own pending writes. Commit persists the
// mutations and the stage checkpoint atomically; rollback leaves nothing
// visible.
package state
