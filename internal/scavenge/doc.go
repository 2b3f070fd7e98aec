// Package scavenge implements the four-stage pipeline that reclaims space in
// a chunked, append-only transaction log.
//
// A run targets a scavenge point and proceeds through strictly sequential
// stages, each reading and mutating the durable scavenge state inside short
// transactions:
//
//	Accumulator    sweeps the log up to the scavenge point and records
//	               per-stream retention facts (metadata, tombstones,
//	               chunk timestamp ranges, hash collisions).
//	Calculator     turns retention facts into per-stream discard points and
//	               per-chunk weights.
//	ChunkExecutor  rewrites chunks whose weight exceeds the threshold,
//	               keeping only non-discarded records.
//	IndexExecutor  drops secondary-index entries below discard points.
//	Cleaner        prunes fully-executed per-stream state.
//
// Every stage commits a checkpoint with its sub-progress; a new run resumes
// from whatever the checkpoint names and never redoes completed work. Chunk
// files and index tables are reached only through the ports in ports.go; the
// durable state lives in the state subpackage.
package scavenge
