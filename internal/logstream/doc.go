// Package logstream models the pieces of the transaction log the scavenger
// cares about: stream naming rules (system streams, metastreams, the
// scavenge-points stream), the retention metadata carried by metastream
// events, the prepare/system record shapes streamed out of chunks, and the
// 64-bit stream-name hash.
//
// The log itself (chunk files, appends, replication) lives behind ports in
// internal/scavenge; this package only fixes the vocabulary both sides share.
package logstream
