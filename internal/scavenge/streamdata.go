package scavenge

import "github.com/rzbill/scour/internal/logstream"

// Weight contributions per discarded record. A chunk is rewritten once its
// summed weight clears the scavenge point's threshold.
const (
	// EventDiscardWeight is deposited per ordinary discarded event.
	EventDiscardWeight = 1.0
	// MetadataReplacementWeight is deposited when a newer metadata event
	// supersedes an older one.
	MetadataReplacementWeight = 2.0
	// TombstoneDiscardWeight is deposited per event discarded under a
	// tombstone.
	TombstoneDiscardWeight = 2.0
)

// OriginalStreamStatus tracks whether a stream still has retention work.
type OriginalStreamStatus string

const (
	// StatusActive streams are picked up by the calculator.
	StatusActive OriginalStreamStatus = "active"
	// StatusSpent streams have no retention left; the cleaner prunes them.
	StatusSpent OriginalStreamStatus = "spent"
	// StatusArchived streams are tombstoned; their discard points are final.
	StatusArchived OriginalStreamStatus = "archived"
)

// MetastreamData is the per-metastream scavenge state: how much of the
// metastream itself is discardable and whether the underlying stream is gone.
type MetastreamData struct {
	OriginalStreamHash uint64       `json:"origHash"`
	DiscardPoint       DiscardPoint `json:"dp"`
	IsTombstoned       bool         `json:"tomb,omitempty"`
	// LastMetadataPosition is the log position of the newest metadata event
	// seen, or -1. A later metadata event supersedes it and makes it
	// discardable.
	LastMetadataPosition int64 `json:"lastPos"`
}

// OriginalStreamData is the per-stream scavenge state retention decisions are
// derived from.
type OriginalStreamData struct {
	Metadata     logstream.StreamMetadata `json:"meta"`
	IsTombstoned bool                     `json:"tomb,omitempty"`
	Status       OriginalStreamStatus     `json:"status"`
	// DiscardPoint is the definite lower bound of kept events.
	DiscardPoint DiscardPoint `json:"dp"`
	// MaybeDiscardPoint is raised optimistically by max-age; execution
	// confirms it against each record's own timestamp. Never below
	// DiscardPoint.
	MaybeDiscardPoint DiscardPoint `json:"maybeDp"`
}

// StreamRecord pairs a handle with its original-stream data during
// enumeration.
type StreamRecord struct {
	Handle StreamHandle
	Data   OriginalStreamData
}

// MetastreamRecord pairs a handle with its metastream data during
// enumeration.
type MetastreamRecord struct {
	Handle StreamHandle
	Data   MetastreamData
}

// ChunkTimeRange is the observed timestamp envelope of a physical chunk.
type ChunkTimeRange struct {
	MinMs int64 `json:"minMs"`
	MaxMs int64 `json:"maxMs"`
}

// Extend widens the range to include ts.
func (r ChunkTimeRange) Extend(ts int64) ChunkTimeRange {
	if r.MinMs == 0 && r.MaxMs == 0 {
		return ChunkTimeRange{MinMs: ts, MaxMs: ts}
	}
	if ts < r.MinMs {
		r.MinMs = ts
	}
	if ts > r.MaxMs {
		r.MaxMs = ts
	}
	return r
}

// ExecutionInfo is the resolved view of one stream the executors consult per
// record or index entry.
type ExecutionInfo struct {
	IsTombstoned      bool
	IsMetastream      bool
	DiscardPoint      DiscardPoint
	MaybeDiscardPoint DiscardPoint
	MaxAgeMs          int64
	HasMaxAge         bool
}
