package logstream

import "strings"

// Well-known stream names.
const (
	// MetastreamPrefix marks the companion stream carrying retention metadata.
	MetastreamPrefix = "$$"
	// SystemStreamPrefix marks streams owned by the engine.
	SystemStreamPrefix = "$"
	// ScavengePointsStream accumulates scavenge point markers.
	ScavengePointsStream = "$scavenges"
)

// IsMetastream reports whether id names a metastream ($$X).
func IsMetastream(id string) bool {
	return strings.HasPrefix(id, MetastreamPrefix)
}

// IsSystemStream reports whether id names an engine-owned stream. Metastreams
// of user streams count as system streams.
func IsSystemStream(id string) bool {
	return strings.HasPrefix(id, SystemStreamPrefix)
}

// MetastreamOf returns the metastream name for an original stream.
func MetastreamOf(id string) string {
	return MetastreamPrefix + id
}

// OriginalStreamOf returns the original stream name for a metastream.
// Passing a non-metastream id returns it unchanged.
func OriginalStreamOf(metaID string) string {
	return strings.TrimPrefix(metaID, MetastreamPrefix)
}

// Naming is the concrete metastream lookup handed to scavenge components.
type Naming struct{}

func (Naming) IsMetastream(id string) bool       { return IsMetastream(id) }
func (Naming) MetastreamOf(id string) string     { return MetastreamOf(id) }
func (Naming) OriginalStreamOf(id string) string { return OriginalStreamOf(id) }
