package scavenge

import "fmt"

// ScavengePoint is the durable marker a run targets. Its event number within
// the scavenge-points stream doubles as the monotonic scavenge point id.
type ScavengePoint struct {
	// Position is the log offset of the marker record. Nothing at or past
	// this position is touched by the run.
	Position int64 `json:"position"`
	// EventNumber orders points within the scavenge-points stream (SP-N).
	EventNumber int64 `json:"eventNumber"`
	// EffectiveNowMs is the wall clock captured when the point was written;
	// max-age decisions measure against it.
	EffectiveNowMs int64 `json:"effectiveNowMs"`
	// Threshold is the minimum aggregate chunk weight for a chunk to be
	// rewritten. -1 forces none, 0 rewrites on any positive weight.
	Threshold int64 `json:"threshold"`
}

// UpToPosition returns the exclusive upper bound of the run.
func (sp ScavengePoint) UpToPosition() int64 { return sp.Position }

// AgeCutoffMs returns the newest timestamp a record may carry and still be
// discarded under the given max-age window.
func (sp ScavengePoint) AgeCutoffMs(maxAgeMs int64) int64 {
	return sp.EffectiveNowMs - maxAgeMs
}

func (sp ScavengePoint) String() string {
	return fmt.Sprintf("SP-%d@%d", sp.EventNumber, sp.Position)
}
