package scavenge

import (
	"encoding/json"
	"fmt"
)

// Stage names the pipeline stage a checkpoint belongs to.
type Stage string

const (
	StageNone            Stage = ""
	StageAccumulating    Stage = "accumulating"
	StageCalculating     Stage = "calculating"
	StageExecutingChunks Stage = "executing-chunks"
	StageMergingChunks   Stage = "merging-chunks"
	StageExecutingIndex  Stage = "executing-index"
	StageCleaning        Stage = "cleaning"
	StageDone            Stage = "done"
)

// Checkpoint records how far a run has progressed. It is the single durable
// row resumption reads at startup: the stage, the scavenge point the run
// targets, and stage-specific sub-progress.
//
// Transitions are one-way within a run:
//
//	none → accumulating → calculating → executing-chunks → merging-chunks
//	     → executing-index → cleaning → done
type Checkpoint struct {
	Stage Stage          `json:"stage"`
	Point *ScavengePoint `json:"scavengePoint,omitempty"`

	// DoneChunk is the last fully processed chunk number while accumulating
	// or executing chunks. Nil means the stage has not completed a chunk yet.
	DoneChunk *int `json:"doneChunk,omitempty"`
	// LastHandle is the last fully calculated stream while calculating. Nil
	// means the stage has not completed a stream batch yet.
	LastHandle *StreamHandle `json:"lastHandle,omitempty"`
}

// CheckpointNone is the state before any run.
var CheckpointNone = Checkpoint{Stage: StageNone}

// Accumulating builds the per-chunk accumulator checkpoint.
func Accumulating(sp ScavengePoint, doneChunk *int) Checkpoint {
	return Checkpoint{Stage: StageAccumulating, Point: &sp, DoneChunk: doneChunk}
}

// Calculating builds the per-stream calculator checkpoint.
func Calculating(sp ScavengePoint, lastHandle *StreamHandle) Checkpoint {
	return Checkpoint{Stage: StageCalculating, Point: &sp, LastHandle: lastHandle}
}

// ExecutingChunks builds the per-chunk executor checkpoint.
func ExecutingChunks(sp ScavengePoint, doneChunk *int) Checkpoint {
	return Checkpoint{Stage: StageExecutingChunks, Point: &sp, DoneChunk: doneChunk}
}

// MergingChunks builds the merge-stage checkpoint.
func MergingChunks(sp ScavengePoint) Checkpoint {
	return Checkpoint{Stage: StageMergingChunks, Point: &sp}
}

// ExecutingIndex builds the index-stage checkpoint.
func ExecutingIndex(sp ScavengePoint) Checkpoint {
	return Checkpoint{Stage: StageExecutingIndex, Point: &sp}
}

// Cleaning builds the cleaner checkpoint.
func Cleaning(sp ScavengePoint) Checkpoint {
	return Checkpoint{Stage: StageCleaning, Point: &sp}
}

// Done marks the scavenge point fully executed.
func Done(sp ScavengePoint) Checkpoint {
	return Checkpoint{Stage: StageDone, Point: &sp}
}

// IsNone reports whether no run has ever progressed.
func (c Checkpoint) IsNone() bool { return c.Stage == StageNone }

// IsDone reports whether the recorded run completed.
func (c Checkpoint) IsDone() bool { return c.Stage == StageDone }

// InProgress reports whether a run was interrupted mid-stage.
func (c Checkpoint) InProgress() bool { return !c.IsNone() && !c.IsDone() }

func (c Checkpoint) String() string {
	if c.IsNone() {
		return "none"
	}
	s := string(c.Stage) + " " + c.Point.String()
	switch {
	case c.DoneChunk != nil:
		return fmt.Sprintf("%s done-chunk=%d", s, *c.DoneChunk)
	case c.LastHandle != nil:
		return fmt.Sprintf("%s last=%s", s, *c.LastHandle)
	}
	return s
}

// EncodeCheckpoint renders the checkpoint row.
func EncodeCheckpoint(c Checkpoint) ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCheckpoint parses a checkpoint row; empty input decodes to none.
func DecodeCheckpoint(b []byte) (Checkpoint, error) {
	if len(b) == 0 {
		return CheckpointNone, nil
	}
	var c Checkpoint
	if err := json.Unmarshal(b, &c); err != nil {
		return CheckpointNone, fmt.Errorf("decode checkpoint: %w", err)
	}
	if c.Stage != StageNone && c.Point == nil {
		return CheckpointNone, fmt.Errorf("checkpoint stage %q without scavenge point", c.Stage)
	}
	return c, nil
}

// IntPtr returns a pointer to n, for building checkpoint literals.
func IntPtr(n int) *int { return &n }
