package scavenge_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/scour/internal/logstream"
	"github.com/rzbill/scour/internal/scavenge"
)

// captureReporter records the chunks and stages a run touched.
type captureReporter struct {
	scavenge.NoopReporter
	mu          sync.Mutex
	accumulated []int
	stages      []scavenge.Stage
	onStageDone func(scavenge.Stage)
}

func (c *captureReporter) ChunkAccumulated(chunk int, records int) {
	c.mu.Lock()
	c.accumulated = append(c.accumulated, chunk)
	c.mu.Unlock()
}

func (c *captureReporter) StageCompleted(stage scavenge.Stage, elapsed time.Duration) {
	c.mu.Lock()
	c.stages = append(c.stages, stage)
	cb := c.onStageDone
	c.mu.Unlock()
	if cb != nil {
		cb(stage)
	}
}

func TestMaxCountKeepsOnlyLastEvent(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.appendMetadata("ab-1", 0, 0, `{"$maxCount":1}`)
	h.appendEvent("ab-1", 0, 1)
	h.appendEvent("ab-1", 1, 2)
	h.appendEvent("ab-1", 2, 3)
	h.addScavengePoint(0)

	if res := h.run(); res != scavenge.ResultSuccess {
		t.Fatalf("result = %s", res)
	}

	want := []string{"$$ab-1/0", "ab-1/2", "$scavenges/0"}
	if got := h.survivors(0); !equalStrings(got, want) {
		t.Fatalf("survivors = %v, want %v", got, want)
	}
	data, ok := h.originalData("ab-1")
	if !ok {
		t.Fatalf("no state for ab-1")
	}
	if data.DiscardPoint != scavenge.DiscardBefore(2) {
		t.Fatalf("discard point = %s", data.DiscardPoint)
	}
	// index agrees with the chunks
	if entries := h.index.entriesFor("ab-1"); len(entries) != 1 || entries[0].evnum != 2 {
		t.Fatalf("index entries = %+v", entries)
	}
}

func TestTombstoneLeavesOnlyTombstone(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.appendEvent("ab-1", 0, 0)
	h.appendTombstone("ab-1", 1, 1)
	h.addScavengePoint(0)

	h.run()

	want := []string{"ab-1/1", "$scavenges/0"}
	if got := h.survivors(0); !equalStrings(got, want) {
		t.Fatalf("survivors = %v, want %v", got, want)
	}
	data, ok := h.originalData("ab-1")
	if !ok {
		t.Fatalf("no state for ab-1")
	}
	if data.Status != scavenge.StatusArchived {
		t.Fatalf("status = %s", data.Status)
	}
	if !data.IsTombstoned {
		t.Fatalf("tombstone flag lost")
	}
	if entries := h.index.entriesFor("ab-1"); len(entries) != 1 || entries[0].evnum != 1 {
		t.Fatalf("index entries = %+v", entries)
	}
}

func TestTombstoneInMetastreamAbortsRun(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.appendTombstone("$$ab-1", 0, 0)

	result, err := h.scavenger().Run(context.Background(), "run", scavenge.RunOptions{})
	if result != scavenge.ResultErrored {
		t.Fatalf("result = %s", result)
	}
	var imo *scavenge.InvalidMetastreamOperationError
	if !errors.As(err, &imo) {
		t.Fatalf("error = %v", err)
	}
	if imo.MetastreamID != "$$ab-1" {
		t.Fatalf("offending stream = %q", imo.MetastreamID)
	}

	// the aborted transaction left no retention state behind
	if recs, _ := h.store.EnumerateOriginalStreams(nil, 10); len(recs) != 0 {
		t.Fatalf("unexpected original stream state: %+v", recs)
	}
	if recs, _ := h.store.EnumerateMetastreams(nil, 10); len(recs) != 0 {
		t.Fatalf("unexpected metastream state: %+v", recs)
	}
}

func TestSecondRunResumesFromPreviousPointChunk(t *testing.T) {
	h := newHarness(t, harnessConfig{chunkSize: 1000})
	h.appendEvent("ab-1", 0, 0)
	h.log.skipToChunk(1)
	h.appendEvent("ab-1", 1, 1)
	h.addScavengePoint(0) // SP-0 lives in chunk 1
	h.run()

	cp, err := h.store.LoadCheckpoint()
	if err != nil || !cp.IsDone() || cp.Point.EventNumber != 0 {
		t.Fatalf("checkpoint after first run = %s (%v)", cp, err)
	}

	h.log.skipToChunk(2)
	h.appendEvent("ab-1", 2, 2)
	h.appendEvent("ab-1", 3, 3)
	h.clock.ms = tsMs(5)
	h.addScavengePoint(0) // SP-1 in chunk 2

	rep := &captureReporter{}
	h.reporter = rep
	h.run()

	// the sweep restarted at the chunk holding SP-0 and progressed into
	// chunk 2
	if !equalInts(rep.accumulated, []int{1, 2}) {
		t.Fatalf("accumulated chunks = %v", rep.accumulated)
	}
	cp, err = h.store.LoadCheckpoint()
	if err != nil || !cp.IsDone() || cp.Point.EventNumber != 1 {
		t.Fatalf("checkpoint after second run = %s (%v)", cp, err)
	}
	// no retention metadata anywhere, so nothing was removed
	if events := h.log.streamEvents("ab-1"); len(events) != 4 {
		t.Fatalf("events surviving = %d", len(events))
	}
}

func TestLoosenedMetadataDoesNotLowerDiscardPoint(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.appendMetadata("ab-1", 0, 0, `{"$maxCount":1}`)
	h.appendEvent("ab-1", 0, 1)
	h.appendEvent("ab-1", 1, 2)
	h.appendEvent("ab-1", 2, 3)
	h.addScavengePoint(0)
	h.run()

	data, _ := h.originalData("ab-1")
	if data.DiscardPoint != scavenge.DiscardBefore(2) {
		t.Fatalf("discard point after first run = %s", data.DiscardPoint)
	}

	h.appendMetadata("ab-1", 1, 4, `{"$maxCount":4}`)
	h.appendEvent("ab-1", 3, 4)
	h.appendEvent("ab-1", 4, 4)
	h.clock.ms = tsMs(5)
	h.addScavengePoint(0)
	h.run()

	data, _ = h.originalData("ab-1")
	if data.DiscardPoint != scavenge.DiscardBefore(2) {
		t.Fatalf("discard point moved to %s", data.DiscardPoint)
	}
	// events 2, 3, 4 survive; 0 and 1 stay gone
	events := h.log.streamEvents("ab-1")
	if len(events) != 3 || events[0].EventNumber != 2 {
		t.Fatalf("surviving events = %+v", events)
	}
}

func TestStreamStartingAfterPointIsUntouched(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.appendMetadata("ab-1", 0, 0, `{"$tb":4}`)
	h.addScavengePoint(0)
	h.appendEvent("ab-1", 0, 2)
	h.appendEvent("ab-1", 1, 3)

	h.run()

	if events := h.log.streamEvents("ab-1"); len(events) != 2 {
		t.Fatalf("events past the scavenge point were touched: %+v", events)
	}
	data, ok := h.originalData("ab-1")
	if ok && !data.DiscardPoint.IsKeepAll() {
		t.Fatalf("discard point raised for post-point events: %s", data.DiscardPoint)
	}
}

func TestLowWeightChunkIsNotRewritten(t *testing.T) {
	h := newHarness(t, harnessConfig{options: func(o *scavenge.Options) {
		o.Threshold = 10
	}})
	h.appendMetadata("ab-1", 0, 0, `{"$maxCount":1}`)
	h.appendEvent("ab-1", 0, 1)
	h.appendEvent("ab-1", 1, 2)
	h.appendEvent("ab-1", 2, 3)
	h.addScavengePoint(10)

	before := h.survivors(0)
	h.run()

	// weight 2 <= threshold 10: byte-identical chunk
	if got := h.survivors(0); !equalStrings(got, before) {
		t.Fatalf("chunk rewritten below threshold: %v", got)
	}
	// but the discard point still advanced
	data, _ := h.originalData("ab-1")
	if data.DiscardPoint != scavenge.DiscardBefore(2) {
		t.Fatalf("discard point = %s", data.DiscardPoint)
	}
}

func TestNegativeThresholdForcesNoRewrites(t *testing.T) {
	h := newHarness(t, harnessConfig{options: func(o *scavenge.Options) {
		o.Threshold = -1
	}})
	h.appendMetadata("ab-1", 0, 0, `{"$maxCount":1}`)
	h.appendEvent("ab-1", 0, 1)
	h.appendEvent("ab-1", 1, 2)
	h.addScavengePoint(-1)

	before := h.survivors(0)
	h.run()
	if got := h.survivors(0); !equalStrings(got, before) {
		t.Fatalf("threshold -1 must skip all rewrites: %v", got)
	}
}

func TestUnsafeIgnoreHardDeletesRemovesTombstone(t *testing.T) {
	h := newHarness(t, harnessConfig{options: func(o *scavenge.Options) {
		o.UnsafeIgnoreHardDeletes = true
	}})
	h.appendEvent("ab-1", 0, 0)
	h.appendTombstone("ab-1", 1, 1)
	h.addScavengePoint(0)

	h.run()

	if events := h.log.streamEvents("ab-1"); len(events) != 0 {
		t.Fatalf("unsafe mode should remove the whole stream, got %+v", events)
	}
	if entries := h.index.entriesFor("ab-1"); len(entries) != 0 {
		t.Fatalf("index entries survived: %+v", entries)
	}
	// archived state was reclaimed by the cleaner
	if _, ok := h.originalData("ab-1"); ok {
		t.Fatalf("archived state should be cleaned in unsafe mode")
	}
}

func TestChunkBeingDeletedStopsRun(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.appendMetadata("ab-1", 0, 0, `{"$maxCount":1}`)
	h.appendEvent("ab-1", 0, 1)
	h.appendEvent("ab-1", 1, 2)
	h.addScavengePoint(0)

	h.chunks.completeErr = scavenge.ErrChunkBeingDeleted
	result, err := h.scavenger().Run(context.Background(), "run", scavenge.RunOptions{})
	if result != scavenge.ResultStopped {
		t.Fatalf("result = %s (err %v)", result, err)
	}
	if !errors.Is(err, scavenge.ErrChunkBeingDeleted) {
		t.Fatalf("error = %v", err)
	}

	// the next run resumes from the checkpoint and completes
	if res := h.run(); res != scavenge.ResultSuccess {
		t.Fatalf("resumed result = %s", res)
	}
	events := h.log.streamEvents("ab-1")
	if len(events) != 1 || events[0].EventNumber != 1 {
		t.Fatalf("surviving events = %+v", events)
	}
}

func TestRunWithNoPointCreatesOne(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.appendEvent("ab-1", 0, 0)

	h.run()

	points := h.log.streamEvents(logstream.ScavengePointsStream)
	if len(points) != 1 {
		t.Fatalf("expected one scavenge point, got %d", len(points))
	}
	cp, _ := h.store.LoadCheckpoint()
	if !cp.IsDone() || cp.Point.EventNumber != 0 {
		t.Fatalf("checkpoint = %s", cp)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
