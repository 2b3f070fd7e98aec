package scavenge

import "testing"

func sp(n int64) ScavengePoint {
	return ScavengePoint{Position: n * 1000, EventNumber: n, EffectiveNowMs: 1_000_000, Threshold: 0}
}

func TestCheckpointRoundTrip(t *testing.T) {
	handle := IDHandle("orders-1", 7)
	cases := []Checkpoint{
		CheckpointNone,
		Accumulating(sp(0), IntPtr(3)),
		Accumulating(sp(0), nil),
		Calculating(sp(1), &handle),
		Calculating(sp(1), nil),
		ExecutingChunks(sp(2), IntPtr(0)),
		MergingChunks(sp(2)),
		ExecutingIndex(sp(2)),
		Cleaning(sp(3)),
		Done(sp(3)),
	}
	for _, in := range cases {
		b, err := EncodeCheckpoint(in)
		if err != nil {
			t.Fatalf("encode %s: %v", in, err)
		}
		out, err := DecodeCheckpoint(b)
		if err != nil {
			t.Fatalf("decode %s: %v", in, err)
		}
		if out.Stage != in.Stage {
			t.Fatalf("stage mismatch: %s != %s", out.Stage, in.Stage)
		}
		if (out.Point == nil) != (in.Point == nil) {
			t.Fatalf("point presence mismatch for %s", in)
		}
		if in.Point != nil && *out.Point != *in.Point {
			t.Fatalf("point mismatch: %+v != %+v", out.Point, in.Point)
		}
		if (out.DoneChunk == nil) != (in.DoneChunk == nil) {
			t.Fatalf("done chunk presence mismatch for %s", in)
		}
		if in.DoneChunk != nil && *out.DoneChunk != *in.DoneChunk {
			t.Fatalf("done chunk mismatch")
		}
		if in.LastHandle != nil && *out.LastHandle != *in.LastHandle {
			t.Fatalf("last handle mismatch")
		}
	}
}

func TestDecodeEmptyIsNone(t *testing.T) {
	cp, err := DecodeCheckpoint(nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !cp.IsNone() {
		t.Fatalf("empty input should decode to none")
	}
}

func TestDecodeRejectsStageWithoutPoint(t *testing.T) {
	if _, err := DecodeCheckpoint([]byte(`{"stage":"cleaning"}`)); err == nil {
		t.Fatalf("expected error for stage without scavenge point")
	}
}

func TestProgressPredicates(t *testing.T) {
	if CheckpointNone.InProgress() {
		t.Fatalf("none is not in progress")
	}
	if !Accumulating(sp(0), nil).InProgress() {
		t.Fatalf("accumulating is in progress")
	}
	if Done(sp(0)).InProgress() {
		t.Fatalf("done is not in progress")
	}
	if !Done(sp(0)).IsDone() {
		t.Fatalf("done should report done")
	}
}
