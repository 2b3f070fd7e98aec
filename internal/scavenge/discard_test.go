package scavenge

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDiscardBefore(t *testing.T) {
	dp := DiscardBefore(5)
	if !dp.ShouldDiscard(4) {
		t.Fatalf("4 should be discarded")
	}
	if dp.ShouldDiscard(5) {
		t.Fatalf("5 must be kept")
	}
	if dp.FirstEventNumberToKeep() != 5 {
		t.Fatalf("first to keep = %d", dp.FirstEventNumberToKeep())
	}
}

func TestKeepAllDiscardsNothing(t *testing.T) {
	if KeepAll.ShouldDiscard(0) {
		t.Fatalf("keep-all discarded event 0")
	}
	if !KeepAll.IsKeepAll() {
		t.Fatalf("IsKeepAll false")
	}
	if !DiscardBefore(0).IsKeepAll() {
		t.Fatalf("DiscardBefore(0) must equal keep-all")
	}
}

func TestDiscardBeforeClampsNegative(t *testing.T) {
	if !DiscardBefore(-3).IsKeepAll() {
		t.Fatalf("negative boundary should clamp to keep-all")
	}
}

func TestDiscardIncluding(t *testing.T) {
	dp, err := DiscardIncluding(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dp.ShouldDiscard(7) {
		t.Fatalf("7 should be discarded")
	}
	if dp.ShouldDiscard(8) {
		t.Fatalf("8 must be kept")
	}
}

func TestDiscardIncludingRejectsMax(t *testing.T) {
	if _, err := DiscardIncluding(math.MaxInt64); err == nil {
		t.Fatalf("expected overflow rejection")
	}
}

func TestDiscardIncludingNegativeKeepsAll(t *testing.T) {
	dp, err := DiscardIncluding(-1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dp.IsKeepAll() {
		t.Fatalf("including a negative number keeps everything")
	}
}

func TestOrIsMonotonicMax(t *testing.T) {
	a := DiscardBefore(3)
	b := DiscardBefore(8)
	if got := a.Or(b); got != b {
		t.Fatalf("Or = %s", got)
	}
	if got := b.Or(a); got != b {
		t.Fatalf("Or not symmetric: %s", got)
	}
	if got := a.Or(a); got != a {
		t.Fatalf("Or not idempotent: %s", got)
	}
}

func TestOrdering(t *testing.T) {
	if !DiscardBefore(1).Before(DiscardBefore(2)) {
		t.Fatalf("1 < 2 expected")
	}
	if DiscardBefore(2).Before(DiscardBefore(2)) {
		t.Fatalf("strict ordering violated")
	}
	if got := DiscardBefore(9).Min(DiscardBefore(4)); got != DiscardBefore(4) {
		t.Fatalf("Min = %s", got)
	}
}

func TestDiscardPointJSONRoundTrip(t *testing.T) {
	in := DiscardBefore(42)
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "42" {
		t.Fatalf("encoded as %s", b)
	}
	var out DiscardPoint
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %s != %s", out, in)
	}
}
