package id

import "testing"

func TestNextIsMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		cur := g.Next()
		if cur.Compare(prev) <= 0 {
			t.Fatalf("id %s not greater than %s", cur, prev)
		}
		prev = cur
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	id := g.Next()
	got, ok := Parse(id.String())
	if !ok {
		t.Fatalf("parse %q failed", id.String())
	}
	if got != id {
		t.Fatalf("round trip mismatch: %s != %s", got, id)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, ok := Parse("zz"); ok {
		t.Fatalf("short string should not parse")
	}
	if _, ok := Parse("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"); ok {
		t.Fatalf("non-hex string should not parse")
	}
}

func TestClockGoingBackwards(t *testing.T) {
	g := NewGenerator()
	orig := NowMs
	defer func() { NowMs = orig }()

	ms := int64(1_000_000)
	NowMs = func() int64 { return ms }
	a := g.Next()
	ms = 999_999 // clock regression
	b := g.Next()
	if b.Compare(a) <= 0 {
		t.Fatalf("expected monotonic ids across clock regression")
	}
}
