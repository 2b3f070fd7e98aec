package scavenge

import (
	"fmt"
	"math"
	"strconv"
)

// DiscardPoint carries the first event number to keep for a stream. Events
// with a lower number are discardable. The zero value keeps everything.
type DiscardPoint struct {
	firstToKeep int64
}

// KeepAll discards nothing.
var KeepAll = DiscardPoint{}

// DiscardBefore keeps events with number >= n.
func DiscardBefore(n int64) DiscardPoint {
	if n < 0 {
		n = 0
	}
	return DiscardPoint{firstToKeep: n}
}

// DiscardIncluding keeps events with number > n. n must be below the maximum
// event number so the successor cannot overflow.
func DiscardIncluding(n int64) (DiscardPoint, error) {
	if n == math.MaxInt64 {
		return DiscardPoint{}, fmt.Errorf("discard including %d would overflow", n)
	}
	if n < 0 {
		return KeepAll, nil
	}
	return DiscardPoint{firstToKeep: n + 1}, nil
}

// FirstEventNumberToKeep returns the boundary event number.
func (d DiscardPoint) FirstEventNumberToKeep() int64 { return d.firstToKeep }

// ShouldDiscard reports whether eventNumber falls below the point.
func (d DiscardPoint) ShouldDiscard(eventNumber int64) bool {
	return eventNumber < d.firstToKeep
}

// IsKeepAll reports whether the point discards nothing.
func (d DiscardPoint) IsKeepAll() bool { return d.firstToKeep == 0 }

// Or combines two points monotonically: the result discards whenever either
// would.
func (d DiscardPoint) Or(other DiscardPoint) DiscardPoint {
	if other.firstToKeep > d.firstToKeep {
		return other
	}
	return d
}

// Min returns the weaker of two points.
func (d DiscardPoint) Min(other DiscardPoint) DiscardPoint {
	if other.firstToKeep < d.firstToKeep {
		return other
	}
	return d
}

// Before reports strict ordering by first-event-to-keep.
func (d DiscardPoint) Before(other DiscardPoint) bool {
	return d.firstToKeep < other.firstToKeep
}

func (d DiscardPoint) String() string {
	if d.IsKeepAll() {
		return "keep-all"
	}
	return "discard-before:" + strconv.FormatInt(d.firstToKeep, 10)
}

// MarshalJSON encodes the point as its boundary number.
func (d DiscardPoint) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(d.firstToKeep, 10)), nil
}

// UnmarshalJSON decodes the boundary number form.
func (d *DiscardPoint) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("decode discard point: %w", err)
	}
	if v < 0 {
		v = 0
	}
	d.firstToKeep = v
	return nil
}
