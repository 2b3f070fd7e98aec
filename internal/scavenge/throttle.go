package scavenge

import (
	"context"
	"time"
)

// Throttle paces chunk execution by resting in proportion to the time each
// chunk took. At 100 percent there is no rest; at 50 percent the rest equals
// the elapsed time.
type Throttle struct {
	percent float64
}

// NewThrottle builds a throttle; percent outside (0,100] runs unthrottled.
func NewThrottle(percent float64) *Throttle {
	if percent <= 0 || percent > 100 {
		percent = 100
	}
	return &Throttle{percent: percent}
}

// Rest sleeps for the pacing interval derived from elapsed, or returns early
// when the context is cancelled.
func (t *Throttle) Rest(ctx context.Context, elapsed time.Duration) error {
	if t == nil || t.percent >= 100 || elapsed <= 0 {
		return ctx.Err()
	}
	rest := time.Duration(float64(elapsed) * (100 - t.percent) / t.percent)
	timer := time.NewTimer(rest)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Percent returns the configured pace.
func (t *Throttle) Percent() float64 { return t.percent }
