package scavenge

import (
	"context"
	"fmt"

	logpkg "github.com/rzbill/scour/pkg/log"
)

// Calculator translates accumulated retention facts into per-stream discard
// points and per-chunk weights. Streams are visited in stable handle order so
// a restart reproduces the same work prefix; progress commits once per batch.
type Calculator struct {
	state    StateForCalculator
	index    IndexReader
	opts     Options
	logger   logpkg.Logger
	reporter ScavengerLog
}

// NewCalculator wires the calculator stage.
func NewCalculator(state StateForCalculator, index IndexReader, opts Options, logger logpkg.Logger, reporter ScavengerLog) *Calculator {
	return &Calculator{
		state:    state,
		index:    index,
		opts:     opts.Normalize(),
		logger:   logger.WithComponent("scavenge-calculator"),
		reporter: reporter,
	}
}

// Calculate processes every Active stream, resuming after the given handle.
func (c *Calculator) Calculate(ctx context.Context, target ScavengePoint, after *StreamHandle) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		recs, err := c.state.ActiveOriginalStreams(after, c.opts.CalculatorBatchSize)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}

		tx, err := c.state.BeginCalculation()
		if err != nil {
			return err
		}
		for i := range recs {
			if err := c.calculateStream(tx, recs[i], target); err != nil {
				tx.Rollback()
				return fmt.Errorf("calculate %s: %w", recs[i].Handle, err)
			}
		}
		last := recs[len(recs)-1].Handle
		if err := tx.Commit(ctx, Calculating(target, &last)); err != nil {
			return err
		}
		c.reporter.StreamsCalculated(len(recs))
		after = &last
	}
}

func (c *Calculator) calculateStream(tx CalculatorTx, rec StreamRecord, sp ScavengePoint) error {
	old := rec.Data
	last, err := c.index.LastEventNumber(rec.Handle, sp)
	if err != nil {
		return err
	}
	if last < 0 {
		// no indexed events at the scavenge point; nothing to discard yet
		if old.Metadata.IsEmpty() && !old.IsTombstoned && old.DiscardPoint.IsKeepAll() {
			data := old
			data.Status = StatusSpent
			return tx.SetOriginalStreamData(rec.Handle, data)
		}
		return nil
	}

	if old.IsTombstoned {
		// the accumulator's discard point already spares only the tombstone
		data := old
		data.Status = StatusArchived
		data.MaybeDiscardPoint = old.MaybeDiscardPoint.Or(data.DiscardPoint)
		if err := c.depositWeights(tx, rec.Handle, old.MaybeDiscardPoint, data.MaybeDiscardPoint, sp, TombstoneDiscardWeight); err != nil {
			return err
		}
		return tx.SetOriginalStreamData(rec.Handle, data)
	}

	meta := old.Metadata
	definite := old.DiscardPoint
	if tb := meta.TruncateBefore; tb != nil {
		definite = definite.Or(DiscardBefore(*tb))
	}
	if mc := meta.MaxCount; mc != nil {
		dp, err := DiscardIncluding(last - *mc)
		if err != nil {
			return err
		}
		definite = definite.Or(dp)
	}
	// the newest event always survives
	definite = definite.Min(DiscardBefore(last))
	definite = old.DiscardPoint.Or(definite)

	maybe := definite
	if ageMs, ok := meta.MaxAgeMs(); ok {
		maybe, err = c.raiseForMaxAge(rec.Handle, maybe, last, ageMs, sp)
		if err != nil {
			return err
		}
	}
	maybe = old.MaybeDiscardPoint.Or(maybe).Or(definite)

	if err := c.depositWeights(tx, rec.Handle, old.MaybeDiscardPoint, maybe, sp, EventDiscardWeight); err != nil {
		return err
	}

	data := old
	data.DiscardPoint = definite
	data.MaybeDiscardPoint = maybe
	if meta.IsEmpty() && definite.IsKeepAll() && maybe.IsKeepAll() {
		data.Status = StatusSpent
	} else {
		data.Status = StatusActive
	}
	return tx.SetOriginalStreamData(rec.Handle, data)
}

// raiseForMaxAge walks the stream's index forward from the current point,
// raising it past every event whose whole chunk ended before the age cutoff.
// The comparison is chunk-coarse: a chunk's newest observed timestamp must be
// older than effectiveNow - maxAge - skew before any of its events are
// considered expired, so clock drift cannot discard fresh events.
func (c *Calculator) raiseForMaxAge(handle StreamHandle, point DiscardPoint, last int64, maxAgeMs int64, sp ScavengePoint) (DiscardPoint, error) {
	cutoff := sp.AgeCutoffMs(maxAgeMs) - c.opts.SkewToleranceMs
	from := point.FirstEventNumberToKeep()
	for {
		infos, isEnd, err := c.index.ReadEventInfoForward(handle, from, c.opts.IndexSliceSize, sp)
		if err != nil {
			return point, err
		}
		for i := range infos {
			info := infos[i]
			if info.EventNumber >= last {
				return point, nil
			}
			chunk := c.opts.ChunkForPosition(info.LogPosition)
			r, ok, err := c.state.ChunkTimeRange(chunk)
			if err != nil {
				return point, err
			}
			if !ok || r.MaxMs >= cutoff {
				// first kept event stops the walk
				return point, nil
			}
			next, err := DiscardIncluding(info.EventNumber)
			if err != nil {
				return point, err
			}
			point = point.Or(next)
		}
		if isEnd || len(infos) == 0 {
			return point, nil
		}
		from = infos[len(infos)-1].EventNumber + 1
	}
}

// depositWeights attributes weight to the chunk of every event in
// [oldPoint, newPoint), the events newly marked discardable this run.
func (c *Calculator) depositWeights(tx CalculatorTx, handle StreamHandle, oldPoint, newPoint DiscardPoint, sp ScavengePoint, weight float64) error {
	from := oldPoint.FirstEventNumberToKeep()
	to := newPoint.FirstEventNumberToKeep()
	if from >= to {
		return nil
	}
	for {
		infos, isEnd, err := c.index.ReadEventInfoForward(handle, from, c.opts.IndexSliceSize, sp)
		if err != nil {
			return err
		}
		for i := range infos {
			info := infos[i]
			if info.EventNumber >= to {
				return nil
			}
			if err := tx.AddChunkWeight(c.opts.ChunkForPosition(info.LogPosition), weight); err != nil {
				return err
			}
		}
		if isEnd || len(infos) == 0 {
			return nil
		}
		from = infos[len(infos)-1].EventNumber + 1
	}
}
