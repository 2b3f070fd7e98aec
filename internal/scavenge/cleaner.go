package scavenge

import (
	"context"
	"fmt"

	logpkg "github.com/rzbill/scour/pkg/log"
)

// Cleaner prunes scavenge state that is fully executed: spent original
// streams, optionally archived (tombstoned) ones, and the metastream rows of
// both.
type Cleaner struct {
	state    StateForCleaner
	names    MetastreamLookup
	opts     Options
	logger   logpkg.Logger
	reporter ScavengerLog
}

// NewCleaner wires the cleanup stage.
func NewCleaner(state StateForCleaner, names MetastreamLookup, opts Options, logger logpkg.Logger, reporter ScavengerLog) *Cleaner {
	return &Cleaner{
		state:    state,
		names:    names,
		opts:     opts.Normalize(),
		logger:   logger.WithComponent("scavenge-cleaner"),
		reporter: reporter,
	}
}

// Clean removes executed state. When reclaimArchived is set, tombstoned
// streams' rows are removed as well.
func (c *Cleaner) Clean(ctx context.Context, target ScavengePoint, reclaimArchived bool) error {
	if err := c.cleanMetastreams(ctx, target, reclaimArchived); err != nil {
		return fmt.Errorf("clean metastreams: %w", err)
	}
	if err := c.cleanOriginals(ctx, target, reclaimArchived); err != nil {
		return fmt.Errorf("clean original streams: %w", err)
	}
	return nil
}

// cleanMetastreams removes metastream rows whose underlying stream is spent
// or archived. Runs before original rows disappear so statuses still resolve.
func (c *Cleaner) cleanMetastreams(ctx context.Context, target ScavengePoint, reclaimArchived bool) error {
	var after *StreamHandle
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		recs, err := c.state.EnumerateMetastreams(after, c.opts.CalculatorBatchSize)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		tx, err := c.state.BeginCleaning()
		if err != nil {
			return err
		}
		for i := range recs {
			prune, err := c.metastreamPrunable(recs[i], reclaimArchived)
			if err != nil {
				tx.Rollback()
				return err
			}
			if prune {
				if err := tx.DeleteMetastream(recs[i].Handle); err != nil {
					tx.Rollback()
					return err
				}
			}
		}
		if err := tx.Commit(ctx, Cleaning(target)); err != nil {
			return err
		}
		last := recs[len(recs)-1].Handle
		after = &last
	}
}

func (c *Cleaner) metastreamPrunable(rec MetastreamRecord, reclaimArchived bool) (bool, error) {
	data, ok, err := c.originalFor(rec)
	if err != nil || !ok {
		return false, err
	}
	switch data.Status {
	case StatusSpent:
		return true, nil
	case StatusArchived:
		return reclaimArchived, nil
	}
	return false, nil
}

// originalFor resolves the original-stream data behind a metastream row. An
// explicit handle carries the name; a compact one is resolved through the
// recorded original hash, skipped when that hash is ambiguous.
func (c *Cleaner) originalFor(rec MetastreamRecord) (OriginalStreamData, bool, error) {
	if rec.Handle.Kind == HandleID {
		orig := c.names.OriginalStreamOf(rec.Handle.StreamID)
		handle, err := c.state.ResolveStream(orig)
		if err != nil {
			return OriginalStreamData{}, false, err
		}
		return c.state.OriginalStreamByHandle(handle)
	}
	colliding, err := c.state.IsCollidingHash(rec.Data.OriginalStreamHash)
	if err != nil {
		return OriginalStreamData{}, false, err
	}
	if colliding {
		return OriginalStreamData{}, false, nil
	}
	return c.state.OriginalStreamByHandle(HashHandle(rec.Data.OriginalStreamHash))
}

func (c *Cleaner) cleanOriginals(ctx context.Context, target ScavengePoint, reclaimArchived bool) error {
	var after *StreamHandle
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		recs, err := c.state.EnumerateOriginalStreams(after, c.opts.CalculatorBatchSize)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		tx, err := c.state.BeginCleaning()
		if err != nil {
			return err
		}
		for i := range recs {
			status := recs[i].Data.Status
			if status == StatusSpent || (reclaimArchived && status == StatusArchived) {
				if err := tx.DeleteOriginalStream(recs[i].Handle); err != nil {
					tx.Rollback()
					return err
				}
			}
		}
		if err := tx.Commit(ctx, Cleaning(target)); err != nil {
			return err
		}
		last := recs[len(recs)-1].Handle
		after = &last
	}
}
