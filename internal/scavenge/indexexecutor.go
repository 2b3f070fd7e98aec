package scavenge

import (
	"context"
	"sync/atomic"

	logpkg "github.com/rzbill/scour/pkg/log"
)

// IndexExecutor rewrites the secondary index, dropping entries below their
// stream's discard point. Only the definite point is applied; entries still
// under a maybe point wait for a later run to confirm them.
type IndexExecutor struct {
	state    StateForIndexExecutor
	index    IndexReader
	scav     IndexScavenger
	opts     Options
	logger   logpkg.Logger
	reporter ScavengerLog
}

// NewIndexExecutor wires the index execution stage.
func NewIndexExecutor(state StateForIndexExecutor, index IndexReader, scav IndexScavenger, opts Options, logger logpkg.Logger, reporter ScavengerLog) *IndexExecutor {
	return &IndexExecutor{
		state:    state,
		index:    index,
		scav:     scav,
		opts:     opts.Normalize(),
		logger:   logger.WithComponent("scavenge-index-executor"),
		reporter: reporter,
	}
}

// Execute runs the index scavenge with the keep predicate. threads bounds
// the port's merge fan-out.
func (e *IndexExecutor) Execute(ctx context.Context, target ScavengePoint, threads int) error {
	if threads < 1 {
		threads = 1
	}
	// the port may call the predicate from several merge workers
	var kept, dropped atomic.Int64
	err := e.scav.Scavenge(ctx, threads, func(entry IndexEntry) (bool, error) {
		keep, err := e.shouldKeep(entry, target)
		if err != nil {
			return false, err
		}
		if keep {
			kept.Add(1)
		} else {
			dropped.Add(1)
		}
		return keep, nil
	})
	if err != nil {
		return err
	}
	e.reporter.IndexExecuted(kept.Load(), dropped.Load())
	return nil
}

func (e *IndexExecutor) shouldKeep(entry IndexEntry, target ScavengePoint) (bool, error) {
	// nothing at or past the scavenge point is touched
	if entry.LogPosition >= target.Position {
		return true, nil
	}

	handle, err := e.resolveEntry(entry)
	if err != nil {
		return false, err
	}
	info, ok, err := e.state.ExecutionInfoForHandle(handle)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	if info.IsTombstoned {
		if e.opts.UnsafeIgnoreHardDeletes {
			return false, nil
		}
		if info.IsMetastream {
			return false, nil
		}
	}
	return !info.DiscardPoint.ShouldDiscard(entry.EventNumber), nil
}

// resolveEntry maps an index entry to the handle its state lives under. A
// colliding hash is disambiguated by reading the stream name out of the log.
func (e *IndexExecutor) resolveEntry(entry IndexEntry) (StreamHandle, error) {
	colliding, err := e.state.IsCollidingHash(entry.StreamHash)
	if err != nil {
		return StreamHandle{}, err
	}
	if !colliding {
		return HashHandle(entry.StreamHash), nil
	}
	name, err := e.index.StreamIDAtPosition(entry.LogPosition)
	if err != nil {
		return StreamHandle{}, CorruptStateError(
			"cannot resolve colliding hash %x at position %d: %v",
			entry.StreamHash, entry.LogPosition, err)
	}
	return IDHandle(name, entry.StreamHash), nil
}
