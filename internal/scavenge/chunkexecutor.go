package scavenge

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/scour/internal/logstream"
	logpkg "github.com/rzbill/scour/pkg/log"
)

// ChunkExecutor rewrites physical chunks whose accumulated weight clears the
// scavenge point's threshold, keeping only the records the discard points
// retain. Chunks are processed in ascending order with a checkpoint after
// each, and a throttle paces the walk.
type ChunkExecutor struct {
	state    StateForChunkExecutor
	chunks   ChunkManager
	opts     Options
	throttle *Throttle
	logger   logpkg.Logger
	reporter ScavengerLog
}

// NewChunkExecutor wires the chunk execution stage.
func NewChunkExecutor(state StateForChunkExecutor, chunks ChunkManager, opts Options, throttle *Throttle, logger logpkg.Logger, reporter ScavengerLog) *ChunkExecutor {
	return &ChunkExecutor{
		state:    state,
		chunks:   chunks,
		opts:     opts.Normalize(),
		throttle: throttle,
		logger:   logger.WithComponent("scavenge-chunk-executor"),
		reporter: reporter,
	}
}

// Execute walks physical chunks from startChunk through the chunk containing
// the target scavenge point.
func (e *ChunkExecutor) Execute(ctx context.Context, target ScavengePoint, startChunk int) error {
	if startChunk < 0 {
		startChunk = 0
	}
	endChunk := e.opts.ChunkForPosition(target.Position)
	for c := startChunk; c <= endChunk; {
		if err := ctx.Err(); err != nil {
			return err
		}
		began := time.Now()

		reader, err := e.chunks.ChunkForNumber(c)
		if err != nil {
			return fmt.Errorf("open chunk %d: %w", c, err)
		}
		startNo, endNo := reader.ChunkStartNumber(), reader.ChunkEndNumber()

		weight, err := e.state.SumChunkWeights(startNo, endNo)
		if err != nil {
			return err
		}
		if !e.shouldRewrite(weight, target.Threshold) {
			if err := e.commitProgress(ctx, target, startNo, endNo, false); err != nil {
				return err
			}
			e.reporter.ChunkSkipped(endNo, weight)
			c = endNo + 1
			continue
		}

		kept, discarded, err := e.rewriteChunk(ctx, reader, target)
		if err != nil {
			return fmt.Errorf("rewrite chunk %s: %w", reader.Name(), err)
		}
		if err := e.commitProgress(ctx, target, startNo, endNo, true); err != nil {
			return err
		}
		elapsed := time.Since(began)
		e.reporter.ChunkRewritten(endNo, kept, discarded, elapsed)

		if err := e.throttle.Rest(ctx, elapsed); err != nil {
			return err
		}
		c = endNo + 1
	}
	return nil
}

// shouldRewrite applies the weight-threshold gate. A negative threshold
// forces no rewrites; unsafe-ignore-hard-deletes rewrites everything so
// tombstones themselves can go.
func (e *ChunkExecutor) shouldRewrite(weight float64, threshold int64) bool {
	if e.opts.UnsafeIgnoreHardDeletes {
		return true
	}
	if threshold < 0 {
		return false
	}
	return weight > float64(threshold)
}

// commitProgress records the chunk as executed, resetting its weights when it
// was rewritten.
func (e *ChunkExecutor) commitProgress(ctx context.Context, target ScavengePoint, startChunk, doneChunk int, rewritten bool) error {
	tx, err := e.state.BeginChunkExecution()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if rewritten {
		if err := tx.ResetChunkWeights(startChunk, doneChunk); err != nil {
			return err
		}
	}
	return tx.Commit(ctx, ExecutingChunks(target, IntPtr(doneChunk)))
}

// rewriteChunk streams the source records into a fresh output chunk, keeping
// every record shouldDiscard retains. On I/O failure the temp output is
// deleted; on cancellation it is kept so the next run resumes from the prior
// commit; on chunk-being-deleted the rewrite aborts and the error propagates
// for the run to stop.
func (e *ChunkExecutor) rewriteChunk(ctx context.Context, reader ChunkReader, target ScavengePoint) (kept, discarded int64, err error) {
	writer, err := e.chunks.CreateWriterFor(reader)
	if err != nil {
		return 0, 0, err
	}

	var bufs RecordBuffers
	records := 0
	for {
		if records%e.opts.CancellationCheckPeriod == 0 {
			if cerr := ctx.Err(); cerr != nil {
				writer.Abort(false)
				return 0, 0, cerr
			}
		}
		kind, rerr := reader.NextInto(&bufs)
		if rerr != nil {
			writer.Abort(true)
			return 0, 0, rerr
		}
		if kind == RecordEOF {
			break
		}
		records++
		switch kind {
		case RecordSystem:
			if werr := writer.WriteSystem(&bufs.System); werr != nil {
				writer.Abort(true)
				return 0, 0, werr
			}
			kept++
		case RecordPrepare:
			discard, derr := e.shouldDiscard(&bufs.Prepare, target)
			if derr != nil {
				writer.Abort(true)
				return 0, 0, derr
			}
			if discard {
				discarded++
				continue
			}
			if werr := writer.WritePrepare(&bufs.Prepare); werr != nil {
				writer.Abort(true)
				return 0, 0, werr
			}
			kept++
		}
	}

	if _, _, cerr := writer.Complete(); cerr != nil {
		writer.Abort(true)
		return 0, 0, cerr
	}
	return kept, discarded, nil
}

// shouldDiscard decides one prepare record's fate at execution time.
func (e *ChunkExecutor) shouldDiscard(p *logstream.Prepare, target ScavengePoint) (bool, error) {
	// nothing at or past the scavenge point is touched
	if p.LogPosition >= target.Position {
		return false, nil
	}
	// transaction prepares without their own commit are kept
	if !p.IsSelfCommitted() {
		return false, nil
	}

	info, ok, err := e.state.ExecutionInfoForStream(p.StreamID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if info.IsTombstoned {
		if e.opts.UnsafeIgnoreHardDeletes {
			return true, nil
		}
		if info.IsMetastream {
			// the whole metastream of a deleted stream is moot
			return true, nil
		}
		if p.IsTombstone() {
			return false, nil
		}
	}

	if info.DiscardPoint.ShouldDiscard(p.EventNumber) {
		return true, nil
	}
	if info.HasMaxAge && info.MaybeDiscardPoint.ShouldDiscard(p.EventNumber) &&
		p.TimestampMs < target.AgeCutoffMs(info.MaxAgeMs) {
		return true, nil
	}
	return false, nil
}
