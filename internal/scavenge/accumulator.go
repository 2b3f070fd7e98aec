package scavenge

import (
	"context"
	"fmt"

	"github.com/rzbill/scour/internal/logstream"
	logpkg "github.com/rzbill/scour/pkg/log"
)

// Accumulator sweeps the log up to the target scavenge point and materialises
// per-stream retention facts into scavenge state. It is strictly the only
// writer against state while it runs; progress commits once per chunk.
type Accumulator struct {
	state    StateForAccumulator
	chunks   ChunkManager
	names    MetastreamLookup
	opts     Options
	logger   logpkg.Logger
	reporter ScavengerLog
}

// NewAccumulator wires the accumulator stage.
func NewAccumulator(state StateForAccumulator, chunks ChunkManager, names MetastreamLookup, opts Options, logger logpkg.Logger, reporter ScavengerLog) *Accumulator {
	return &Accumulator{
		state:    state,
		chunks:   chunks,
		names:    names,
		opts:     opts.Normalize(),
		logger:   logger.WithComponent("scavenge-accumulator"),
		reporter: reporter,
	}
}

// Accumulate sweeps chunks from startChunk through the chunk containing the
// target scavenge point, committing Accumulating(target, chunk) after each.
func (a *Accumulator) Accumulate(ctx context.Context, target ScavengePoint, startChunk int) error {
	if startChunk < 0 {
		startChunk = 0
	}
	endChunk := a.opts.ChunkForPosition(target.Position)
	for c := startChunk; c <= endChunk; c++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stopped, err := a.accumulateChunk(ctx, c, target)
		if err != nil {
			return fmt.Errorf("accumulate chunk %d: %w", c, err)
		}
		if stopped {
			return nil
		}
	}
	return nil
}

// accumulateChunk processes one chunk inside a single state transaction.
// Returns stopped=true once the target scavenge point record was reached.
func (a *Accumulator) accumulateChunk(ctx context.Context, chunk int, target ScavengePoint) (stopped bool, err error) {
	reader, err := a.chunks.ChunkForNumber(chunk)
	if err != nil {
		return false, err
	}

	tx, err := a.state.BeginAccumulation()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var bufs RecordBuffers
	records := 0
	for {
		if records%a.opts.CancellationCheckPeriod == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}
		kind, err := reader.NextInto(&bufs)
		if err != nil {
			return false, err
		}
		if kind == RecordEOF {
			break
		}
		records++
		if kind == RecordSystem {
			// system records carry no retention facts
			continue
		}
		p := &bufs.Prepare
		if p.LogPosition >= target.Position {
			// the target scavenge point bounds the sweep; nothing at or
			// past it is accumulated
			stopped = true
			break
		}
		if err := a.accumulateRecord(tx, chunk, p); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx, Accumulating(target, IntPtr(chunk))); err != nil {
		return false, err
	}
	a.reporter.ChunkAccumulated(chunk, records)
	return stopped, nil
}

func (a *Accumulator) accumulateRecord(tx AccumulatorTx, chunk int, p *logstream.Prepare) error {
	if err := tx.RegisterStream(p.StreamID); err != nil {
		return err
	}
	isMeta := a.names.IsMetastream(p.StreamID)

	switch {
	case p.IsTombstone():
		if isMeta {
			return &InvalidMetastreamOperationError{MetastreamID: p.StreamID, LogPosition: p.LogPosition}
		}
		if err := tx.RegisterStream(a.names.MetastreamOf(p.StreamID)); err != nil {
			return err
		}
		if err := tx.SetTombstone(p.StreamID, p.EventNumber); err != nil {
			return err
		}
	case isMeta && p.IsMetadata():
		meta, err := logstream.ParseStreamMetadata(p.Payload)
		if err != nil {
			return fmt.Errorf("metadata event in %s at %d: %w", p.StreamID, p.LogPosition, err)
		}
		orig := a.names.OriginalStreamOf(p.StreamID)
		if err := tx.RegisterStream(orig); err != nil {
			return err
		}
		if err := tx.SetOriginalStreamMetadata(orig, meta); err != nil {
			return err
		}
		if err := tx.RecordMetadataEvent(p.StreamID, p.EventNumber, p.LogPosition); err != nil {
			return err
		}
	}

	return tx.NoteChunkTimestamp(chunk, p.TimestampMs)
}
