package scavenge

import (
	"context"

	"github.com/rzbill/scour/internal/logstream"
)

// The scavenge state is reached through narrow per-stage interfaces; the
// single concrete store in the state subpackage satisfies all of them. Every
// mutation runs inside a transaction whose commit also persists the stage
// checkpoint, so a rolled-back transaction never leaves visible progress.

// StateTx is the common shape of a state transaction.
type StateTx interface {
	// Commit atomically persists the transaction's mutations together with
	// the given checkpoint.
	Commit(ctx context.Context, cp Checkpoint) error
	// Rollback discards the transaction. Safe to call after Commit.
	Rollback()
}

// AccumulatorTx collects retention facts for one chunk.
type AccumulatorTx interface {
	StateTx
	// RegisterStream performs hash upkeep and collision detection for a
	// stream seen in the log.
	RegisterStream(streamID string) error
	// SetOriginalStreamMetadata replaces the retention metadata of an
	// original stream and reactivates it for calculation.
	SetOriginalStreamMetadata(originalStreamID string, meta logstream.StreamMetadata) error
	// RecordMetadataEvent notes a metadata event at (eventNumber, position)
	// in a metastream: the metastream's own discard point advances past all
	// older metadata events and the superseded event's chunk gains
	// replacement weight.
	RecordMetadataEvent(metastreamID string, eventNumber, position int64) error
	// SetTombstone marks an original stream deleted; only the tombstone
	// event itself remains retained.
	SetTombstone(originalStreamID string, eventNumber int64) error
	// NoteChunkTimestamp widens a chunk's observed timestamp range.
	NoteChunkTimestamp(chunk int, tsMs int64) error
}

// StateForAccumulator is the accumulator's view of the state.
type StateForAccumulator interface {
	BeginAccumulation() (AccumulatorTx, error)
}

// CalculatorTx writes discard pairs and chunk weights.
type CalculatorTx interface {
	StateTx
	SetOriginalStreamData(handle StreamHandle, data OriginalStreamData) error
	AddChunkWeight(chunk int, weight float64) error
}

// StateForCalculator is the calculator's view of the state.
type StateForCalculator interface {
	BeginCalculation() (CalculatorTx, error)
	// ActiveOriginalStreams pages Active streams in stable handle order,
	// starting after the given handle (nil = from the beginning).
	ActiveOriginalStreams(after *StreamHandle, limit int) ([]StreamRecord, error)
	// ChunkTimeRange returns a chunk's observed timestamp envelope.
	ChunkTimeRange(chunk int) (ChunkTimeRange, bool, error)
}

// ChunkExecutorTx resets executed chunk weights.
type ChunkExecutorTx interface {
	StateTx
	ResetChunkWeights(startChunk, endChunk int) error
}

// StateForChunkExecutor is the chunk executor's view of the state.
type StateForChunkExecutor interface {
	BeginChunkExecution() (ChunkExecutorTx, error)
	// SumChunkWeights totals the weights of logical chunks in
	// [startChunk, endChunk].
	SumChunkWeights(startChunk, endChunk int) (float64, error)
	// ExecutionInfoForStream resolves the discard view of a stream by name.
	// ok is false when the stream has no scavenge state.
	ExecutionInfoForStream(streamID string) (info ExecutionInfo, ok bool, err error)
}

// StateForIndexExecutor is the index executor's view of the state.
type StateForIndexExecutor interface {
	// IsCollidingHash reports whether entries under this hash are ambiguous.
	IsCollidingHash(hash uint64) (bool, error)
	// ExecutionInfoForHandle resolves the discard view of a stream by
	// handle, searching original then metastream tables.
	ExecutionInfoForHandle(handle StreamHandle) (info ExecutionInfo, ok bool, err error)
}

// CleanerTx prunes executed state.
type CleanerTx interface {
	StateTx
	DeleteOriginalStream(handle StreamHandle) error
	DeleteMetastream(handle StreamHandle) error
}

// StateForCleaner is the cleaner's view of the state.
type StateForCleaner interface {
	BeginCleaning() (CleanerTx, error)
	EnumerateOriginalStreams(after *StreamHandle, limit int) ([]StreamRecord, error)
	EnumerateMetastreams(after *StreamHandle, limit int) ([]MetastreamRecord, error)
	// OriginalStreamByHandle resolves one original stream's data.
	OriginalStreamByHandle(handle StreamHandle) (OriginalStreamData, bool, error)
	// ResolveStream builds the handle a stream's state lives under.
	ResolveStream(streamID string) (StreamHandle, error)
	// IsCollidingHash reports whether a hash maps to more than one name.
	IsCollidingHash(hash uint64) (bool, error)
}

// StateForDriver is what the run driver itself needs: the durable checkpoint
// and collision listing for diagnostics.
type StateForDriver interface {
	LoadCheckpoint() (Checkpoint, error)
	// CommitCheckpoint persists a checkpoint-only transition.
	CommitCheckpoint(ctx context.Context, cp Checkpoint) error
	Collisions() ([]string, error)
}

// State is the full surface the concrete store satisfies; stages receive it
// narrowed to their own view.
type State interface {
	StateForAccumulator
	StateForCalculator
	StateForChunkExecutor
	StateForIndexExecutor
	StateForCleaner
	StateForDriver
}
