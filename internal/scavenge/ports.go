package scavenge

import (
	"context"
	"time"

	"github.com/rzbill/scour/internal/logstream"
)

// RecordKind tags what a chunk reader produced into the caller's buffers.
type RecordKind uint8

const (
	// RecordEOF means the chunk is exhausted.
	RecordEOF RecordKind = iota
	// RecordPrepare filled the prepare buffer.
	RecordPrepare
	// RecordSystem filled the system-record buffer.
	RecordSystem
)

// RecordBuffers are the two reusable read buffers a caller hands to a chunk
// reader; one record lives in exactly one of them after each Next call.
type RecordBuffers struct {
	Prepare logstream.Prepare
	System  logstream.SystemRecord
}

// ChunkReader streams the records of one physical chunk in log order.
type ChunkReader interface {
	// ChunkStartNumber and ChunkEndNumber bound the logical chunks this
	// physical chunk covers (equal unless chunks were merged).
	ChunkStartNumber() int
	ChunkEndNumber() int
	ChunkStartPosition() int64
	ChunkEndPosition() int64
	Name() string
	IsReadOnly() bool
	FileSize() int64

	// NextInto fills one of the buffers and reports which. Returns RecordEOF
	// when the chunk is exhausted.
	NextInto(bufs *RecordBuffers) (RecordKind, error)
}

// ChunkWriter receives the kept records of a chunk rewrite.
type ChunkWriter interface {
	WritePrepare(p *logstream.Prepare) error
	WriteSystem(r *logstream.SystemRecord) error
	// Complete atomically switches the rewritten chunk in, returning its
	// file name and size.
	Complete() (path string, size int64, err error)
	// Abort discards the in-flight output. When deleteImmediately is false
	// the temp file is kept for inspection and later cleanup.
	Abort(deleteImmediately bool)
}

// ChunkManager is the port to the physical chunk layer.
type ChunkManager interface {
	// ChunkForNumber opens a reader for the physical chunk covering the
	// given logical chunk number.
	ChunkForNumber(n int) (ChunkReader, error)
	// ChunkForPosition opens a reader for the chunk containing a log
	// position.
	ChunkForPosition(pos int64) (ChunkReader, error)
	// CreateWriterFor opens a rewrite target for a source chunk.
	CreateWriterFor(source ChunkReader) (ChunkWriter, error)
}

// ChunkMerger is an optional chunk-manager capability; when present the
// driver invokes it during the merge stage.
type ChunkMerger interface {
	MergeChunks(ctx context.Context) error
}

// EventInfo is one secondary-index entry for a stream, in event-number order.
type EventInfo struct {
	EventNumber int64
	LogPosition int64
}

// IndexReader resolves per-stream facts from the secondary index as of a
// scavenge point.
type IndexReader interface {
	// LastEventNumber returns the highest event number of the stream at the
	// scavenge point, or -1 when the stream has no indexed events.
	LastEventNumber(handle StreamHandle, sp ScavengePoint) (int64, error)
	// ReadEventInfoForward pages event infos with eventNumber >= from, at
	// most maxCount per call. isEnd reports that no further entries exist.
	ReadEventInfoForward(handle StreamHandle, from int64, maxCount int, sp ScavengePoint) (infos []EventInfo, isEnd bool, err error)
	// StreamIDAtPosition resolves the stream name of the record at a log
	// position; used when an index entry's hash is ambiguous.
	StreamIDAtPosition(pos int64) (string, error)
}

// IndexEntry is a raw (hash, eventNumber, position) index row offered to the
// keep predicate during index execution.
type IndexEntry struct {
	StreamHash  uint64
	EventNumber int64
	LogPosition int64
}

// IndexScavenger is the port to the index writer: it walks every entry and
// retains those the predicate keeps. threads is a fan-out hint for CPU-bound
// table merging; 1 means sequential.
type IndexScavenger interface {
	Scavenge(ctx context.Context, threads int, shouldKeep func(IndexEntry) (bool, error)) error
}

// ScavengePointSource reads and appends scavenge point markers in the log.
type ScavengePointSource interface {
	// LatestScavengePoint returns the newest point, or nil when none exists.
	LatestScavengePoint(ctx context.Context) (*ScavengePoint, error)
	// AppendScavengePoint writes a new marker carrying the clock and
	// threshold, returning it once durable.
	AppendScavengePoint(ctx context.Context, threshold int64) (ScavengePoint, error)
}

// MetastreamLookup answers stream naming questions.
type MetastreamLookup interface {
	IsMetastream(id string) bool
	MetastreamOf(id string) string
	OriginalStreamOf(metaID string) string
}

// Hasher maps stream names to the 64-bit hash state and index are keyed by.
type Hasher interface {
	Hash(streamID string) uint64
}

// Clock supplies the wall clock in milliseconds.
type Clock interface {
	NowMs() int64
}

// SystemClock is the production Clock.
type SystemClock struct{}

// NowMs implements Clock.
func (SystemClock) NowMs() int64 { return time.Now().UnixMilli() }

// ScavengerLog receives structured progress and result notifications for a
// run. Implementations log, count, or both.
type ScavengerLog interface {
	RunStarted(runID string, sp ScavengePoint)
	StageStarted(stage Stage)
	StageCompleted(stage Stage, elapsed time.Duration)
	ChunkAccumulated(chunk int, records int)
	StreamsCalculated(streams int)
	ChunkRewritten(chunk int, kept, discarded int64, elapsed time.Duration)
	ChunkSkipped(chunk int, weight float64)
	IndexExecuted(kept, dropped int64)
	RunCompleted(runID string, result Result, elapsed time.Duration)
	RunFailed(runID string, err error, elapsed time.Duration)
}
