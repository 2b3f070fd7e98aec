package scavenge

// Options carries the scavenge tuning knobs. The zero value is unusable; use
// DefaultOptions as the base.
type Options struct {
	// ChunkSize is the logical chunk size in bytes; positions map to chunk
	// numbers by integer division.
	ChunkSize int64
	// Threshold is the minimum aggregate weight for a chunk rewrite. -1
	// forces no rewrites, 0 rewrites on any positive weight.
	Threshold int64
	// CancellationCheckPeriod is the number of records between cancellation
	// polls inside a chunk rewrite.
	CancellationCheckPeriod int
	// SkewToleranceMs widens the coarse max-age comparison against chunk
	// timestamp ranges to absorb clock drift between nodes.
	SkewToleranceMs int64
	// ThrottlePercent paces chunk execution: 100 runs flat out, 50 rests as
	// long as each chunk took.
	ThrottlePercent float64
	// UnsafeIgnoreHardDeletes discards everything for tombstoned streams,
	// including the tombstone itself. The stream can then be recreated.
	UnsafeIgnoreHardDeletes bool
	// CalculatorBatchSize is the number of streams calculated per
	// transaction.
	CalculatorBatchSize int
	// IndexSliceSize bounds each index page read while walking a stream.
	IndexSliceSize int
}

// DefaultOptions mirror the engine defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:               256 << 20,
		Threshold:               0,
		CancellationCheckPeriod: 1024,
		SkewToleranceMs:         60_000,
		ThrottlePercent:         100,
		CalculatorBatchSize:     500,
		IndexSliceSize:          100,
	}
}

// Normalize fills unset fields from defaults and clamps invalid values.
func (o Options) Normalize() Options {
	def := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = def.ChunkSize
	}
	if o.Threshold < -1 {
		o.Threshold = -1
	}
	if o.CancellationCheckPeriod <= 0 {
		o.CancellationCheckPeriod = def.CancellationCheckPeriod
	}
	if o.SkewToleranceMs < def.SkewToleranceMs {
		// at least one minute of tolerance guards clock drift
		o.SkewToleranceMs = def.SkewToleranceMs
	}
	if o.ThrottlePercent <= 0 || o.ThrottlePercent > 100 {
		o.ThrottlePercent = def.ThrottlePercent
	}
	if o.CalculatorBatchSize <= 0 {
		o.CalculatorBatchSize = def.CalculatorBatchSize
	}
	if o.IndexSliceSize <= 0 {
		o.IndexSliceSize = def.IndexSliceSize
	}
	return o
}

// ChunkForPosition maps a log position to its logical chunk number.
func (o Options) ChunkForPosition(pos int64) int {
	if pos < 0 {
		return 0
	}
	return int(pos / o.ChunkSize)
}
