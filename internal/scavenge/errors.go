package scavenge

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. All recovery is resumption from the checkpoint on the
// next run; nothing in the core retries.
var (
	// ErrCorruptState marks a logically impossible state read. The run
	// aborts without further state mutation.
	ErrCorruptState = errors.New("scavenge state corrupt")
	// ErrChunkBeingDeleted is raised by the chunk manager when a chunk is
	// re-replicated mid-rewrite. Treated as cooperative cancellation.
	ErrChunkBeingDeleted = errors.New("chunk being deleted")
	// ErrIndexMaybeCorrupt propagates an index port detection; the index
	// layer verifies on next startup.
	ErrIndexMaybeCorrupt = errors.New("index may be corrupt")
)

// InvalidMetastreamOperationError reports a tombstone discovered inside a
// metastream. Fatal for the run.
type InvalidMetastreamOperationError struct {
	MetastreamID string
	LogPosition  int64
}

func (e *InvalidMetastreamOperationError) Error() string {
	return fmt.Sprintf("invalid operation in metastream %s at position %d: metastreams cannot be tombstoned", e.MetastreamID, e.LogPosition)
}

// CorruptStateError wraps ErrCorruptState with detail.
func CorruptStateError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorruptState, fmt.Sprintf(format, args...))
}
