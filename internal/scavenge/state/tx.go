package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/scour/internal/logstream"
	"github.com/rzbill/scour/internal/scavenge"
)

// transaction is the single concrete transaction behind every per-stage tx
// interface. It wraps an indexed batch so reads observe pending writes, and
// defers collision/hash cache updates until commit.
type transaction struct {
	store *Store
	batch *pebble.Batch
	done  bool

	pendingColl     map[string]struct{}
	pendingCollHash map[uint64]struct{}
	pendingHashes   map[uint64]string
}

var (
	_ scavenge.AccumulatorTx   = (*transaction)(nil)
	_ scavenge.CalculatorTx    = (*transaction)(nil)
	_ scavenge.ChunkExecutorTx = (*transaction)(nil)
	_ scavenge.CleanerTx       = (*transaction)(nil)
)

// Commit atomically persists the mutations plus the checkpoint, then applies
// the collision and hash-cache side effects.
func (t *transaction) Commit(ctx context.Context, cp scavenge.Checkpoint) error {
	if t.done {
		return errors.New("state: transaction already finished")
	}
	cpb, err := scavenge.EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	if err := t.batch.Set(keyCheckpoint, cpb, nil); err != nil {
		return fmt.Errorf("state: stage checkpoint: %w", err)
	}
	if err := t.store.db.CommitBatch(ctx, t.batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	t.done = true

	t.store.mu.Lock()
	for name := range t.pendingColl {
		t.store.collisions[name] = struct{}{}
	}
	for h := range t.pendingCollHash {
		t.store.collHashes[h] = struct{}{}
	}
	t.store.mu.Unlock()
	for h, name := range t.pendingHashes {
		t.store.hashCache.Add(h, name)
	}
	_ = t.batch.Close()
	return nil
}

// Rollback discards the transaction. Safe after Commit.
func (t *transaction) Rollback() {
	if t.done {
		return
	}
	t.done = true
	_ = t.batch.Close()
}

// get reads through the indexed batch, copying the value.
func (t *transaction) get(key []byte) ([]byte, bool, error) {
	val, closer, err := t.batch.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	out := append([]byte(nil), val...)
	closer.Close()
	return out, true, nil
}

func (t *transaction) getJSON(key []byte, out interface{}) (bool, error) {
	b, ok, err := t.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (t *transaction) putJSON(key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.batch.Set(key, b, nil)
}

// ---- collision detection ----

func (t *transaction) isCollision(id string) bool {
	if _, ok := t.pendingColl[id]; ok {
		return true
	}
	return t.store.isCollision(id)
}

// resolve builds the handle a stream's state lives under, honoring pending
// collisions within this transaction.
func (t *transaction) resolve(streamID string) scavenge.StreamHandle {
	h := t.store.hasher.Hash(streamID)
	if t.isCollision(streamID) {
		return scavenge.IDHandle(streamID, h)
	}
	return scavenge.HashHandle(h)
}

// hashUser resolves the first registrant of a hash: pending writes, then the
// LRU cache, then the durable hashes table.
func (t *transaction) hashUser(h uint64) (string, bool, error) {
	if name, ok := t.pendingHashes[h]; ok {
		return name, true, nil
	}
	if name, ok := t.store.hashCache.Get(h); ok {
		return name, true, nil
	}
	b, ok, err := t.get(hashedKey(hashPrefix, h))
	if err != nil || !ok {
		return "", false, err
	}
	name := string(b)
	t.store.hashCache.Add(h, name)
	return name, true, nil
}

// RegisterStream performs hash upkeep and collision detection for one stream
// name seen in the log.
func (t *transaction) RegisterStream(streamID string) error {
	h := t.store.hasher.Hash(streamID)
	stored, ok, err := t.hashUser(h)
	if err != nil {
		return err
	}
	if !ok {
		if err := t.batch.Set(hashedKey(hashPrefix, h), []byte(streamID), nil); err != nil {
			return err
		}
		t.pendingHashes[h] = streamID
		return nil
	}
	if stored == streamID {
		return nil
	}
	// Two names share the hash: both become collisions, and the earlier
	// registrant's rows move to the id side.
	if !t.isCollision(stored) {
		if err := t.markCollision(stored, h); err != nil {
			return err
		}
		if err := t.migrateToIDSide(h, stored); err != nil {
			return err
		}
	}
	if !t.isCollision(streamID) {
		if err := t.markCollision(streamID, t.store.hasher.Hash(streamID)); err != nil {
			return err
		}
	}
	return nil
}

func (t *transaction) markCollision(streamID string, h uint64) error {
	if err := t.batch.Set(namedKey(collPrefix, streamID), nil, nil); err != nil {
		return err
	}
	if err := t.batch.Set(hashedKey(collHashPrefix, h), nil, nil); err != nil {
		return err
	}
	t.pendingColl[streamID] = struct{}{}
	t.pendingCollHash[h] = struct{}{}
	return nil
}

func (t *transaction) migrateToIDSide(h uint64, name string) error {
	tables := []struct{ hashSide, idSide []byte }{
		{origHashPrefix, origIDPrefix},
		{metaHashPrefix, metaIDPrefix},
	}
	for _, tbl := range tables {
		val, ok, err := t.get(hashedKey(tbl.hashSide, h))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := t.batch.Set(namedKey(tbl.idSide, name), val, nil); err != nil {
			return err
		}
		if err := t.batch.Delete(hashedKey(tbl.hashSide, h), nil); err != nil {
			return err
		}
	}
	return nil
}

// ---- accumulator mutations ----

func (t *transaction) getOriginal(handle scavenge.StreamHandle) (scavenge.OriginalStreamData, bool, error) {
	var data scavenge.OriginalStreamData
	key, err := tableKey(origHashPrefix, origIDPrefix, handle)
	if err != nil {
		return data, false, err
	}
	ok, err := t.getJSON(key, &data)
	return data, ok, err
}

func (t *transaction) putOriginal(handle scavenge.StreamHandle, data scavenge.OriginalStreamData) error {
	key, err := tableKey(origHashPrefix, origIDPrefix, handle)
	if err != nil {
		return err
	}
	return t.putJSON(key, data)
}

func (t *transaction) getMetastream(handle scavenge.StreamHandle) (scavenge.MetastreamData, bool, error) {
	var data scavenge.MetastreamData
	key, err := tableKey(metaHashPrefix, metaIDPrefix, handle)
	if err != nil {
		return data, false, err
	}
	ok, err := t.getJSON(key, &data)
	return data, ok, err
}

func (t *transaction) putMetastream(handle scavenge.StreamHandle, data scavenge.MetastreamData) error {
	key, err := tableKey(metaHashPrefix, metaIDPrefix, handle)
	if err != nil {
		return err
	}
	return t.putJSON(key, data)
}

// SetOriginalStreamMetadata replaces the retention metadata of an original
// stream and reactivates it for calculation.
func (t *transaction) SetOriginalStreamMetadata(originalStreamID string, meta logstream.StreamMetadata) error {
	handle := t.resolve(originalStreamID)
	data, ok, err := t.getOriginal(handle)
	if err != nil {
		return err
	}
	if !ok {
		data = scavenge.OriginalStreamData{Status: scavenge.StatusActive}
	}
	data.Metadata = meta
	if !data.IsTombstoned {
		data.Status = scavenge.StatusActive
	}
	return t.putOriginal(handle, data)
}

// RecordMetadataEvent advances the metastream's own discard point past all
// but the newest metadata event and weights the superseded event's chunk.
func (t *transaction) RecordMetadataEvent(metastreamID string, eventNumber, position int64) error {
	handle := t.resolve(metastreamID)
	md, ok, err := t.getMetastream(handle)
	if err != nil {
		return err
	}
	if !ok {
		orig := t.store.names.OriginalStreamOf(metastreamID)
		md = scavenge.MetastreamData{
			OriginalStreamHash:   t.store.hasher.Hash(orig),
			LastMetadataPosition: -1,
		}
	}
	if md.LastMetadataPosition >= 0 && position > md.LastMetadataPosition {
		if err := t.AddChunkWeight(t.store.chunkOf(md.LastMetadataPosition), scavenge.MetadataReplacementWeight); err != nil {
			return err
		}
	}
	md.DiscardPoint = md.DiscardPoint.Or(scavenge.DiscardBefore(eventNumber))
	if position > md.LastMetadataPosition {
		md.LastMetadataPosition = position
	}
	return t.putMetastream(handle, md)
}

// SetTombstone marks an original stream deleted. Its discard point advances
// to spare only the tombstone, and its metastream becomes wholly moot.
func (t *transaction) SetTombstone(originalStreamID string, eventNumber int64) error {
	handle := t.resolve(originalStreamID)
	data, ok, err := t.getOriginal(handle)
	if err != nil {
		return err
	}
	if !ok {
		data = scavenge.OriginalStreamData{Status: scavenge.StatusActive}
	}
	data.IsTombstoned = true
	// only the discard point moves here; the maybe point still marks how far
	// the calculator has weighted, and the calculator raises it to match
	data.DiscardPoint = data.DiscardPoint.Or(scavenge.DiscardBefore(eventNumber))
	if err := t.putOriginal(handle, data); err != nil {
		return err
	}

	metaID := t.store.names.MetastreamOf(originalStreamID)
	metaHandle := t.resolve(metaID)
	md, ok, err := t.getMetastream(metaHandle)
	if err != nil {
		return err
	}
	if !ok {
		md = scavenge.MetastreamData{
			OriginalStreamHash:   t.store.hasher.Hash(originalStreamID),
			LastMetadataPosition: -1,
		}
	}
	md.IsTombstoned = true
	if md.LastMetadataPosition >= 0 {
		// the surviving metadata event is now discardable too
		if err := t.AddChunkWeight(t.store.chunkOf(md.LastMetadataPosition), scavenge.MetadataReplacementWeight); err != nil {
			return err
		}
		md.LastMetadataPosition = -1
	}
	return t.putMetastream(metaHandle, md)
}

// NoteChunkTimestamp widens a chunk's observed timestamp range.
func (t *transaction) NoteChunkTimestamp(chunk int, tsMs int64) error {
	key := chunkKey(chunkRangePrefix, chunk)
	var r scavenge.ChunkTimeRange
	if _, err := t.getJSON(key, &r); err != nil {
		return err
	}
	return t.putJSON(key, r.Extend(tsMs))
}

// ---- calculator mutations ----

// SetOriginalStreamData writes a stream's updated discard pair and status.
func (t *transaction) SetOriginalStreamData(handle scavenge.StreamHandle, data scavenge.OriginalStreamData) error {
	return t.putOriginal(handle, data)
}

// AddChunkWeight deposits discard weight on a logical chunk.
func (t *transaction) AddChunkWeight(chunk int, weight float64) error {
	key := chunkKey(chunkWtPrefix, chunk)
	cur, _, err := t.get(key)
	if err != nil {
		return err
	}
	return t.batch.Set(key, encodeWeight(decodeWeight(cur)+weight), nil)
}

// ---- chunk executor mutations ----

// ResetChunkWeights zeroes the weights of logical chunks [startChunk, endChunk]
// after their physical chunk was rewritten.
func (t *transaction) ResetChunkWeights(startChunk, endChunk int) error {
	for c := startChunk; c <= endChunk; c++ {
		if err := t.batch.Delete(chunkKey(chunkWtPrefix, c), nil); err != nil {
			return err
		}
	}
	return nil
}

// ---- cleaner mutations ----

// DeleteOriginalStream prunes one original stream's state row.
func (t *transaction) DeleteOriginalStream(handle scavenge.StreamHandle) error {
	key, err := tableKey(origHashPrefix, origIDPrefix, handle)
	if err != nil {
		return err
	}
	return t.batch.Delete(key, nil)
}

// DeleteMetastream prunes one metastream's state row.
func (t *transaction) DeleteMetastream(handle scavenge.StreamHandle) error {
	key, err := tableKey(metaHashPrefix, metaIDPrefix, handle)
	if err != nil {
		return err
	}
	return t.batch.Delete(key, nil)
}
