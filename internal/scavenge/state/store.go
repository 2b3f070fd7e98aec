package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rzbill/scour/internal/scavenge"
	pebblestore "github.com/rzbill/scour/internal/storage/pebble"
	logpkg "github.com/rzbill/scour/pkg/log"
)

// DefaultHashCacheSize bounds the hash-to-name lookup cache.
const DefaultHashCacheSize = 10_000

// Options configures a Store.
type Options struct {
	DB     *pebblestore.DB
	Hasher scavenge.Hasher
	Names  scavenge.MetastreamLookup
	// ChunkForPosition maps log positions to logical chunk numbers when the
	// store attributes weights itself (metadata replacement, tombstones).
	ChunkForPosition func(pos int64) int
	HashCacheSize    int
	Logger           logpkg.Logger
}

// Store is the concrete scavenge state. It satisfies every per-stage state
// interface in the scavenge package.
type Store struct {
	db      *pebblestore.DB
	hasher  scavenge.Hasher
	names   scavenge.MetastreamLookup
	chunkOf func(pos int64) int
	logger  logpkg.Logger

	// collisions are enumerable and small; both views are kept in memory
	// and maintained only by committed transactions.
	mu         sync.RWMutex
	collisions map[string]struct{}
	collHashes map[uint64]struct{}

	hashCache *lru.Cache[uint64, string]
}

var _ scavenge.State = (*Store)(nil)

// Open loads the collision set and prepares the store.
func Open(opts Options) (*Store, error) {
	if opts.DB == nil {
		return nil, errors.New("state: Options.DB is required")
	}
	if opts.Hasher == nil || opts.Names == nil {
		return nil, errors.New("state: Hasher and Names are required")
	}
	if opts.ChunkForPosition == nil {
		return nil, errors.New("state: ChunkForPosition is required")
	}
	if opts.HashCacheSize <= 0 {
		opts.HashCacheSize = DefaultHashCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	cache, err := lru.New[uint64, string](opts.HashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("state: hash cache: %w", err)
	}

	s := &Store{
		db:         opts.DB,
		hasher:     opts.Hasher,
		names:      opts.Names,
		chunkOf:    opts.ChunkForPosition,
		logger:     opts.Logger.WithComponent("scavenge-state"),
		collisions: make(map[string]struct{}),
		collHashes: make(map[uint64]struct{}),
		hashCache:  cache,
	}
	if err := s.loadCollisions(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadCollisions() error {
	lo, hi := keyRange(collPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return fmt.Errorf("state: load collisions: %w", err)
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		name := nameFromKey(collPrefix, iter.Key())
		s.collisions[name] = struct{}{}
		s.collHashes[s.hasher.Hash(name)] = struct{}{}
	}
	return nil
}

// ---- transactions ----

// BeginAccumulation opens a transaction for one accumulated chunk.
func (s *Store) BeginAccumulation() (scavenge.AccumulatorTx, error) { return s.begin() }

// BeginCalculation opens a transaction for one calculated stream batch.
func (s *Store) BeginCalculation() (scavenge.CalculatorTx, error) { return s.begin() }

// BeginChunkExecution opens a transaction for one executed chunk.
func (s *Store) BeginChunkExecution() (scavenge.ChunkExecutorTx, error) { return s.begin() }

// BeginCleaning opens a transaction for a cleanup batch.
func (s *Store) BeginCleaning() (scavenge.CleanerTx, error) { return s.begin() }

func (s *Store) begin() (*transaction, error) {
	return &transaction{
		store:           s,
		batch:           s.db.NewIndexedBatch(),
		pendingColl:     make(map[string]struct{}),
		pendingCollHash: make(map[uint64]struct{}),
		pendingHashes:   make(map[uint64]string),
	}, nil
}

// ---- checkpoint ----

// LoadCheckpoint reads the durable checkpoint row.
func (s *Store) LoadCheckpoint() (scavenge.Checkpoint, error) {
	b, err := s.db.Get(keyCheckpoint)
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return scavenge.CheckpointNone, nil
		}
		return scavenge.CheckpointNone, fmt.Errorf("state: load checkpoint: %w", err)
	}
	return scavenge.DecodeCheckpoint(b)
}

// CommitCheckpoint persists a checkpoint-only transition.
func (s *Store) CommitCheckpoint(ctx context.Context, cp scavenge.Checkpoint) error {
	tx, err := s.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return tx.Commit(ctx, cp)
}

// ---- reads ----

func (s *Store) isCollision(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collisions[id]
	return ok
}

// IsCollidingHash reports whether index entries under this hash are
// ambiguous.
func (s *Store) IsCollidingHash(hash uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collHashes[hash]
	return ok, nil
}

// ResolveStream builds the handle a stream's state lives under: compact
// while its hash is unique, explicit once it collides.
func (s *Store) ResolveStream(streamID string) (scavenge.StreamHandle, error) {
	h := s.hasher.Hash(streamID)
	if s.isCollision(streamID) {
		return scavenge.IDHandle(streamID, h), nil
	}
	return scavenge.HashHandle(h), nil
}

// Collisions lists every known colliding stream name.
func (s *Store) Collisions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.collisions))
	for name := range s.collisions {
		out = append(out, name)
	}
	return out, nil
}

func tableKey(hashSide, idSide []byte, handle scavenge.StreamHandle) ([]byte, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	switch handle.Kind {
	case scavenge.HandleHash:
		return hashedKey(hashSide, handle.Hash), nil
	case scavenge.HandleID:
		return namedKey(idSide, handle.StreamID), nil
	}
	return nil, fmt.Errorf("unusable handle %s", handle)
}

func (s *Store) getJSON(key []byte, out interface{}) (bool, error) {
	b, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// OriginalStreamByHandle resolves one original stream's data.
func (s *Store) OriginalStreamByHandle(handle scavenge.StreamHandle) (scavenge.OriginalStreamData, bool, error) {
	var data scavenge.OriginalStreamData
	key, err := tableKey(origHashPrefix, origIDPrefix, handle)
	if err != nil {
		return data, false, err
	}
	ok, err := s.getJSON(key, &data)
	return data, ok, err
}

// MetastreamByHandle resolves one metastream's data.
func (s *Store) MetastreamByHandle(handle scavenge.StreamHandle) (scavenge.MetastreamData, bool, error) {
	var data scavenge.MetastreamData
	key, err := tableKey(metaHashPrefix, metaIDPrefix, handle)
	if err != nil {
		return data, false, err
	}
	ok, err := s.getJSON(key, &data)
	return data, ok, err
}

// ExecutionInfoForStream resolves the discard view of a stream by name.
func (s *Store) ExecutionInfoForStream(streamID string) (scavenge.ExecutionInfo, bool, error) {
	handle, err := s.ResolveStream(streamID)
	if err != nil {
		return scavenge.ExecutionInfo{}, false, err
	}
	if s.names.IsMetastream(streamID) {
		md, ok, err := s.MetastreamByHandle(handle)
		if err != nil || !ok {
			return scavenge.ExecutionInfo{}, false, err
		}
		return metastreamExecInfo(md), true, nil
	}
	od, ok, err := s.OriginalStreamByHandle(handle)
	if err != nil || !ok {
		return scavenge.ExecutionInfo{}, false, err
	}
	return originalExecInfo(od), true, nil
}

// ExecutionInfoForHandle resolves the discard view by handle, searching the
// original table first, then the metastream table.
func (s *Store) ExecutionInfoForHandle(handle scavenge.StreamHandle) (scavenge.ExecutionInfo, bool, error) {
	od, ok, err := s.OriginalStreamByHandle(handle)
	if err != nil {
		return scavenge.ExecutionInfo{}, false, err
	}
	if ok {
		return originalExecInfo(od), true, nil
	}
	md, ok, err := s.MetastreamByHandle(handle)
	if err != nil || !ok {
		return scavenge.ExecutionInfo{}, false, err
	}
	return metastreamExecInfo(md), true, nil
}

func originalExecInfo(od scavenge.OriginalStreamData) scavenge.ExecutionInfo {
	info := scavenge.ExecutionInfo{
		IsTombstoned:      od.IsTombstoned,
		DiscardPoint:      od.DiscardPoint,
		MaybeDiscardPoint: od.MaybeDiscardPoint,
	}
	if ms, ok := od.Metadata.MaxAgeMs(); ok {
		info.MaxAgeMs = ms
		info.HasMaxAge = true
	}
	return info
}

func metastreamExecInfo(md scavenge.MetastreamData) scavenge.ExecutionInfo {
	return scavenge.ExecutionInfo{
		IsMetastream:      true,
		IsTombstoned:      md.IsTombstoned,
		DiscardPoint:      md.DiscardPoint,
		MaybeDiscardPoint: md.DiscardPoint,
	}
}

// ChunkTimeRange returns a chunk's observed timestamp envelope.
func (s *Store) ChunkTimeRange(chunk int) (scavenge.ChunkTimeRange, bool, error) {
	var r scavenge.ChunkTimeRange
	ok, err := s.getJSON(chunkKey(chunkRangePrefix, chunk), &r)
	return r, ok, err
}

// SumChunkWeights totals weights over logical chunks [startChunk, endChunk].
func (s *Store) SumChunkWeights(startChunk, endChunk int) (float64, error) {
	lo := chunkKey(chunkWtPrefix, startChunk)
	hi := chunkKey(chunkWtPrefix, endChunk+1)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, fmt.Errorf("state: sum weights: %w", err)
	}
	defer iter.Close()
	var sum float64
	for ok := iter.First(); ok; ok = iter.Next() {
		sum += decodeWeight(iter.Value())
	}
	return sum, nil
}

// ChunkWeights lists every non-zero chunk weight, for diagnostics.
func (s *Store) ChunkWeights() (map[int]float64, error) {
	lo, hi := keyRange(chunkWtPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("state: chunk weights: %w", err)
	}
	defer iter.Close()
	out := make(map[int]float64)
	for ok := iter.First(); ok; ok = iter.Next() {
		out[chunkFromKey(chunkWtPrefix, iter.Key())] = decodeWeight(iter.Value())
	}
	return out, nil
}
