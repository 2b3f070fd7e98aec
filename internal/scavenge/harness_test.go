package scavenge_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/rzbill/scour/internal/logstream"
	"github.com/rzbill/scour/internal/scavenge"
	"github.com/rzbill/scour/internal/scavenge/state"
	pebblestore "github.com/rzbill/scour/internal/storage/pebble"
	logpkg "github.com/rzbill/scour/pkg/log"
)

// The harness models the external collaborators in memory: a chunked log,
// the secondary index, and the scavenge-points stream. Records occupy a
// fixed number of bytes so tests place them into chunks deterministically.

const recSize = 100

type memRecord struct {
	pos  int64
	prep *logstream.Prepare
	sys  *logstream.SystemRecord
}

type memLog struct {
	mu        sync.Mutex
	chunkSize int64
	tail      int64
	records   []memRecord
}

func (l *memLog) append(rec memRecord) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.tail
	rec.pos = pos
	if rec.prep != nil {
		rec.prep.LogPosition = pos
	}
	if rec.sys != nil {
		rec.sys.LogPosition = pos
	}
	l.records = append(l.records, rec)
	l.tail += recSize
	return pos
}

// skipToChunk advances the tail to the start of a chunk, leaving a gap.
func (l *memLog) skipToChunk(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p := int64(n) * l.chunkSize; p > l.tail {
		l.tail = p
	}
}

func (l *memLog) chunkOf(pos int64) int { return int(pos / l.chunkSize) }

func (l *memLog) chunkRecords(n int) []memRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []memRecord
	for _, r := range l.records {
		if l.chunkOf(r.pos) == n {
			out = append(out, r)
		}
	}
	return out
}

func (l *memLog) replaceChunk(n int, kept []memRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.records[:0]
	for _, r := range l.records {
		if l.chunkOf(r.pos) != n {
			out = append(out, r)
		}
	}
	out = append(out, kept...)
	sort.Slice(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	l.records = append([]memRecord(nil), out...)
}

// streamEvents lists the surviving prepares of one stream in order.
func (l *memLog) streamEvents(streamID string) []logstream.Prepare {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logstream.Prepare
	for _, r := range l.records {
		if r.prep != nil && r.prep.StreamID == streamID {
			out = append(out, *r.prep)
		}
	}
	return out
}

// ---- chunk manager ----

type memChunkManager struct {
	log *memLog
	// completeErr, when set, fails the next writer Complete.
	completeErr error
}

type memChunkReader struct {
	chunk   int
	log     *memLog
	records []memRecord
	idx     int
}

func (m *memChunkManager) ChunkForNumber(n int) (scavenge.ChunkReader, error) {
	return &memChunkReader{chunk: n, log: m.log, records: m.log.chunkRecords(n)}, nil
}

func (m *memChunkManager) ChunkForPosition(pos int64) (scavenge.ChunkReader, error) {
	return m.ChunkForNumber(m.log.chunkOf(pos))
}

func (r *memChunkReader) ChunkStartNumber() int     { return r.chunk }
func (r *memChunkReader) ChunkEndNumber() int       { return r.chunk }
func (r *memChunkReader) ChunkStartPosition() int64 { return int64(r.chunk) * r.log.chunkSize }
func (r *memChunkReader) ChunkEndPosition() int64   { return int64(r.chunk+1) * r.log.chunkSize }
func (r *memChunkReader) Name() string              { return fmt.Sprintf("chunk-%06d", r.chunk) }
func (r *memChunkReader) IsReadOnly() bool          { return true }
func (r *memChunkReader) FileSize() int64           { return int64(len(r.records)) * recSize }

func (r *memChunkReader) NextInto(bufs *scavenge.RecordBuffers) (scavenge.RecordKind, error) {
	if r.idx >= len(r.records) {
		return scavenge.RecordEOF, nil
	}
	rec := r.records[r.idx]
	r.idx++
	if rec.sys != nil {
		bufs.System = *rec.sys
		return scavenge.RecordSystem, nil
	}
	bufs.Prepare = *rec.prep
	return scavenge.RecordPrepare, nil
}

type memChunkWriter struct {
	mgr    *memChunkManager
	chunk  int
	kept   []memRecord
	abort  bool
	delete bool
	done   bool
}

func (m *memChunkManager) CreateWriterFor(source scavenge.ChunkReader) (scavenge.ChunkWriter, error) {
	return &memChunkWriter{mgr: m, chunk: source.ChunkStartNumber()}, nil
}

func (w *memChunkWriter) WritePrepare(p *logstream.Prepare) error {
	cp := *p
	cp.Payload = append([]byte(nil), p.Payload...)
	w.kept = append(w.kept, memRecord{pos: cp.LogPosition, prep: &cp})
	return nil
}

func (w *memChunkWriter) WriteSystem(r *logstream.SystemRecord) error {
	cp := *r
	cp.Payload = append([]byte(nil), r.Payload...)
	w.kept = append(w.kept, memRecord{pos: cp.LogPosition, sys: &cp})
	return nil
}

func (w *memChunkWriter) Complete() (string, int64, error) {
	if w.mgr.completeErr != nil {
		err := w.mgr.completeErr
		w.mgr.completeErr = nil
		return "", 0, err
	}
	w.done = true
	w.mgr.log.replaceChunk(w.chunk, w.kept)
	return fmt.Sprintf("chunk-%06d.tmp", w.chunk), int64(len(w.kept)) * recSize, nil
}

func (w *memChunkWriter) Abort(deleteImmediately bool) {
	if w.done {
		return
	}
	w.abort = true
	w.delete = deleteImmediately
}

// ---- index ----

type memIndexEntry struct {
	stream string
	hash   uint64
	evnum  int64
	pos    int64
}

type memIndex struct {
	mu      sync.Mutex
	hasher  scavenge.Hasher
	entries []memIndexEntry
}

func (ix *memIndex) add(stream string, evnum, pos int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = append(ix.entries, memIndexEntry{
		stream: stream, hash: ix.hasher.Hash(stream), evnum: evnum, pos: pos,
	})
}

func (ix *memIndex) matches(e memIndexEntry, handle scavenge.StreamHandle) bool {
	switch handle.Kind {
	case scavenge.HandleHash:
		return e.hash == handle.Hash
	case scavenge.HandleID:
		return e.stream == handle.StreamID
	}
	return false
}

func (ix *memIndex) LastEventNumber(handle scavenge.StreamHandle, sp scavenge.ScavengePoint) (int64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	last := int64(-1)
	for _, e := range ix.entries {
		if e.pos < sp.Position && ix.matches(e, handle) && e.evnum > last {
			last = e.evnum
		}
	}
	return last, nil
}

func (ix *memIndex) ReadEventInfoForward(handle scavenge.StreamHandle, from int64, maxCount int, sp scavenge.ScavengePoint) ([]scavenge.EventInfo, bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var all []scavenge.EventInfo
	for _, e := range ix.entries {
		if e.pos < sp.Position && e.evnum >= from && ix.matches(e, handle) {
			all = append(all, scavenge.EventInfo{EventNumber: e.evnum, LogPosition: e.pos})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EventNumber < all[j].EventNumber })
	if len(all) <= maxCount {
		return all, true, nil
	}
	return all[:maxCount], false, nil
}

func (ix *memIndex) StreamIDAtPosition(pos int64) (string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, e := range ix.entries {
		if e.pos == pos {
			return e.stream, nil
		}
	}
	return "", fmt.Errorf("no index entry at position %d", pos)
}

func (ix *memIndex) Scavenge(ctx context.Context, threads int, shouldKeep func(scavenge.IndexEntry) (bool, error)) error {
	// shouldKeep may call back into the index (e.g. StreamIDAtPosition), so
	// the lock must not be held across the callback; snapshot entries first.
	ix.mu.Lock()
	entries := append([]memIndexEntry(nil), ix.entries...)
	ix.mu.Unlock()

	var out []memIndexEntry
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		keep, err := shouldKeep(scavenge.IndexEntry{StreamHash: e.hash, EventNumber: e.evnum, LogPosition: e.pos})
		if err != nil {
			return err
		}
		if keep {
			out = append(out, e)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = out
	return nil
}

func (ix *memIndex) entriesFor(stream string) []memIndexEntry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var out []memIndexEntry
	for _, e := range ix.entries {
		if e.stream == stream {
			out = append(out, e)
		}
	}
	return out
}

// ---- clock and scavenge points ----

type testClock struct{ ms int64 }

func (c *testClock) NowMs() int64 { return c.ms }

type memPoints struct {
	h *harness
}

func (p *memPoints) LatestScavengePoint(ctx context.Context) (*scavenge.ScavengePoint, error) {
	var latest *scavenge.ScavengePoint
	for _, prep := range p.h.log.streamEvents(logstream.ScavengePointsStream) {
		if prep.IsScavengePoint() {
			sp := p.h.pointFrom(prep)
			latest = &sp
		}
	}
	return latest, nil
}

func (p *memPoints) AppendScavengePoint(ctx context.Context, threshold int64) (scavenge.ScavengePoint, error) {
	return p.h.addScavengePoint(threshold), nil
}

// ---- harness ----

type harness struct {
	t       *testing.T
	opts    scavenge.Options
	log     *memLog
	chunks  *memChunkManager
	index   *memIndex
	clock   *testClock
	store   *state.Store
	points  *memPoints
	hasher  scavenge.Hasher
	nextNum map[string]int64
	spCount int64
	spThres map[int64]int64 // threshold per SP event number
	spTimes map[int64]int64 // effectiveNow per SP event number

	// reporter overrides the noop default when set before scavenger().
	reporter scavenge.ScavengerLog
}

type harnessConfig struct {
	chunkSize int64
	options   func(*scavenge.Options)
	hasher    scavenge.Hasher
}

func newHarness(t *testing.T, hc harnessConfig) *harness {
	t.Helper()
	if hc.chunkSize == 0 {
		hc.chunkSize = 1 << 20
	}
	hasher := hc.hasher
	if hasher == nil {
		hasher = logstream.Hasher64{}
	}
	opts := scavenge.DefaultOptions()
	opts.ChunkSize = hc.chunkSize
	opts.Threshold = 0
	if hc.options != nil {
		hc.options(&opts)
	}
	opts = opts.Normalize()

	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := state.Open(state.Options{
		DB:               db,
		Hasher:           hasher,
		Names:            logstream.Naming{},
		ChunkForPosition: opts.ChunkForPosition,
		Logger:           logpkg.NewTestLogger(),
	})
	if err != nil {
		t.Fatalf("open state: %v", err)
	}

	h := &harness{
		t:       t,
		opts:    opts,
		log:     &memLog{chunkSize: hc.chunkSize},
		index:   &memIndex{hasher: hasher},
		clock:   &testClock{ms: 1_000_000},
		store:   store,
		hasher:  hasher,
		nextNum: make(map[string]int64),
		spThres: make(map[int64]int64),
		spTimes: make(map[int64]int64),
	}
	h.chunks = &memChunkManager{log: h.log}
	h.points = &memPoints{h: h}
	return h
}

func (h *harness) scavenger() *scavenge.Scavenger {
	reporter := h.reporter
	if reporter == nil {
		reporter = scavenge.NoopReporter{}
	}
	s, err := scavenge.NewScavenger(scavenge.Config{
		State:          h.store,
		Chunks:         h.chunks,
		Index:          h.index,
		IndexScavenger: h.index,
		Points:         h.points,
		Names:          logstream.Naming{},
		Clock:          h.clock,
		Options:        h.opts,
		Logger:         logpkg.NewTestLogger(),
		Reporter:       reporter,
	})
	if err != nil {
		h.t.Fatalf("new scavenger: %v", err)
	}
	return s
}

func (h *harness) run() scavenge.Result {
	h.t.Helper()
	result, err := h.scavenger().Run(context.Background(), "test-run", scavenge.RunOptions{})
	if err != nil {
		h.t.Fatalf("scavenge run: %v (result %s)", err, result)
	}
	return result
}

// tsMs converts a scenario time slot into a clock value.
func tsMs(slot int64) int64 { return 1_000_000 + slot*1000 }

func (h *harness) appendPrepare(stream string, evnum, slot int64, flags logstream.PrepareFlags, payload []byte) int64 {
	prep := &logstream.Prepare{
		StreamID:    stream,
		EventNumber: evnum,
		TimestampMs: tsMs(slot),
		Flags:       flags | logstream.FlagSelfCommitted,
		Payload:     payload,
	}
	pos := h.log.append(memRecord{prep: prep})
	h.index.add(stream, evnum, pos)
	if n := evnum + 1; n > h.nextNum[stream] {
		h.nextNum[stream] = n
	}
	return pos
}

func (h *harness) appendEvent(stream string, evnum, slot int64) int64 {
	return h.appendPrepare(stream, evnum, slot, 0, []byte("payload"))
}

func (h *harness) appendMetadata(origStream string, evnum, slot int64, metaJSON string) int64 {
	return h.appendPrepare(logstream.MetastreamOf(origStream), evnum, slot, logstream.FlagMetadata, []byte(metaJSON))
}

func (h *harness) appendTombstone(stream string, evnum, slot int64) int64 {
	return h.appendPrepare(stream, evnum, slot, logstream.FlagTombstone, nil)
}

// addScavengePoint appends the marker record at the current tail.
func (h *harness) addScavengePoint(threshold int64) scavenge.ScavengePoint {
	num := h.spCount
	h.spCount++
	now := h.clock.NowMs()
	h.spThres[num] = threshold
	h.spTimes[num] = now
	pos := h.appendPrepare(logstream.ScavengePointsStream, num, 0, logstream.FlagScavengePoint, nil)
	return scavenge.ScavengePoint{
		Position:       pos,
		EventNumber:    num,
		EffectiveNowMs: now,
		Threshold:      threshold,
	}
}

func (h *harness) pointFrom(prep logstream.Prepare) scavenge.ScavengePoint {
	return scavenge.ScavengePoint{
		Position:       prep.LogPosition,
		EventNumber:    prep.EventNumber,
		EffectiveNowMs: h.spTimes[prep.EventNumber],
		Threshold:      h.spThres[prep.EventNumber],
	}
}

// survivors summarizes the surviving prepares of a chunk as
// "stream/evnum" strings in log order.
func (h *harness) survivors(chunk int) []string {
	var out []string
	for _, r := range h.log.chunkRecords(chunk) {
		if r.prep != nil {
			out = append(out, fmt.Sprintf("%s/%d", r.prep.StreamID, r.prep.EventNumber))
		}
	}
	return out
}

func (h *harness) originalData(stream string) (scavenge.OriginalStreamData, bool) {
	h.t.Helper()
	handle, err := h.store.ResolveStream(stream)
	if err != nil {
		h.t.Fatalf("resolve %s: %v", stream, err)
	}
	data, ok, err := h.store.OriginalStreamByHandle(handle)
	if err != nil {
		h.t.Fatalf("load %s: %v", stream, err)
	}
	return data, ok
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
