package state

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/scour/internal/scavenge"
)

// Enumeration pages entries in stable handle order: the hash side ascending
// by hash, then the id side ascending by name. Restarting from the last
// returned handle reproduces the same work prefix.

// ActiveOriginalStreams pages Active streams after the given handle.
func (s *Store) ActiveOriginalStreams(after *scavenge.StreamHandle, limit int) ([]scavenge.StreamRecord, error) {
	return s.enumerateOriginals(after, limit, true)
}

// EnumerateOriginalStreams pages all original streams after the given handle.
func (s *Store) EnumerateOriginalStreams(after *scavenge.StreamHandle, limit int) ([]scavenge.StreamRecord, error) {
	return s.enumerateOriginals(after, limit, false)
}

func (s *Store) enumerateOriginals(after *scavenge.StreamHandle, limit int, onlyActive bool) ([]scavenge.StreamRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	out := make([]scavenge.StreamRecord, 0, limit)

	appendRec := func(handle scavenge.StreamHandle, val []byte) error {
		var data scavenge.OriginalStreamData
		if err := json.Unmarshal(val, &data); err != nil {
			return fmt.Errorf("state: decode original stream %s: %w", handle, err)
		}
		if onlyActive && data.Status != scavenge.StatusActive {
			return nil
		}
		out = append(out, scavenge.StreamRecord{Handle: handle, Data: data})
		return nil
	}

	if after == nil || after.Kind == scavenge.HandleHash {
		lo, hi := keyRange(origHashPrefix)
		if after != nil {
			lo = append(hashedKey(origHashPrefix, after.Hash), 0x00)
		}
		if err := s.scan(lo, hi, func(key, val []byte) error {
			if len(out) >= limit {
				return errStopScan
			}
			return appendRec(scavenge.HashHandle(hashFromKey(origHashPrefix, key)), val)
		}); err != nil {
			return nil, err
		}
		if len(out) >= limit {
			return out, nil
		}
	}

	lo, hi := keyRange(origIDPrefix)
	if after != nil && after.Kind == scavenge.HandleID {
		lo = append(namedKey(origIDPrefix, after.StreamID), 0x00)
	}
	if err := s.scan(lo, hi, func(key, val []byte) error {
		if len(out) >= limit {
			return errStopScan
		}
		name := nameFromKey(origIDPrefix, key)
		return appendRec(scavenge.IDHandle(name, s.hasher.Hash(name)), val)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// EnumerateMetastreams pages all metastream entries after the given handle.
func (s *Store) EnumerateMetastreams(after *scavenge.StreamHandle, limit int) ([]scavenge.MetastreamRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	out := make([]scavenge.MetastreamRecord, 0, limit)

	appendRec := func(handle scavenge.StreamHandle, val []byte) error {
		var data scavenge.MetastreamData
		if err := json.Unmarshal(val, &data); err != nil {
			return fmt.Errorf("state: decode metastream %s: %w", handle, err)
		}
		out = append(out, scavenge.MetastreamRecord{Handle: handle, Data: data})
		return nil
	}

	if after == nil || after.Kind == scavenge.HandleHash {
		lo, hi := keyRange(metaHashPrefix)
		if after != nil {
			lo = append(hashedKey(metaHashPrefix, after.Hash), 0x00)
		}
		if err := s.scan(lo, hi, func(key, val []byte) error {
			if len(out) >= limit {
				return errStopScan
			}
			return appendRec(scavenge.HashHandle(hashFromKey(metaHashPrefix, key)), val)
		}); err != nil {
			return nil, err
		}
		if len(out) >= limit {
			return out, nil
		}
	}

	lo, hi := keyRange(metaIDPrefix)
	if after != nil && after.Kind == scavenge.HandleID {
		lo = append(namedKey(metaIDPrefix, after.StreamID), 0x00)
	}
	if err := s.scan(lo, hi, func(key, val []byte) error {
		if len(out) >= limit {
			return errStopScan
		}
		name := nameFromKey(metaIDPrefix, key)
		return appendRec(scavenge.IDHandle(name, s.hasher.Hash(name)), val)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

var errStopScan = fmt.Errorf("stop scan")

func (s *Store) scan(lo, hi []byte, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return fmt.Errorf("state: scan: %w", err)
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			if err == errStopScan {
				return nil
			}
			return err
		}
	}
	return nil
}
