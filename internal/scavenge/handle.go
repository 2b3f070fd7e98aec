package scavenge

import (
	"fmt"
	"strconv"
)

// HandleKind discriminates the two stream handle variants.
type HandleKind uint8

const (
	// HandleNone is the zero handle.
	HandleNone HandleKind = iota
	// HandleHash addresses a stream whose hash is known not to collide.
	HandleHash
	// HandleID addresses a stream by name because its hash collides.
	HandleID
)

// StreamHandle is a tagged reference to a stream: compact while the stream's
// hash is unique, explicit once it collides. Consumers switch exhaustively on
// Kind.
type StreamHandle struct {
	Kind     HandleKind `json:"kind"`
	Hash     uint64     `json:"hash"`
	StreamID string     `json:"streamId,omitempty"`
}

// HashHandle builds the compact variant.
func HashHandle(hash uint64) StreamHandle {
	return StreamHandle{Kind: HandleHash, Hash: hash}
}

// IDHandle builds the explicit variant for a colliding hash.
func IDHandle(streamID string, hash uint64) StreamHandle {
	return StreamHandle{Kind: HandleID, Hash: hash, StreamID: streamID}
}

// IsNone reports whether the handle is unset.
func (h StreamHandle) IsNone() bool { return h.Kind == HandleNone }

func (h StreamHandle) String() string {
	switch h.Kind {
	case HandleHash:
		return "hash:" + strconv.FormatUint(h.Hash, 16)
	case HandleID:
		return "id:" + h.StreamID
	default:
		return "none"
	}
}

// Validate rejects malformed handles before they reach state tables.
func (h StreamHandle) Validate() error {
	switch h.Kind {
	case HandleHash:
		return nil
	case HandleID:
		if h.StreamID == "" {
			return fmt.Errorf("id handle without stream id")
		}
		return nil
	default:
		return fmt.Errorf("unusable handle kind %d", h.Kind)
	}
}
