package logstream

import (
	"encoding/json"
	"fmt"
)

// StreamMetadata is the projection of the latest metadata event written to a
// stream's metastream. Absent options are nil.
type StreamMetadata struct {
	// MaxCount keeps only the last N events.
	MaxCount *int64 `json:"$maxCount,omitempty"`
	// MaxAgeSec drops events older than this many seconds.
	MaxAgeSec *int64 `json:"$maxAge,omitempty"`
	// TruncateBefore drops events with number < N.
	TruncateBefore *int64 `json:"$tb,omitempty"`
}

// IsEmpty reports whether no retention option is set.
func (m StreamMetadata) IsEmpty() bool {
	return m.MaxCount == nil && m.MaxAgeSec == nil && m.TruncateBefore == nil
}

// MaxAgeMs returns the max-age window in milliseconds and whether it is set.
func (m StreamMetadata) MaxAgeMs() (int64, bool) {
	if m.MaxAgeSec == nil {
		return 0, false
	}
	return *m.MaxAgeSec * 1000, true
}

// ParseStreamMetadata decodes a metadata event payload. Unknown keys are
// ignored so newer writers stay readable.
func ParseStreamMetadata(payload []byte) (StreamMetadata, error) {
	var m StreamMetadata
	if len(payload) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return StreamMetadata{}, fmt.Errorf("parse stream metadata: %w", err)
	}
	if m.MaxCount != nil && *m.MaxCount <= 0 {
		m.MaxCount = nil
	}
	if m.MaxAgeSec != nil && *m.MaxAgeSec <= 0 {
		m.MaxAgeSec = nil
	}
	if m.TruncateBefore != nil && *m.TruncateBefore < 0 {
		m.TruncateBefore = nil
	}
	return m, nil
}

// EncodeStreamMetadata renders metadata back to its event payload form.
func EncodeStreamMetadata(m StreamMetadata) ([]byte, error) {
	return json.Marshal(m)
}

// I64 returns a pointer to v, for building metadata literals.
func I64(v int64) *int64 { return &v }
