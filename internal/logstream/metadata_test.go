package logstream

import "testing"

func TestParseStreamMetadata(t *testing.T) {
	m, err := ParseStreamMetadata([]byte(`{"$maxCount":3,"$maxAge":60,"$tb":10}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.MaxCount == nil || *m.MaxCount != 3 {
		t.Fatalf("maxCount = %v", m.MaxCount)
	}
	if m.MaxAgeSec == nil || *m.MaxAgeSec != 60 {
		t.Fatalf("maxAge = %v", m.MaxAgeSec)
	}
	if m.TruncateBefore == nil || *m.TruncateBefore != 10 {
		t.Fatalf("tb = %v", m.TruncateBefore)
	}
	ms, ok := m.MaxAgeMs()
	if !ok || ms != 60_000 {
		t.Fatalf("MaxAgeMs = %d %v", ms, ok)
	}
}

func TestParseStreamMetadataEmptyAndUnknown(t *testing.T) {
	m, err := ParseStreamMetadata(nil)
	if err != nil || !m.IsEmpty() {
		t.Fatalf("nil payload: %v %v", m, err)
	}
	m, err = ParseStreamMetadata([]byte(`{"$acl":{"$r":["admin"]},"custom":true}`))
	if err != nil {
		t.Fatalf("unknown keys should be ignored: %v", err)
	}
	if !m.IsEmpty() {
		t.Fatalf("expected empty metadata, got %+v", m)
	}
}

func TestParseStreamMetadataRejectsGarbage(t *testing.T) {
	if _, err := ParseStreamMetadata([]byte(`{`)); err == nil {
		t.Fatalf("expected error for truncated JSON")
	}
}

func TestParseStreamMetadataDropsNonPositive(t *testing.T) {
	m, err := ParseStreamMetadata([]byte(`{"$maxCount":0,"$maxAge":-5,"$tb":-1}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !m.IsEmpty() {
		t.Fatalf("non-positive options should be dropped, got %+v", m)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := StreamMetadata{MaxCount: I64(5), TruncateBefore: I64(2)}
	b, err := EncodeStreamMetadata(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := ParseStreamMetadata(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.MaxCount == nil || *out.MaxCount != 5 || out.TruncateBefore == nil || *out.TruncateBefore != 2 || out.MaxAgeSec != nil {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
