package scavenge

import "testing"

func TestHandleVariants(t *testing.T) {
	h := HashHandle(0xdeadbeef)
	if h.Kind != HandleHash || h.Hash != 0xdeadbeef {
		t.Fatalf("hash handle = %+v", h)
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	i := IDHandle("orders-1", 0xdeadbeef)
	if i.Kind != HandleID || i.StreamID != "orders-1" || i.Hash != 0xdeadbeef {
		t.Fatalf("id handle = %+v", i)
	}
	if err := i.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestHandleValidateRejectsMalformed(t *testing.T) {
	var zero StreamHandle
	if !zero.IsNone() {
		t.Fatalf("zero handle should be none")
	}
	if err := zero.Validate(); err == nil {
		t.Fatalf("none handle must not validate")
	}
	if err := (StreamHandle{Kind: HandleID}).Validate(); err == nil {
		t.Fatalf("id handle without name must not validate")
	}
}

func TestHandleString(t *testing.T) {
	if got := HashHandle(0xff).String(); got != "hash:ff" {
		t.Fatalf("String = %q", got)
	}
	if got := IDHandle("a", 1).String(); got != "id:a" {
		t.Fatalf("String = %q", got)
	}
}
