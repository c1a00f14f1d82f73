package bson

import "testing"

func TestNewObjectIDMonotonicCounter(t *testing.T) {
	a := NewObjectID()
	b := NewObjectID()
	if a == b {
		t.Fatal("expected two consecutive ids to differ")
	}
	if a.Timestamp().After(b.Timestamp().Add(1)) {
		t.Error("expected timestamps to be non-decreasing across consecutive ids")
	}
	ca := uint32(a[9])<<16 | uint32(a[10])<<8 | uint32(a[11])
	cb := uint32(b[9])<<16 | uint32(b[10])<<8 | uint32(b[11])
	if cb != (ca+1)&0x00FFFFFF {
		t.Errorf("expected counter to increment by one, got %d then %d", ca, cb)
	}
}

func TestObjectIDHexRoundTrip(t *testing.T) {
	id := NewObjectID()
	hex := id.Hex()
	if len(hex) != 24 {
		t.Fatalf("expected 24-character hex string, got %d: %q", len(hex), hex)
	}
	got, err := ObjectIDFromHex(hex)
	if err != nil {
		t.Fatalf("ObjectIDFromHex: %v", err)
	}
	if got != id {
		t.Error("expected round-trip through hex to preserve the id")
	}
}

func TestObjectIDFromHexRejectsWrongLength(t *testing.T) {
	if _, err := ObjectIDFromHex("abcd"); err == nil {
		t.Error("expected short hex string to fail")
	}
	if _, err := ObjectIDFromHex("not-hex-not-hex-not-hex1"); err == nil {
		t.Error("expected non-hex string to fail")
	}
}
