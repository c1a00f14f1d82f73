package bson

import "testing"

func TestDocumentSetGetOrderAndDelete(t *testing.T) {
	doc := NewDocument()
	doc.Set("a", Int32(1))
	doc.Set("b", Int32(2))
	doc.Set("c", Int32(3))

	if got := doc.Keys(); got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("expected insertion order a,b,c, got %v", got)
	}

	doc.Set("b", Int32(20))
	v, _ := doc.Get("b")
	if n, _ := v.AsInt32(); n != 20 {
		t.Errorf("expected overwrite to update value in place")
	}
	if got := doc.Keys(); got[1] != "b" {
		t.Fatalf("expected overwrite to preserve original position, got %v", got)
	}

	doc.Delete("b")
	if _, ok := doc.Get("b"); ok {
		t.Error("expected b to be gone after delete")
	}
	if doc.Len() != 2 {
		t.Errorf("expected 2 fields remaining, got %d", doc.Len())
	}
}

func TestValueAsFloat64Widening(t *testing.T) {
	cases := []Value{Int32(7), Int64(7), Double(7)}
	for _, v := range cases {
		f, ok := v.AsFloat64()
		if !ok || f != 7 {
			t.Errorf("kind %s: expected widened float64 7, got %v ok=%v", v.Kind(), f, ok)
		}
	}
	if _, ok := String("x").AsFloat64(); ok {
		t.Error("expected non-numeric kind to fail widening")
	}
}

func TestValueIsNull(t *testing.T) {
	if !Null().IsNull() {
		t.Error("expected Null() to report IsNull true")
	}
	if Int32(0).IsNull() {
		t.Error("expected zero int32 to not be null")
	}
}
