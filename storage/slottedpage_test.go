package storage

import (
	"bytes"
	"testing"
)

func TestSlottedPageInsertGet(t *testing.T) {
	p := NewPage(0, PageTypeData)

	i0, err := p.InsertRecord([]byte("alpha"))
	if err != nil {
		t.Fatalf("insert 0: %v", err)
	}
	i1, err := p.InsertRecord([]byte("beta"))
	if err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if i0 != 0 || i1 != 1 {
		t.Fatalf("expected slot indices 0,1, got %d,%d", i0, i1)
	}

	for slot, want := range map[int]string{0: "alpha", 1: "beta"} {
		got, ok := p.GetRecord(slot)
		if !ok || string(got) != want {
			t.Errorf("slot %d: got %q ok=%v, want %q", slot, got, ok, want)
		}
	}
}

func TestSlottedPageDeletedRecordNotReturned(t *testing.T) {
	p := NewPage(0, PageTypeData)
	slot, _ := p.InsertRecord([]byte("gone"))

	if err := p.DeleteRecord(slot); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !p.IsDeleted(slot) {
		t.Error("expected slot to be marked deleted")
	}
	if _, ok := p.GetRecord(slot); ok {
		t.Error("expected GetRecord to report a deleted slot as absent")
	}
}

func TestSlottedPageUpdateInPlaceWhenShrinking(t *testing.T) {
	p := NewPage(0, PageTypeData)
	slot, _ := p.InsertRecord([]byte("0123456789"))
	before, _ := p.GetRecord(slot)

	if err := p.UpdateRecord(slot, []byte("short")); err != nil {
		t.Fatalf("update: %v", err)
	}
	after, ok := p.GetRecord(slot)
	if !ok || string(after) != "short" {
		t.Fatalf("expected updated record %q, got %q", "short", after)
	}
	_ = before
}

func TestSlottedPageUpdateGrowsIntoNewBytes(t *testing.T) {
	p := NewPage(0, PageTypeData)
	slot, _ := p.InsertRecord([]byte("short"))

	longer := bytes.Repeat([]byte("x"), 200)
	if err := p.UpdateRecord(slot, longer); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := p.GetRecord(slot)
	if !ok || !bytes.Equal(got, longer) {
		t.Fatalf("expected grown record to round-trip, got len=%d ok=%v", len(got), ok)
	}
}

func TestSlottedPageFullReturnsErrPageFull(t *testing.T) {
	p := NewPage(0, PageTypeData)
	record := bytes.Repeat([]byte("y"), 4000)

	if _, err := p.InsertRecord(record); err != nil {
		t.Fatalf("first insert should fit: %v", err)
	}
	if _, err := p.InsertRecord(record); err != ErrPageFull {
		t.Fatalf("expected ErrPageFull, got %v", err)
	}
}

func TestSlottedPageCompactReclaimsDeletedSpace(t *testing.T) {
	p := NewPage(0, PageTypeData)
	a, _ := p.InsertRecord([]byte("keep-a"))
	b, _ := p.InsertRecord([]byte("drop-me"))
	c, _ := p.InsertRecord([]byte("keep-c"))

	if err := p.DeleteRecord(b); err != nil {
		t.Fatalf("delete: %v", err)
	}
	freeBefore := p.FreeSpace()

	mapping := p.Compact()
	if len(mapping) != 2 {
		t.Fatalf("expected 2 surviving slots, got %d", len(mapping))
	}
	if p.FreeSpace() <= freeBefore {
		t.Errorf("expected compaction to reclaim space: before=%d after=%d", freeBefore, p.FreeSpace())
	}

	newA, ok := mapping[a]
	if !ok {
		t.Fatal("slot a missing from compaction mapping")
	}
	newC, ok := mapping[c]
	if !ok {
		t.Fatal("slot c missing from compaction mapping")
	}
	if rec, ok := p.GetRecord(newA); !ok || string(rec) != "keep-a" {
		t.Errorf("slot a after compact: got %q ok=%v", rec, ok)
	}
	if rec, ok := p.GetRecord(newC); !ok || string(rec) != "keep-c" {
		t.Errorf("slot c after compact: got %q ok=%v", rec, ok)
	}
}

func TestSlottedPageDeletedSlotStillBoundsFreeSpace(t *testing.T) {
	p := NewPage(0, PageTypeData)
	// A record large enough that, once deleted, its reserved space still
	// matters for whether a second large record can fit before Compact.
	big := bytes.Repeat([]byte("z"), 3000)
	slot, err := p.InsertRecord(big)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := p.DeleteRecord(slot); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := p.InsertRecord(big); err != ErrPageFull {
		t.Fatalf("expected deleted slot's space to remain reserved until Compact, got %v", err)
	}
}
