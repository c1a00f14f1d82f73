package storage

import "testing"

func TestFileHeaderRoundTrip(t *testing.T) {
	h := &FileHeader{
		Magic:         FileMagic,
		Version:       FormatVersion,
		PageSize:      PageSize,
		PageCount:     42,
		FreeListHead:  7,
		MetaPageID:    0,
		CatalogPageID: 3,
		CreateTimeMS:  1000,
		ModifyTimeMS:  2000,
	}
	buf := h.Marshal()
	got, err := UnmarshalFileHeader(buf[:])
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *got != *h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestFileHeaderRejectsBadMagic(t *testing.T) {
	h := &FileHeader{Magic: 0xDEADBEEF, Version: FormatVersion, PageSize: PageSize}
	buf := h.Marshal()
	if _, err := UnmarshalFileHeader(buf[:]); err != ErrCorruptPage {
		t.Fatalf("expected ErrCorruptPage for bad magic, got %v", err)
	}
}

func TestFileHeaderRejectsWrongLength(t *testing.T) {
	if _, err := UnmarshalFileHeader(make([]byte, FileHeaderSize-1)); err != ErrCorruptPage {
		t.Fatalf("expected ErrCorruptPage for wrong length, got %v", err)
	}
}
