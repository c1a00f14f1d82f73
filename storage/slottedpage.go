package storage

import "encoding/binary"

// Slotted-page layout within a data-page's DataArea (4072 bytes): a slot
// directory grows forward from offset 0, records grow backward from
// DataAreaSize. Each slot is 6 bytes: record offset (u16), record length
// (u16), flags (u16, bit 0 = deleted).
const (
	slotSize       = 6
	slotFlagDeleted uint16 = 1 << 0
)

func slotBase(i int) int { return i * slotSize }

func readSlot(data []byte, i int) (offset, length, flags uint16) {
	b := data[slotBase(i):]
	offset = binary.LittleEndian.Uint16(b[0:2])
	length = binary.LittleEndian.Uint16(b[2:4])
	flags = binary.LittleEndian.Uint16(b[4:6])
	return
}

func writeSlot(data []byte, i int, offset, length, flags uint16) {
	b := data[slotBase(i):]
	binary.LittleEndian.PutUint16(b[0:2], offset)
	binary.LittleEndian.PutUint16(b[2:4], length)
	binary.LittleEndian.PutUint16(b[4:6], flags)
}

// minOccupiedOffset returns the smallest record offset across every slot in
// the directory, live or deleted — deleted slots keep their physical space
// reserved until Compact runs, so they still bound how far new records can
// grow backward.
func minOccupiedOffset(data []byte, itemCount int) uint16 {
	min := uint16(DataAreaSize)
	for i := 0; i < itemCount; i++ {
		off, _, _ := readSlot(data, i)
		if off < min {
			min = off
		}
	}
	return min
}

// slotDirEnd returns the byte offset just past the slot directory for a
// directory of n slots.
func slotDirEnd(n int) uint16 { return uint16(n * slotSize) }

// InsertRecord appends a new slot pointing at freshly written record bytes
// and returns its slot index. A zero-length record is permitted. Fails with
// ErrPageFull when the directory plus the record cannot both fit in what
// remains of the data area.
func (p *Page) InsertRecord(record []byte) (int, error) {
	data := p.DataArea()
	itemCount := int(p.ItemCount())
	newDirEnd := slotDirEnd(itemCount + 1)
	minOff := minOccupiedOffset(data, itemCount)

	recLen := uint16(len(record))
	if int(newDirEnd)+len(record) > int(minOff) {
		return 0, ErrPageFull
	}
	newOffset := minOff - recLen
	copy(data[newOffset:newOffset+recLen], record)
	writeSlot(data, itemCount, newOffset, recLen, 0)

	p.SetItemCount(uint16(itemCount + 1))
	p.SetFreeSpace(newOffset - newDirEnd)
	return itemCount, nil
}

// GetRecord returns the bytes stored at slot, or (nil, false) if the slot is
// out of range or has been deleted.
func (p *Page) GetRecord(slot int) ([]byte, bool) {
	itemCount := int(p.ItemCount())
	if slot < 0 || slot >= itemCount {
		return nil, false
	}
	data := p.DataArea()
	offset, length, flags := readSlot(data, slot)
	if flags&slotFlagDeleted != 0 {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, data[offset:offset+length])
	return out, true
}

// IsDeleted reports whether slot has been deleted. It does not validate the
// slot index.
func (p *Page) IsDeleted(slot int) bool {
	_, _, flags := readSlot(p.DataArea(), slot)
	return flags&slotFlagDeleted != 0
}

// MaxRecordLength is the largest record that could ever fit in an empty
// page: the full data area minus the one slot entry it needs.
const MaxRecordLength = DataAreaSize - slotSize

// UpdateRecord replaces the bytes at slot. If the new value is no longer
// than the old one it is rewritten in place at the same offset (any excess
// space is reclaimed only by Compact). Otherwise the old slot's space is
// abandoned and the new value is appended as fresh record bytes under the
// same slot index — failing with ErrPageFull if that append cannot fit.
func (p *Page) UpdateRecord(slot int, record []byte) error {
	itemCount := int(p.ItemCount())
	if slot < 0 || slot >= itemCount {
		return ErrNotFound
	}
	data := p.DataArea()
	offset, oldLen, _ := readSlot(data, slot)
	newLen := uint16(len(record))

	if newLen <= oldLen {
		copy(data[offset:offset+newLen], record)
		writeSlot(data, slot, offset, newLen, 0)
		return nil
	}

	minOff := minOccupiedOffset(data, itemCount)
	dirEnd := slotDirEnd(itemCount)
	if int(dirEnd)+int(newLen) > int(minOff) {
		return ErrPageFull
	}
	newOffset := minOff - newLen
	copy(data[newOffset:newOffset+newLen], record)
	writeSlot(data, slot, newOffset, newLen, 0)
	p.SetFreeSpace(newOffset - dirEnd)
	return nil
}

// DeleteRecord marks slot as deleted. Its offset and length are left intact
// until Compact runs.
func (p *Page) DeleteRecord(slot int) error {
	itemCount := int(p.ItemCount())
	if slot < 0 || slot >= itemCount {
		return ErrNotFound
	}
	data := p.DataArea()
	offset, length, _ := readSlot(data, slot)
	writeSlot(data, slot, offset, length, slotFlagDeleted)
	return nil
}

// Compact rebuilds the slot directory, dropping deleted slots and packing
// every surviving record toward the tail of the data area. It returns a map
// from each live slot's old index to its new index.
func (p *Page) Compact() map[int]int {
	data := p.DataArea()
	itemCount := int(p.ItemCount())

	type live struct {
		oldIndex int
		bytes    []byte
	}
	survivors := make([]live, 0, itemCount)
	for i := 0; i < itemCount; i++ {
		offset, length, flags := readSlot(data, i)
		if flags&slotFlagDeleted != 0 {
			continue
		}
		b := make([]byte, length)
		copy(b, data[offset:offset+length])
		survivors = append(survivors, live{oldIndex: i, bytes: b})
	}

	// Zero the data area before repacking so no stale bytes linger between
	// the new directory and the new record region.
	for i := range data {
		data[i] = 0
	}

	mapping := make(map[int]int, len(survivors))
	cursor := uint16(DataAreaSize)
	for newIndex, s := range survivors {
		length := uint16(len(s.bytes))
		cursor -= length
		copy(data[cursor:cursor+length], s.bytes)
		writeSlot(data, newIndex, cursor, length, 0)
		mapping[s.oldIndex] = newIndex
	}

	p.SetItemCount(uint16(len(survivors)))
	p.SetFreeSpace(cursor - slotDirEnd(len(survivors)))
	return mapping
}
