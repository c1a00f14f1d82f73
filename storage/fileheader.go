package storage

import "encoding/binary"

// FileMagic identifies a novusdb data file ("MONO").
const FileMagic uint32 = 0x4D4F4E4F

// FormatVersion is the on-disk format version this build writes and reads.
const FormatVersion uint16 = 1

// FileHeaderSize is the fixed 64-byte prefix before page 0.
const FileHeaderSize = 64

// FileHeader is the 64-byte, little-endian prefix of the data file. Layout:
//
//	[0:4]   magic          uint32
//	[4:6]   version        uint16
//	[6:8]   pageSize       uint16
//	[8:12]  pageCount      uint32
//	[12:16] freeListHead   uint32 (0 = empty)
//	[16:20] metaPageID     uint32
//	[20:24] catalogPageID  uint32 (0 = none)
//	[24:32] createTimeMS   uint64
//	[32:40] modifyTimeMS   uint64
//	[40:64] reserved
type FileHeader struct {
	Magic         uint32
	Version       uint16
	PageSize      uint16
	PageCount     uint32
	FreeListHead  uint32
	MetaPageID    uint32
	CatalogPageID uint32
	CreateTimeMS  uint64
	ModifyTimeMS  uint64
}

// Marshal encodes the header into a 64-byte buffer.
func (h *FileHeader) Marshal() [FileHeaderSize]byte {
	var buf [FileHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.PageSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.PageCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.FreeListHead)
	binary.LittleEndian.PutUint32(buf[16:20], h.MetaPageID)
	binary.LittleEndian.PutUint32(buf[20:24], h.CatalogPageID)
	binary.LittleEndian.PutUint64(buf[24:32], h.CreateTimeMS)
	binary.LittleEndian.PutUint64(buf[32:40], h.ModifyTimeMS)
	return buf
}

// UnmarshalFileHeader decodes a 64-byte buffer into a FileHeader. It fails
// with ErrCorruptPage if the magic, version, or page size do not match.
func UnmarshalFileHeader(buf []byte) (*FileHeader, error) {
	if len(buf) != FileHeaderSize {
		return nil, ErrCorruptPage
	}
	h := &FileHeader{
		Magic:         binary.LittleEndian.Uint32(buf[0:4]),
		Version:       binary.LittleEndian.Uint16(buf[4:6]),
		PageSize:      binary.LittleEndian.Uint16(buf[6:8]),
		PageCount:     binary.LittleEndian.Uint32(buf[8:12]),
		FreeListHead:  binary.LittleEndian.Uint32(buf[12:16]),
		MetaPageID:    binary.LittleEndian.Uint32(buf[16:20]),
		CatalogPageID: binary.LittleEndian.Uint32(buf[20:24]),
		CreateTimeMS:  binary.LittleEndian.Uint64(buf[24:32]),
		ModifyTimeMS:  binary.LittleEndian.Uint64(buf[32:40]),
	}
	if h.Magic != FileMagic {
		return nil, ErrCorruptPage
	}
	if h.Version != FormatVersion {
		return nil, ErrCorruptPage
	}
	if h.PageSize != PageSize {
		return nil, ErrCorruptPage
	}
	return h, nil
}
