// Package storage implements the single-file paged layout that backs the
// database: fixed-size pages, a slotted record format, a free-list, a
// write-ahead log, and the pager that ties them together.
package storage

import "encoding/binary"

// PageSize is the fixed size of every page, including its header, in bytes.
const PageSize = 4096

// PageHeaderSize is the size of the fixed header at the front of every page.
const PageHeaderSize = 24

// DataAreaSize is the number of bytes available to a page's payload.
const DataAreaSize = PageSize - PageHeaderSize

// PageType identifies the role a page plays in the file.
type PageType byte

const (
	PageTypeFree     PageType = 0
	PageTypeMeta     PageType = 1
	PageTypeCatalog  PageType = 2
	PageTypeData     PageType = 3
	PageTypeIndex    PageType = 4
	PageTypeOverflow PageType = 5
	PageTypeFreeList PageType = 6
)

func (t PageType) String() string {
	switch t {
	case PageTypeFree:
		return "free"
	case PageTypeMeta:
		return "meta"
	case PageTypeCatalog:
		return "catalog"
	case PageTypeData:
		return "data"
	case PageTypeIndex:
		return "index"
	case PageTypeOverflow:
		return "overflow"
	case PageTypeFreeList:
		return "freelist"
	default:
		return "unknown"
	}
}

// Page header layout (24 bytes), little-endian:
//
//	[0:4]   id            uint32
//	[4]     type          uint8
//	[5]     flags         uint8
//	[6:8]   itemCount     uint16
//	[8:10]  freeSpace     uint16
//	[10:14] nextPageID    uint32
//	[14:18] prevPageID    uint32
//	[18:22] checksum      uint32 (over the data area)
//	[22:24] reserved
const (
	offID         = 0
	offType       = 4
	offFlags      = 5
	offItemCount  = 6
	offFreeSpace  = 8
	offNextPageID = 10
	offPrevPageID = 14
	offChecksum   = 18
)

// Page is one fixed-size frame of the data file: a 24-byte header plus a
// 4072-byte data area. The zero value is not usable; build one with NewPage
// or by unmarshaling bytes read from disk.
type Page struct {
	Data [PageSize]byte
}

// NewPage creates a zeroed page of the given type and id.
func NewPage(id uint32, ptype PageType) *Page {
	p := &Page{}
	p.SetID(id)
	p.SetType(ptype)
	p.SetFreeSpace(DataAreaSize)
	return p
}

func (p *Page) ID() uint32 { return binary.LittleEndian.Uint32(p.Data[offID:]) }
func (p *Page) SetID(id uint32) {
	binary.LittleEndian.PutUint32(p.Data[offID:], id)
}

func (p *Page) Type() PageType { return PageType(p.Data[offType]) }
func (p *Page) SetType(t PageType) {
	p.Data[offType] = byte(t)
}

func (p *Page) Flags() byte     { return p.Data[offFlags] }
func (p *Page) SetFlags(f byte) { p.Data[offFlags] = f }

func (p *Page) ItemCount() uint16 { return binary.LittleEndian.Uint16(p.Data[offItemCount:]) }
func (p *Page) SetItemCount(n uint16) {
	binary.LittleEndian.PutUint16(p.Data[offItemCount:], n)
}

func (p *Page) FreeSpace() uint16 { return binary.LittleEndian.Uint16(p.Data[offFreeSpace:]) }
func (p *Page) SetFreeSpace(n uint16) {
	binary.LittleEndian.PutUint16(p.Data[offFreeSpace:], n)
}

func (p *Page) NextPageID() uint32 { return binary.LittleEndian.Uint32(p.Data[offNextPageID:]) }
func (p *Page) SetNextPageID(id uint32) {
	binary.LittleEndian.PutUint32(p.Data[offNextPageID:], id)
}

func (p *Page) PrevPageID() uint32 { return binary.LittleEndian.Uint32(p.Data[offPrevPageID:]) }
func (p *Page) SetPrevPageID(id uint32) {
	binary.LittleEndian.PutUint32(p.Data[offPrevPageID:], id)
}

// DataArea returns the mutable 4072-byte payload slice following the header.
func (p *Page) DataArea() []byte {
	return p.Data[PageHeaderSize:]
}

// Checksum computes the XOR-of-words checksum over a data area: XOR of
// consecutive little-endian 32-bit words, with any trailing partial word
// zero-padded before folding in.
func Checksum(dataArea []byte) uint32 {
	var sum uint32
	n := len(dataArea)
	full := n - n%4
	for i := 0; i < full; i += 4 {
		sum ^= binary.LittleEndian.Uint32(dataArea[i : i+4])
	}
	if full < n {
		var tail [4]byte
		copy(tail[:], dataArea[full:])
		sum ^= binary.LittleEndian.Uint32(tail[:])
	}
	return sum
}

// storeChecksum recomputes and writes the checksum header field from the
// current data area. Called before a page image is handed to disk.
func (p *Page) storeChecksum() {
	binary.LittleEndian.PutUint32(p.Data[offChecksum:], Checksum(p.DataArea()))
}

func (p *Page) storedChecksum() uint32 {
	return binary.LittleEndian.Uint32(p.Data[offChecksum:])
}

// Marshal finalizes the checksum and returns the raw 4096-byte page image.
func (p *Page) Marshal() [PageSize]byte {
	p.storeChecksum()
	return p.Data
}

// UnmarshalPage validates and loads a raw 4096-byte page image. It fails
// with ErrCorruptPage if the length is wrong or the checksum does not match
// the data area.
func UnmarshalPage(raw []byte) (*Page, error) {
	if len(raw) != PageSize {
		return nil, ErrCorruptPage
	}
	p := &Page{}
	copy(p.Data[:], raw)
	if p.storedChecksum() != Checksum(p.DataArea()) {
		return nil, ErrCorruptPage
	}
	return p, nil
}
