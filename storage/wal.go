package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// WAL magic ("WALM") and on-disk layout sizes.
const (
	walMagic            uint32 = 0x57414C4D
	walVersion          uint16 = 1
	walHeaderSize              = 32
	walRecordHeaderSize        = 20
)

// WALRecordType identifies the kind of operation a WAL record redoes.
type WALRecordType byte

const (
	WALPageWrite  WALRecordType = 1 // payload = full 4096-byte page image
	WALAllocPage  WALRecordType = 2 // payload = 1-byte new page type
	WALFreePage   WALRecordType = 3 // no payload
	WALCommit     WALRecordType = 4 // no payload
	WALCheckpoint WALRecordType = 5 // payload = u64 checkpoint LSN
	WALMetaUpdate WALRecordType = 6 // payload = 1-byte subtype + u32 old + u32 new
)

// Meta-update subtypes, used as the first payload byte of a WALMetaUpdate
// record.
const (
	MetaSubtypeFreeListHead  byte = 0
	MetaSubtypePageCount     byte = 1
	MetaSubtypeCatalogPageID byte = 2
)

// WALRecord is one decoded entry from the log.
type WALRecord struct {
	LSN     uint64
	Type    WALRecordType
	PageID  uint32
	Payload []byte
}

// WAL is an append-only redo log with checkpointed recovery. Records are
// padded to 8-byte alignment; every record is guarded by a CRC-32 computed
// over its 16-byte prefix (LSN, type, flags, data length, page id) plus its
// payload.
type WAL struct {
	file          *os.File
	path          string
	checkpointLSN uint64
	nextLSN       uint64
	writeOffset   int64

	// AutoTruncateThreshold is the body size (bytes past the header) at
	// which Checkpoint truncates the log back to just its header. Zero
	// disables auto-truncation.
	AutoTruncateThreshold int64
}

const defaultAutoTruncateThreshold = 64 * 1024 * 1024

// OpenWAL opens or creates the WAL file at dbPath+".wal".
func OpenWAL(dbPath string) (*WAL, error) {
	path := dbPath + ".wal"
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}
	w := &WAL{
		file:                  file,
		path:                  path,
		nextLSN:               1,
		writeOffset:           walHeaderSize,
		AutoTruncateThreshold: defaultAutoTruncateThreshold,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := w.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
		return w, nil
	}
	if err := w.readHeader(); err != nil {
		file.Close()
		return nil, err
	}
	if err := w.scan(); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func (w *WAL) Close() error { return w.file.Close() }

func (w *WAL) writeHeader() error {
	var buf [walHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], walMagic)
	binary.LittleEndian.PutUint16(buf[4:6], walVersion)
	binary.LittleEndian.PutUint64(buf[8:16], w.checkpointLSN)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(w.writeOffset))
	crc := crc32.ChecksumIEEE(buf[0:24])
	binary.LittleEndian.PutUint32(buf[24:28], crc)
	_, err := w.file.WriteAt(buf[:], 0)
	return err
}

func (w *WAL) readHeader() error {
	var buf [walHeaderSize]byte
	if _, err := w.file.ReadAt(buf[:], 0); err != nil {
		return fmt.Errorf("wal: read header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint16(buf[4:6])
	if magic != walMagic || version != walVersion {
		return fmt.Errorf("wal: %w", ErrCorruptWAL)
	}
	crc := binary.LittleEndian.Uint32(buf[24:28])
	if crc32.ChecksumIEEE(buf[0:24]) != crc {
		return fmt.Errorf("wal: %w", ErrCorruptWAL)
	}
	w.checkpointLSN = binary.LittleEndian.Uint64(buf[8:16])
	return nil
}

// scan replays the log body from the header to the first invalid record,
// establishing nextLSN and writeOffset. A CRC mismatch truncates the log
// logically: the scanner stops and writeOffset is set to just before the
// bad record, so the next append overwrites it.
func (w *WAL) scan() error {
	w.nextLSN = w.checkpointLSN + 1
	offset := int64(walHeaderSize)

	for {
		rec, consumed, err := w.readRecordAt(offset)
		if err == io.EOF || err != nil {
			break
		}
		if rec.LSN >= w.nextLSN {
			w.nextLSN = rec.LSN + 1
		}
		offset += consumed
	}
	w.writeOffset = offset
	return nil
}

func align8(n int64) int64 {
	if rem := n % 8; rem != 0 {
		n += 8 - rem
	}
	return n
}

// readRecordAt reads and validates one record starting at offset. It
// returns the record, the 8-byte-aligned number of bytes it occupies on
// disk, and io.EOF (or a CRC error) once no further valid record exists.
func (w *WAL) readRecordAt(offset int64) (WALRecord, int64, error) {
	hdr := make([]byte, walRecordHeaderSize)
	n, err := w.file.ReadAt(hdr, offset)
	if n < walRecordHeaderSize {
		return WALRecord{}, 0, io.EOF
	}
	if err != nil && err != io.EOF {
		return WALRecord{}, 0, err
	}

	lsn := binary.LittleEndian.Uint64(hdr[0:8])
	rtype := WALRecordType(hdr[8])
	dataLen := binary.LittleEndian.Uint16(hdr[10:12])
	pageID := binary.LittleEndian.Uint32(hdr[12:16])
	storedCRC := binary.LittleEndian.Uint32(hdr[16:20])

	payload := make([]byte, dataLen)
	if dataLen > 0 {
		n, err := w.file.ReadAt(payload, offset+walRecordHeaderSize)
		if n < int(dataLen) {
			return WALRecord{}, 0, io.EOF
		}
		if err != nil && err != io.EOF {
			return WALRecord{}, 0, err
		}
	}

	crc := crc32.NewIEEE()
	crc.Write(hdr[0:16])
	crc.Write(payload)
	if crc.Sum32() != storedCRC {
		return WALRecord{}, 0, fmt.Errorf("wal: %w", ErrCorruptWAL)
	}

	total := int64(walRecordHeaderSize) + int64(dataLen)
	return WALRecord{LSN: lsn, Type: rtype, PageID: pageID, Payload: payload}, align8(total), nil
}

// appendRecord writes one record at the current write offset and advances
// it. The caller must not rely on the write being durable until Sync.
func (w *WAL) appendRecord(rtype WALRecordType, pageID uint32, payload []byte) (uint64, error) {
	lsn := w.nextLSN
	w.nextLSN++

	total := walRecordHeaderSize + len(payload)
	padded := align8(int64(total))
	buf := make([]byte, padded)

	binary.LittleEndian.PutUint64(buf[0:8], lsn)
	buf[8] = byte(rtype)
	buf[9] = 0 // flags
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(payload)))
	binary.LittleEndian.PutUint32(buf[12:16], pageID)
	copy(buf[20:20+len(payload)], payload)

	crc := crc32.NewIEEE()
	crc.Write(buf[0:16])
	crc.Write(payload)
	binary.LittleEndian.PutUint32(buf[16:20], crc.Sum32())

	if _, err := w.file.WriteAt(buf, w.writeOffset); err != nil {
		w.nextLSN--
		return 0, fmt.Errorf("wal: append: %w", err)
	}
	w.writeOffset += padded
	return lsn, nil
}

// WritePageRecord logs a full page image.
func (w *WAL) WritePageRecord(pageID uint32, image []byte) (uint64, error) {
	return w.appendRecord(WALPageWrite, pageID, image)
}

// WriteAllocRecord logs that pageID was allocated as a fresh page of the
// given type.
func (w *WAL) WriteAllocRecord(pageID uint32, ptype PageType) (uint64, error) {
	return w.appendRecord(WALAllocPage, pageID, []byte{byte(ptype)})
}

// WriteFreeRecord logs that pageID was returned to the free-list.
func (w *WAL) WriteFreeRecord(pageID uint32) (uint64, error) {
	return w.appendRecord(WALFreePage, pageID, nil)
}

// WriteMetaRecord logs a change to one file-header field.
func (w *WAL) WriteMetaRecord(subtype byte, old, new_ uint32) (uint64, error) {
	payload := make([]byte, 9)
	payload[0] = subtype
	binary.LittleEndian.PutUint32(payload[1:5], old)
	binary.LittleEndian.PutUint32(payload[5:9], new_)
	return w.appendRecord(WALMetaUpdate, 0, payload)
}

// WriteCommitRecord logs a commit marker.
func (w *WAL) WriteCommitRecord() (uint64, error) {
	return w.appendRecord(WALCommit, 0, nil)
}

// Sync fsyncs the WAL file. WAL-first durability requires this to complete
// before the corresponding data-file write for the same operation.
func (w *WAL) Sync() error {
	return w.file.Sync()
}

// Checkpoint writes a checkpoint record for lsn, updates the header's
// checkpoint LSN, fsyncs, and — when AutoTruncateThreshold is non-zero and
// the log body has grown past it — truncates the body back to just the
// header.
func (w *WAL) Checkpoint(lsn uint64) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, lsn)
	if _, err := w.appendRecord(WALCheckpoint, 0, payload); err != nil {
		return err
	}
	w.checkpointLSN = lsn
	if err := w.writeHeader(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: checkpoint fsync: %w", err)
	}

	if w.AutoTruncateThreshold > 0 && w.writeOffset-walHeaderSize > w.AutoTruncateThreshold {
		return w.truncateToHeader()
	}
	return nil
}

func (w *WAL) truncateToHeader() error {
	if err := w.file.Truncate(walHeaderSize); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	w.writeOffset = walHeaderSize
	return w.file.Sync()
}

// CheckpointLSN returns the LSN recorded in the WAL header.
func (w *WAL) CheckpointLSN() uint64 { return w.checkpointLSN }

// LastLSN returns the highest LSN assigned to any record written so far.
func (w *WAL) LastLSN() uint64 {
	if w.nextLSN == 0 {
		return 0
	}
	return w.nextLSN - 1
}

// ReadRecordsFrom returns every valid record with LSN >= startLSN, in
// ascending LSN order. It is the mechanism both for Pager recovery and for
// tests that assert on WAL content directly.
func (w *WAL) ReadRecordsFrom(startLSN uint64) ([]WALRecord, error) {
	var records []WALRecord
	offset := int64(walHeaderSize)
	for {
		rec, consumed, err := w.readRecordAt(offset)
		if err == io.EOF || err != nil {
			break
		}
		if rec.LSN >= startLSN {
			records = append(records, rec)
		}
		offset += consumed
	}
	return records, nil
}
