package storage

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// PagerOptions configures a freshly opened Pager. The zero value selects
// a 1000-page cache.
type PagerOptions struct {
	// CacheCapacity is the maximum number of pages held in the LRU cache.
	// Zero means defaultCacheCapacity (1000).
	CacheCapacity int

	// Compression is stored with the options but nothing reads it:
	// collection.Storage snappy-compresses every record whose compressed
	// form is smaller, whatever this field holds.
	Compression bool
}

func (o PagerOptions) withDefaults() PagerOptions {
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = defaultCacheCapacity
	}
	return o
}

// Pager owns the single data file, its WAL, and the bounded page cache. It
// is the only component that touches the file directly; every other
// package goes through read/allocate/free/write. A sync.RWMutex guards all
// of it, even though the storage core assumes one cooperative owner at a
// time — cheap insurance if an embedder calls in from more than one
// goroutine.
type Pager struct {
	mu       sync.RWMutex
	file     StorageFile
	path     string
	wal      *WAL
	lock     *fileLock
	readOnly bool
	memory   bool

	header   FileHeader
	freelist *Freelist
	cache    *lruCache
	degraded bool

	logger  *zerolog.Logger
	metrics *pagerMetrics
}

// pagerMetrics are the optional Prometheus collectors returned by
// Pager.Metrics(). They are created on the first Metrics() call and
// registered with no registry; an embedder who wants them exposed
// registers them itself.
type pagerMetrics struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	walRecords     prometheus.Counter
	cacheEvictions prometheus.Counter
}

func newPagerMetrics() *pagerMetrics {
	return &pagerMetrics{
		cacheHits:      promauto.With(nil).NewCounter(prometheus.CounterOpts{Name: "novusdb_pager_cache_hits_total"}),
		cacheMisses:    promauto.With(nil).NewCounter(prometheus.CounterOpts{Name: "novusdb_pager_cache_misses_total"}),
		walRecords:     promauto.With(nil).NewCounter(prometheus.CounterOpts{Name: "novusdb_pager_wal_records_total"}),
		cacheEvictions: promauto.With(nil).NewCounter(prometheus.CounterOpts{Name: "novusdb_pager_cache_evictions_total"}),
	}
}

// Open opens or creates the database file at path with default options.
func Open(path string) (*Pager, error) {
	return OpenWithOptions(path, PagerOptions{})
}

// OpenReadOnly opens path for reads only; any write returns ErrReadOnly.
func OpenReadOnly(path string) (*Pager, error) {
	return openPager(path, true, PagerOptions{})
}

// OpenMemory creates an in-memory database with no backing file or WAL,
// for tests and ephemeral use.
func OpenMemory() (*Pager, error) {
	opts := PagerOptions{}.withDefaults()
	p := &Pager{
		file:     NewMemFile(),
		path:     ":memory:",
		memory:   true,
		cache:    newLRUCache(opts.CacheCapacity),
		freelist: NewFreelist(0),
	}
	p.header = FileHeader{Magic: FileMagic, Version: FormatVersion, PageSize: PageSize}
	return p, nil
}

// OpenWithOptions opens or creates path with explicit options.
func OpenWithOptions(path string, opts PagerOptions) (*Pager, error) {
	return openPager(path, false, opts)
}

func openPager(path string, readOnly bool, opts PagerOptions) (*Pager, error) {
	opts = opts.withDefaults()

	lock, err := lockFile(path)
	if err != nil {
		return nil, err
	}

	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		lock.unlock()
		return nil, fmt.Errorf("pager: open: %w", err)
	}

	p := &Pager{
		file:     file,
		path:     path,
		lock:     lock,
		readOnly: readOnly,
		cache:    newLRUCache(opts.CacheCapacity),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		lock.unlock()
		return nil, err
	}

	if info.Size() == 0 {
		if readOnly {
			file.Close()
			lock.unlock()
			return nil, fmt.Errorf("pager: %w", ErrNotFound)
		}
		if err := p.initFile(); err != nil {
			file.Close()
			lock.unlock()
			return nil, err
		}
	} else if err := p.loadHeader(); err != nil {
		file.Close()
		lock.unlock()
		return nil, err
	}

	if !readOnly {
		wal, err := OpenWAL(path)
		if err != nil {
			file.Close()
			lock.unlock()
			return nil, fmt.Errorf("pager: %w", err)
		}
		p.wal = wal
		if err := p.recover(); err != nil {
			wal.Close()
			file.Close()
			lock.unlock()
			return nil, fmt.Errorf("pager: recovery: %w", err)
		}
	}
	p.freelist = NewFreelist(p.header.FreeListHead)
	return p, nil
}

// SetLogger attaches an optional zerolog logger. Nil (the default) keeps
// the pager silent; the storage core does not log on its own.
func (p *Pager) SetLogger(logger zerolog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = &logger
}

// Metrics returns the pager's Prometheus collectors, creating them on
// first call. The caller is responsible for registering them with a
// registry.
func (p *Pager) Metrics() (hits, misses, walRecords, evictions prometheus.Counter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.metrics == nil {
		p.metrics = newPagerMetrics()
	}
	return p.metrics.cacheHits, p.metrics.cacheMisses, p.metrics.walRecords, p.metrics.cacheEvictions
}

func (p *Pager) logDebug(msg string, fields map[string]interface{}) {
	if p.logger == nil {
		return
	}
	ev := p.logger.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// initFile writes a fresh 64-byte file header for a brand-new database.
func (p *Pager) initFile() error {
	now := uint64(time.Now().UnixMilli())
	p.header = FileHeader{
		Magic:        FileMagic,
		Version:      FormatVersion,
		PageSize:     PageSize,
		PageCount:    0,
		FreeListHead: 0,
		CreateTimeMS: now,
		ModifyTimeMS: now,
	}
	buf := p.header.Marshal()
	if _, err := p.file.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("pager: write header: %w", err)
	}
	return p.file.Sync()
}

func (p *Pager) loadHeader() error {
	buf := make([]byte, FileHeaderSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("pager: read header: %w", err)
	}
	h, err := UnmarshalFileHeader(buf)
	if err != nil {
		return err
	}
	p.header = *h
	return nil
}

func (p *Pager) writeHeader() error {
	p.header.ModifyTimeMS = uint64(time.Now().UnixMilli())
	buf := p.header.Marshal()
	_, err := p.file.WriteAt(buf[:], 0)
	return err
}

// recover replays WAL records from just past the checkpoint, reconstructs
// the file header and free-list pointer, extends the file to its
// authoritative size, and checkpoints the log so the replayed state
// becomes the new durable baseline.
func (p *Pager) recover() error {
	records, err := p.wal.ReadRecordsFrom(p.wal.CheckpointLSN() + 1)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		switch rec.Type {
		case WALPageWrite:
			offset := int64(FileHeaderSize) + int64(rec.PageID)*PageSize
			if _, err := p.file.WriteAt(rec.Payload, offset); err != nil {
				return fmt.Errorf("replay page %d: %w", rec.PageID, err)
			}
			if rec.PageID+1 > p.header.PageCount {
				p.header.PageCount = rec.PageID + 1
			}
		case WALAllocPage:
			if rec.PageID+1 > p.header.PageCount {
				p.header.PageCount = rec.PageID + 1
			}
		case WALMetaUpdate:
			if len(rec.Payload) < 9 {
				continue
			}
			newVal := readU32(rec.Payload[5:9])
			switch rec.Payload[0] {
			case MetaSubtypeFreeListHead:
				p.header.FreeListHead = newVal
			case MetaSubtypePageCount:
				p.header.PageCount = newVal
			case MetaSubtypeCatalogPageID:
				p.header.CatalogPageID = newVal
			}
		case WALFreePage, WALCommit, WALCheckpoint:
			// no direct header effect; free-list state travels via
			// the paired meta-update record.
		}
	}

	if err := p.extendFile(p.header.PageCount); err != nil {
		return err
	}
	if err := p.writeHeader(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	last := records[len(records)-1].LSN
	return p.wal.Checkpoint(last)
}

func readU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (p *Pager) extendFile(pageCount uint32) error {
	size := int64(FileHeaderSize) + int64(pageCount)*PageSize
	info, err := p.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= size {
		return nil
	}
	_, err = p.file.WriteAt([]byte{0}, size-1)
	return err
}

// IsReadOnly reports whether writes are rejected with ErrReadOnly.
func (p *Pager) IsReadOnly() bool { return p.readOnly }

// Degraded reports whether the handle has been marked unusable after a
// failed flush; the caller must reopen the database.
func (p *Pager) Degraded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.degraded
}

// PageCount returns the number of pages currently allocated (free or
// live).
func (p *Pager) PageCount() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.header.PageCount
}

// CatalogPageID returns the root page id of the catalog chain, or 0 if
// none has been set yet.
func (p *Pager) CatalogPageID() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.header.CatalogPageID
}

// SetCatalogPageID records the catalog chain's root page id via a
// meta-update WAL record. The caller should Flush afterward for
// durability.
func (p *Pager) SetCatalogPageID(id uint32) error {
	if p.readOnly {
		return ErrReadOnly
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.header.CatalogPageID
	if p.wal != nil {
		if _, err := p.wal.WriteMetaRecord(MetaSubtypeCatalogPageID, old, id); err != nil {
			return err
		}
	}
	p.header.CatalogPageID = id
	return nil
}

// ReadPage loads a page by id, from cache if present, else from disk,
// validating the checksum of pages read from disk.
func (p *Pager) ReadPage(id uint32) (*Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readPageLocked(id)
}

func (p *Pager) readPageLocked(id uint32) (*Page, error) {
	if id >= p.header.PageCount {
		return nil, fmt.Errorf("pager: %w: page %d (count=%d)", ErrNotFound, id, p.header.PageCount)
	}
	if data, ok := p.cache.get(id); ok {
		if p.metrics != nil {
			p.metrics.cacheHits.Inc()
		}
		page := &Page{Data: data}
		return page, nil
	}
	if p.metrics != nil {
		p.metrics.cacheMisses.Inc()
	}
	raw := make([]byte, PageSize)
	offset := int64(FileHeaderSize) + int64(id)*PageSize
	if _, err := p.file.ReadAt(raw, offset); err != nil {
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	page, err := UnmarshalPage(raw)
	if err != nil {
		return nil, fmt.Errorf("pager: page %d: %w", id, err)
	}
	p.cache.put(id, page.Data, false)
	return page, nil
}

// WritePage logs a page-write record and updates the cache with the new
// image as dirty. The bytes are not guaranteed durable until Flush.
func (p *Pager) WritePage(page *Page) error {
	if p.readOnly {
		return ErrReadOnly
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writePageLocked(page)
}

func (p *Pager) writePageLocked(page *Page) error {
	image := page.Marshal()
	if p.wal != nil {
		if _, err := p.wal.WritePageRecord(page.ID(), image[:]); err != nil {
			return fmt.Errorf("pager: wal page-write: %w", err)
		}
		if p.metrics != nil {
			p.metrics.walRecords.Inc()
		}
	}
	p.cache.put(page.ID(), image, true)
	return nil
}

// AllocatePage hands back a fresh page of the given type: from the
// free-list head if one exists, otherwise by extending the file. It logs
// an alloc-page record and a meta-update for whichever pointer moved, then
// writes the new page's zeroed image.
func (p *Pager) AllocatePage(ptype PageType) (*Page, error) {
	if p.readOnly {
		return nil, ErrReadOnly
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var id uint32
	var subtype byte
	var oldVal, newVal uint32

	if !p.freelist.Empty() {
		head := p.freelist.Head()
		headPage, err := p.readPageLocked(head)
		if err != nil {
			return nil, fmt.Errorf("pager: free-list head %d: %w", head, err)
		}
		newHead := headPage.NextPageID()
		id = p.freelist.Pop(newHead)
		subtype, oldVal, newVal = MetaSubtypeFreeListHead, head, newHead
	} else {
		id = p.header.PageCount
		subtype, oldVal, newVal = MetaSubtypePageCount, p.header.PageCount, p.header.PageCount+1
		p.header.PageCount = newVal
	}

	if p.wal != nil {
		if _, err := p.wal.WriteAllocRecord(id, ptype); err != nil {
			return nil, err
		}
		if _, err := p.wal.WriteMetaRecord(subtype, oldVal, newVal); err != nil {
			return nil, err
		}
	}
	if subtype == MetaSubtypeFreeListHead {
		p.header.FreeListHead = newVal
	}

	page := NewPage(id, ptype)
	if err := p.writePageLocked(page); err != nil {
		return nil, err
	}
	return page, nil
}

// FreePage returns id to the free-list head, retyping it and logging a
// free-page record plus the meta-update that moves the head pointer.
func (p *Pager) FreePage(id uint32) error {
	if p.readOnly {
		return ErrReadOnly
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	oldHead := p.freelist.Head()
	if p.wal != nil {
		if _, err := p.wal.WriteFreeRecord(id); err != nil {
			return err
		}
		if _, err := p.wal.WriteMetaRecord(MetaSubtypeFreeListHead, oldHead, id); err != nil {
			return err
		}
	}
	p.freelist.Push(id)
	p.header.FreeListHead = id

	freePage := NewPage(id, PageTypeFree)
	freePage.SetNextPageID(oldHead)
	return p.writePageLocked(freePage)
}

// Flush is the durability barrier: every dirty cached page is written to
// the data file, the file is fsynced, and the WAL is checkpointed at the
// highest LSN written so far.
func (p *Pager) Flush() error {
	if p.readOnly {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Pager) flushLocked() error {
	if p.memory {
		return nil
	}
	if p.wal != nil {
		if err := p.wal.Sync(); err != nil {
			p.degraded = true
			return fmt.Errorf("pager: wal sync: %w", err)
		}
	}

	for _, id := range p.cache.dirtyPageIDs() {
		data, ok := p.cache.get(id)
		if !ok {
			continue
		}
		offset := int64(FileHeaderSize) + int64(id)*PageSize
		if _, err := p.file.WriteAt(data[:], offset); err != nil {
			p.degraded = true
			return fmt.Errorf("pager: flush page %d: %w", id, err)
		}
		p.cache.markClean(id)
	}
	if err := p.writeHeader(); err != nil {
		p.degraded = true
		return fmt.Errorf("pager: flush header: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		p.degraded = true
		return fmt.Errorf("pager: flush sync: %w", err)
	}
	if p.wal != nil {
		if err := p.wal.Checkpoint(p.wal.LastLSN()); err != nil {
			return fmt.Errorf("pager: checkpoint: %w", err)
		}
	}
	p.logDebug("flush", map[string]interface{}{"page_count": p.header.PageCount})
	return nil
}

// CacheStats returns the cache's hit/miss counters plus its current size
// and capacity.
func (p *Pager) CacheStats() (hits, misses uint64, size, capacity int) {
	return p.cache.stats()
}

// CacheHitRate returns the cache's hit ratio in [0, 1].
func (p *Pager) CacheHitRate() float64 {
	return p.cache.hitRate()
}

// Close flushes pending writes, then closes the WAL, data file, and
// releases the OS-level lock.
func (p *Pager) Close() error {
	p.mu.Lock()
	if !p.readOnly {
		if err := p.flushLocked(); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	p.mu.Unlock()

	if p.wal != nil {
		if err := p.wal.Close(); err != nil {
			return err
		}
	}
	fileErr := p.file.Close()
	if p.lock != nil {
		p.lock.unlock()
	}
	return fileErr
}
