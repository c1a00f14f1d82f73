// Package novusdb is the top-level embeddable handle onto the storage
// core: open a file, get collection handles, insert and query documents.
package novusdb

import (
	"fmt"
	"sync"

	"github.com/felmond13/novusdb-doc/catalog"
	"github.com/felmond13/novusdb-doc/collection"
	"github.com/felmond13/novusdb-doc/index"
	"github.com/felmond13/novusdb-doc/storage"
)

// DB represents one open database file (or in-memory instance).
type DB struct {
	mu          sync.Mutex
	pager       *storage.Pager
	catalog     *catalog.Catalog
	idxMgr      *index.Manager
	collections map[string]*collection.Storage
}

func newDB(pager *storage.Pager) (*DB, error) {
	cat, err := catalog.Load(pager)
	if err != nil {
		return nil, fmt.Errorf("novusdb: %w", err)
	}
	idxMgr := index.NewManager(pager)

	db := &DB{
		pager:       pager,
		catalog:     cat,
		idxMgr:      idxMgr,
		collections: make(map[string]*collection.Storage),
	}
	for _, meta := range cat.Collections() {
		coll, err := collection.Open(cat, pager, idxMgr, meta.Name)
		if err != nil {
			return nil, fmt.Errorf("novusdb: reopening collection %q: %w", meta.Name, err)
		}
		db.collections[meta.Name] = coll
	}
	return db, nil
}

// Open opens or creates a database file at path.
func Open(path string) (*DB, error) {
	pager, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("novusdb: %w", err)
	}
	return newDB(pager)
}

// OpenReadOnly opens a database file at path without allowing writes.
// Any mutating collection operation returns storage.ErrReadOnly.
func OpenReadOnly(path string) (*DB, error) {
	pager, err := storage.OpenReadOnly(path)
	if err != nil {
		return nil, fmt.Errorf("novusdb: %w", err)
	}
	return newDB(pager)
}

// OpenMemory creates an entirely in-memory database with no backing
// file or WAL, for tests and short-lived embeddings.
func OpenMemory() (*DB, error) {
	pager, err := storage.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("novusdb: %w", err)
	}
	return newDB(pager)
}

// Close flushes pending writes and releases the underlying file.
func (db *DB) Close() error {
	return db.pager.Close()
}

// Flush forces every dirty page to disk without closing the database.
func (db *DB) Flush() error {
	return db.pager.Flush()
}

// CreateCollection registers a new, empty collection.
func (db *DB) CreateCollection(name string) (*collection.Storage, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	coll, err := collection.Create(db.catalog, db.pager, db.idxMgr, name)
	if err != nil {
		return nil, err
	}
	db.collections[name] = coll
	return coll, nil
}

// Collection returns a handle to an existing collection, or
// storage.ErrNotFound if it hasn't been created.
func (db *DB) Collection(name string) (*collection.Storage, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if coll, ok := db.collections[name]; ok {
		return coll, nil
	}
	return nil, storage.ErrNotFound
}

// DropCollection removes a collection and its indexes from the catalog.
// The collection's data and index pages are not reclaimed; they stay
// allocated in the file.
func (db *DB) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	coll, ok := db.collections[name]
	if !ok {
		return storage.ErrNotFound
	}
	if err := coll.Drop(); err != nil {
		return err
	}
	delete(db.collections, name)
	return nil
}

// Collections lists every collection name currently registered.
func (db *DB) Collections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	return names
}

// CacheStats reports the page cache's hit/miss counters and occupancy.
func (db *DB) CacheStats() (hits, misses uint64, size, capacity int) {
	return db.pager.CacheStats()
}

// CacheHitRate reports the page cache's hit rate in [0, 1].
func (db *DB) CacheHitRate() float64 {
	return db.pager.CacheHitRate()
}

// Degraded reports whether the pager is running in a degraded state
// after a failed flush.
func (db *DB) Degraded() bool {
	return db.pager.Degraded()
}
