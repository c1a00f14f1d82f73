package index

import (
	"fmt"
	"sync"

	"github.com/felmond13/novusdb-doc/bson"
	"github.com/felmond13/novusdb-doc/storage"
)

// FieldSpec is one projected field of an index, as a dotted path split
// into its segments ("address.city" -> ["address", "city"]).
type FieldSpec struct {
	Path []string
}

// Spec describes an index: its name, the fields it projects (in the
// order their encodings are concatenated into the B+Tree key), and
// whether it enforces uniqueness.
type Spec struct {
	Name   string
	Fields []FieldSpec
	Unique bool
}

// Index binds a Spec to a persistent B+Tree and knows how to derive a
// tree key from a document.
type Index struct {
	Collection string
	Spec       Spec
	btree      *BTree
	mu         sync.RWMutex
}

// NewIndex allocates a fresh B+Tree for a new index.
func NewIndex(collection string, spec Spec, pager *storage.Pager) (*Index, error) {
	bt, err := NewBTree(pager, spec.Unique)
	if err != nil {
		return nil, err
	}
	return &Index{Collection: collection, Spec: spec, btree: bt}, nil
}

// OpenIndex resumes an index whose B+Tree root page id was read back
// from the catalog.
func OpenIndex(collection string, spec Spec, pager *storage.Pager, rootPageID uint32) *Index {
	return &Index{Collection: collection, Spec: spec, btree: OpenBTree(pager, rootPageID, spec.Unique)}
}

// RootPageID is persisted into the catalog's index metadata.
func (idx *Index) RootPageID() uint32 { return idx.btree.RootPageID }

// encodeLogicalKey builds the key prefix from a document's projected
// field values: each field contributes its EncodeSortKey bytes in turn,
// with a missing field contributing a single null byte.
func (idx *Index) encodeLogicalKey(doc *bson.Document) []byte {
	var buf []byte
	for _, f := range idx.Spec.Fields {
		v, ok := doc.GetPath(f.Path)
		if !ok {
			buf = append(buf, 0x00)
			continue
		}
		buf = append(buf, bson.EncodeSortKey(v)...)
	}
	return buf
}

// encodeLogicalKeyFromValues builds the same prefix from caller-supplied
// values instead of a document, for point/range lookups.
func encodeLogicalKeyFromValues(values []bson.Value) []byte {
	var buf []byte
	for _, v := range values {
		buf = append(buf, bson.EncodeSortKey(v)...)
	}
	return buf
}

// suffixWithID appends the 0x00 separator and the encoded _id that
// disambiguates a non-unique index's duplicate logical keys at the tree
// level while preserving range-scan order by the logical key.
func suffixWithID(logicalKey []byte, id bson.ObjectID) []byte {
	out := append(append([]byte(nil), logicalKey...), 0x00)
	return append(out, bson.EncodeSortKey(bson.ObjectIDValue(id))...)
}

// Add inserts doc's index entry under id.
func (idx *Index) Add(doc *bson.Document, id bson.ObjectID) error {
	logicalKey := idx.encodeLogicalKey(doc)
	key := logicalKey
	if !idx.Spec.Unique {
		key = suffixWithID(logicalKey, id)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.btree.Insert(key, id[:])
}

// Remove deletes doc's index entry for id. Missing entries are not an
// error — callers only call Remove for entries they know were added.
func (idx *Index) Remove(doc *bson.Document, id bson.ObjectID) error {
	logicalKey := idx.encodeLogicalKey(doc)
	key := logicalKey
	if !idx.Spec.Unique {
		key = suffixWithID(logicalKey, id)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	err := idx.btree.Delete(key, id[:])
	if err == storage.ErrNotFound {
		return nil
	}
	return err
}

// Lookup returns the document ids matching an exact set of field
// values, in index order.
func (idx *Index) Lookup(values []bson.Value) ([]bson.ObjectID, error) {
	logicalKey := encodeLogicalKeyFromValues(values)
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.Spec.Unique {
		vals, err := idx.btree.Lookup(logicalKey)
		if err != nil {
			return nil, err
		}
		return idsFromValues(vals), nil
	}

	minKey := append(append([]byte(nil), logicalKey...), 0x00)
	maxKey := append(append([]byte(nil), logicalKey...), 0x01)
	entries, err := idx.btree.RangeScan(minKey, maxKey)
	if err != nil {
		return nil, err
	}
	ids := make([]bson.ObjectID, 0, len(entries))
	for _, e := range entries {
		var id bson.ObjectID
		copy(id[:], e.Value)
		ids = append(ids, id)
	}
	return ids, nil
}

// RangeScan returns document ids whose projected field values fall
// within [minValues, maxValues] (either bound may be nil for unbounded),
// in ascending key order.
func (idx *Index) RangeScan(minValues, maxValues []bson.Value) ([]bson.ObjectID, error) {
	var minKey, maxKey []byte
	if minValues != nil {
		minKey = encodeLogicalKeyFromValues(minValues)
	}
	if maxValues != nil {
		maxKey = append(encodeLogicalKeyFromValues(maxValues), 0xFF)
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entries, err := idx.btree.RangeScan(minKey, maxKey)
	if err != nil {
		return nil, err
	}
	ids := make([]bson.ObjectID, 0, len(entries))
	for _, e := range entries {
		var id bson.ObjectID
		copy(id[:], e.Value)
		ids = append(ids, id)
	}
	return ids, nil
}

// Verify runs the underlying B+Tree's structural check.
func (idx *Index) Verify() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.btree.Verify()
}

func idsFromValues(vals [][]byte) []bson.ObjectID {
	ids := make([]bson.ObjectID, 0, len(vals))
	for _, v := range vals {
		var id bson.ObjectID
		copy(id[:], v)
		ids = append(ids, id)
	}
	return ids
}

// ---- Manager ----

// Manager owns every index across every collection, keyed by
// (collection, index name).
type Manager struct {
	mu      sync.RWMutex
	indexes map[indexKey]*Index
	pager   *storage.Pager
}

type indexKey struct {
	collection string
	name       string
}

// NewManager creates an empty index manager over pager.
func NewManager(pager *storage.Pager) *Manager {
	return &Manager{indexes: make(map[indexKey]*Index), pager: pager}
}

// CreateIndex allocates a new index and registers it.
func (m *Manager) CreateIndex(collection string, spec Spec) (*Index, error) {
	key := indexKey{collection, spec.Name}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[key]; exists {
		return nil, fmt.Errorf("index: %s.%s already exists", collection, spec.Name)
	}
	idx, err := NewIndex(collection, spec, m.pager)
	if err != nil {
		return nil, err
	}
	m.indexes[key] = idx
	return idx, nil
}

// OpenIndex registers an index whose root page id came from the catalog
// at startup.
func (m *Manager) OpenIndex(collection string, spec Spec, rootPageID uint32) *Index {
	key := indexKey{collection, spec.Name}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := OpenIndex(collection, spec, m.pager, rootPageID)
	m.indexes[key] = idx
	return idx
}

// DropIndex removes an index from the manager. The caller is
// responsible for reclaiming its B+Tree's pages.
func (m *Manager) DropIndex(collection, name string) error {
	key := indexKey{collection, name}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[key]; !exists {
		return fmt.Errorf("index: %s.%s not found", collection, name)
	}
	delete(m.indexes, key)
	return nil
}

// Get returns the named index for a collection, or nil.
func (m *Manager) Get(collection, name string) *Index {
	key := indexKey{collection, name}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[key]
}

// DropAllForCollection removes every index registered for a collection,
// called when the collection itself is dropped.
func (m *Manager) DropAllForCollection(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.indexes {
		if k.collection == collection {
			delete(m.indexes, k)
		}
	}
}

// ForCollection returns every index registered for a collection.
func (m *Manager) ForCollection(collection string) []*Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Index
	for k, idx := range m.indexes {
		if k.collection == collection {
			result = append(result, idx)
		}
	}
	return result
}
