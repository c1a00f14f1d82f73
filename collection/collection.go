// Package collection places documents into a collection's page chain,
// keeps it coherent with its indexes, and orchestrates insert/find/
// update/delete around the storage core.
package collection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/snappy"

	"github.com/felmond13/novusdb-doc/bson"
	"github.com/felmond13/novusdb-doc/catalog"
	"github.com/felmond13/novusdb-doc/index"
	"github.com/felmond13/novusdb-doc/storage"
)

const (
	maxDocumentBytes = 16 * 1024 * 1024
	maxBatchInsert   = 100000
)

var (
	ErrDocumentTooLarge = errors.New("collection: document exceeds 16 MiB")
	ErrBatchTooLarge    = errors.New("collection: batch exceeds 100000 documents")
	ErrInvalidName      = errors.New("collection: invalid collection name")
	ErrCollectionExists = errors.New("collection: already exists")
)

// recordTag prefixes every stored document record, distinguishing raw
// BSON bytes from snappy-compressed ones — the teacher's
// compressRecord/DecompressRecord split, generalized from SQL row bytes
// to BSON document bytes.
const (
	recordTagRaw    byte = 0
	recordTagSnappy byte = 1
)

// Storage is a handle onto one collection's data pages, bound to the
// shared catalog and index manager of the database that owns it.
type Storage struct {
	pager   *storage.Pager
	idxMgr  *index.Manager
	catalog *catalog.Catalog
	Name    string
}

// ValidateName enforces the spec's collection-name rules: non-empty,
// not prefixed "system.", no '$' or null byte.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if strings.HasPrefix(name, "system.") {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "$\x00") {
		return ErrInvalidName
	}
	return nil
}

// Create registers a brand new, empty collection in the catalog.
func Create(cat *catalog.Catalog, pager *storage.Pager, idxMgr *index.Manager, name string) (*Storage, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, exists := cat.Get(name); exists {
		return nil, ErrCollectionExists
	}
	cat.Put(catalog.CollectionMeta{Name: name})
	if err := cat.Save(); err != nil {
		return nil, err
	}
	return &Storage{pager: pager, idxMgr: idxMgr, catalog: cat, Name: name}, nil
}

// Open resumes a collection already present in the catalog, reopening
// its indexes by their persisted root page ids.
func Open(cat *catalog.Catalog, pager *storage.Pager, idxMgr *index.Manager, name string) (*Storage, error) {
	meta, exists := cat.Get(name)
	if !exists {
		return nil, storage.ErrNotFound
	}
	for _, im := range meta.Indexes {
		spec := index.Spec{Name: im.Name, Unique: im.Unique}
		for _, path := range im.Fields {
			spec.Fields = append(spec.Fields, index.FieldSpec{Path: path})
		}
		idxMgr.OpenIndex(name, spec, im.RootPageID)
	}
	return &Storage{pager: pager, idxMgr: idxMgr, catalog: cat, Name: name}, nil
}

// Drop removes the collection's catalog entry and every registered
// index, freeing no pages itself — callers that want space reclaimed
// should free the collection's page chain before calling Drop.
func (s *Storage) Drop() error {
	s.idxMgr.DropAllForCollection(s.Name)
	s.catalog.Remove(s.Name)
	return s.catalog.Save()
}

func (s *Storage) meta() catalog.CollectionMeta {
	m, _ := s.catalog.Get(s.Name)
	return m
}

// ---- document codec ----

func encodeDocument(doc *bson.Document) ([]byte, error) {
	raw, err := bson.Encode(doc)
	if err != nil {
		return nil, err
	}
	if len(raw) > maxDocumentBytes {
		return nil, ErrDocumentTooLarge
	}
	compressed := snappy.Encode(nil, raw)
	if len(compressed) < len(raw) {
		return append([]byte{recordTagSnappy}, compressed...), nil
	}
	return append([]byte{recordTagRaw}, raw...), nil
}

func decodeDocument(rec []byte) (*bson.Document, error) {
	if len(rec) == 0 {
		return nil, errors.New("collection: empty record")
	}
	body := rec[1:]
	if rec[0] == recordTagSnappy {
		dec, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("collection: snappy decode: %w", err)
		}
		body = dec
	}
	return bson.Decode(body)
}

// ---- page chain iteration ----

// docLocation pairs a decoded document with its physical slot, used by
// Update/Delete to write back in place.
type docLocation struct {
	doc    *bson.Document
	pageID uint32
	slot   int
}

// scan decodes every live document across the collection's page chain.
func (s *Storage) scan() ([]docLocation, error) {
	meta := s.meta()
	var out []docLocation
	pageID := meta.FirstPageID
	for pageID != 0 {
		page, err := s.pager.ReadPage(pageID)
		if err != nil {
			return nil, err
		}
		for slot := 0; slot < int(page.ItemCount()); slot++ {
			rec, ok := page.GetRecord(slot)
			if !ok {
				continue
			}
			doc, err := decodeDocument(rec)
			if err != nil {
				return nil, err
			}
			out = append(out, docLocation{doc: doc, pageID: pageID, slot: slot})
		}
		pageID = page.NextPageID()
	}
	return out, nil
}

func docID(doc *bson.Document) bson.ObjectID {
	v, ok := doc.Get("_id")
	if !ok {
		return bson.ObjectID{}
	}
	id, _ := v.AsObjectID()
	return id
}

// ---- Insert ----

// placement records where one document in a batch landed, so a later
// failure in the same batch can be rolled back.
type placement struct {
	pageID uint32
	slot   int
	id     bson.ObjectID
	doc    *bson.Document
}

// Insert places every document in docs, assigning an _id to any that
// lacks one. If any document violates a unique index, every document
// already placed in this batch (including its index entries) is rolled
// back and the batch fails as a whole.
func (s *Storage) Insert(docs []*bson.Document) ([]bson.ObjectID, error) {
	if len(docs) > maxBatchInsert {
		return nil, ErrBatchTooLarge
	}

	meta := s.meta()
	var placements []placement

	rollback := func() {
		for i := len(placements) - 1; i >= 0; i-- {
			p := placements[i]
			for _, idx := range s.idxMgr.ForCollection(s.Name) {
				idx.Remove(p.doc, p.id)
			}
			page, err := s.pager.ReadPage(p.pageID)
			if err == nil {
				page.DeleteRecord(p.slot)
				s.pager.WritePage(page)
			}
		}
	}

	for _, doc := range docs {
		var id bson.ObjectID
		if v, ok := doc.Get("_id"); ok {
			id, _ = v.AsObjectID()
		} else {
			id = bson.NewObjectID()
			doc = prependID(doc, id)
		}

		rec, err := encodeDocument(doc)
		if err != nil {
			rollback()
			return nil, err
		}

		pageID, slot, err := s.appendRecord(&meta, rec)
		if err != nil {
			rollback()
			return nil, err
		}

		indexes := s.idxMgr.ForCollection(s.Name)
		var addedTo []*index.Index
		var addErr error
		for _, idx := range indexes {
			if err := idx.Add(doc, id); err != nil {
				addErr = err
				break
			}
			addedTo = append(addedTo, idx)
		}
		if addErr != nil {
			for _, idx := range addedTo {
				idx.Remove(doc, id)
			}
			page, rerr := s.pager.ReadPage(pageID)
			if rerr == nil {
				page.DeleteRecord(slot)
				s.pager.WritePage(page)
			}
			rollback()
			return nil, addErr
		}

		placements = append(placements, placement{pageID: pageID, slot: slot, id: id, doc: doc})
		meta.DocumentCount++
	}

	s.catalog.Put(meta)
	if err := s.catalog.Save(); err != nil {
		return nil, err
	}

	ids := make([]bson.ObjectID, len(placements))
	for i, p := range placements {
		ids[i] = p.id
	}
	return ids, nil
}

// appendRecord writes rec to the collection's last page, allocating a
// fresh page (and linking it into the chain) if it doesn't fit.
func (s *Storage) appendRecord(meta *catalog.CollectionMeta, rec []byte) (pageID uint32, slot int, err error) {
	if meta.LastPageID != 0 {
		page, err := s.pager.ReadPage(meta.LastPageID)
		if err != nil {
			return 0, 0, err
		}
		slot, err := page.InsertRecord(rec)
		if err == nil {
			if err := s.pager.WritePage(page); err != nil {
				return 0, 0, err
			}
			return meta.LastPageID, slot, nil
		}
		if err != storage.ErrPageFull {
			return 0, 0, err
		}
	}

	newPage, err := s.pager.AllocatePage(storage.PageTypeData)
	if err != nil {
		return 0, 0, err
	}
	slot, err = newPage.InsertRecord(rec)
	if err != nil {
		return 0, 0, err
	}
	if err := s.pager.WritePage(newPage); err != nil {
		return 0, 0, err
	}

	if meta.LastPageID != 0 {
		oldLast, err := s.pager.ReadPage(meta.LastPageID)
		if err != nil {
			return 0, 0, err
		}
		oldLast.SetNextPageID(newPage.ID())
		if err := s.pager.WritePage(oldLast); err != nil {
			return 0, 0, err
		}
		newPage.SetPrevPageID(meta.LastPageID)
		if err := s.pager.WritePage(newPage); err != nil {
			return 0, 0, err
		}
	} else {
		meta.FirstPageID = newPage.ID()
	}
	meta.LastPageID = newPage.ID()
	return newPage.ID(), slot, nil
}

func prependID(doc *bson.Document, id bson.ObjectID) *bson.Document {
	out := bson.NewDocument()
	out.Set("_id", bson.ObjectIDValue(id))
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		out.Set(k, v)
	}
	return out
}

// ---- Find ----

// Find returns every document matching filter. A nil filter matches
// everything.
func (s *Storage) Find(filter *bson.Document) ([]*bson.Document, error) {
	locs, err := s.scan()
	if err != nil {
		return nil, err
	}
	var result []*bson.Document
	for _, l := range locs {
		if Matches(l.doc, filter) {
			result = append(result, l.doc)
		}
	}
	return result, nil
}

// FindOne returns the first document matching filter, or (nil, false).
func (s *Storage) FindOne(filter *bson.Document) (*bson.Document, bool, error) {
	locs, err := s.scan()
	if err != nil {
		return nil, false, err
	}
	for _, l := range locs {
		if Matches(l.doc, filter) {
			return l.doc, true, nil
		}
	}
	return nil, false, nil
}

// Count returns the number of documents currently in the collection.
func (s *Storage) Count() uint64 { return s.meta().DocumentCount }

// Distinct returns the set of distinct values for field across
// documents matching filter, in first-seen order.
func (s *Storage) Distinct(field string, filter *bson.Document) ([]bson.Value, error) {
	locs, err := s.scan()
	if err != nil {
		return nil, err
	}
	path := strings.Split(field, ".")
	var out []bson.Value
	for _, l := range locs {
		if !Matches(l.doc, filter) {
			continue
		}
		v, ok := l.doc.GetPath(path)
		if !ok {
			continue
		}
		dup := false
		for _, seen := range out {
			if bson.Compare(seen, v) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

// ---- Update ----

// Update applies updateSpec to every document matching filter. If
// upsert is true and nothing matched, a new document is seeded from
// filter's fields whose values are not documents, updateSpec is applied
// to it, and it is inserted.
func (s *Storage) Update(filter, updateSpec *bson.Document, upsert bool) (matched, modified int, err error) {
	locs, err := s.scan()
	if err != nil {
		return 0, 0, err
	}

	for _, l := range locs {
		if !Matches(l.doc, filter) {
			continue
		}
		matched++

		newDoc := cloneDocument(l.doc)
		changed, err := ApplyUpdate(newDoc, updateSpec)
		if err != nil {
			return matched, modified, err
		}
		if !changed {
			continue
		}

		id := docID(l.doc)
		indexes := s.idxMgr.ForCollection(s.Name)

		// Delete-old-then-insert-new: the pre-image's entries must come
		// out before the new value goes in, or updating an unrelated
		// field on a document collides with that same document's own
		// still-present unique-index entry.
		for _, idx := range indexes {
			idx.Remove(l.doc, id)
		}

		var addedTo []*index.Index
		var addErr error
		for _, idx := range indexes {
			if err := idx.Add(newDoc, id); err != nil {
				addErr = err
				break
			}
			addedTo = append(addedTo, idx)
		}
		if addErr != nil {
			for _, idx := range addedTo {
				idx.Remove(newDoc, id)
			}
			s.restorePreImage(indexes, l.doc, id)
			return matched, modified, addErr
		}

		rec, err := encodeDocument(newDoc)
		if err != nil {
			s.rollbackIndexUpdate(newDoc, id)
			s.restorePreImage(indexes, l.doc, id)
			return matched, modified, err
		}
		if err := s.writeAt(l.pageID, l.slot, rec); err != nil {
			s.rollbackIndexUpdate(newDoc, id)
			s.restorePreImage(indexes, l.doc, id)
			return matched, modified, err
		}

		modified++
	}

	if matched == 0 && upsert {
		seed := bson.NewDocument()
		for _, k := range filter.Keys() {
			v, _ := filter.Get(k)
			if _, isOperator := v.AsDocument(); !isOperator {
				seed.Set(k, v)
			}
		}
		if _, err := ApplyUpdate(seed, updateSpec); err != nil {
			return matched, modified, err
		}
		if _, err := s.Insert([]*bson.Document{seed}); err != nil {
			return matched, modified, err
		}
		modified++
	}
	return matched, modified, nil
}

// rollbackIndexUpdate undoes index entries added for newDoc when the
// document write itself subsequently fails.
func (s *Storage) rollbackIndexUpdate(newDoc *bson.Document, id bson.ObjectID) {
	for _, idx := range s.idxMgr.ForCollection(s.Name) {
		idx.Remove(newDoc, id)
	}
}

// restorePreImage re-adds oldDoc's entries to indexes after they were
// removed up front but the update did not ultimately go through.
func (s *Storage) restorePreImage(indexes []*index.Index, oldDoc *bson.Document, id bson.ObjectID) {
	for _, idx := range indexes {
		idx.Add(oldDoc, id)
	}
}

// writeAt replaces the record at (pageID, slot). If it no longer fits
// on that page even after the slotted page's in-place/append fallback,
// the record relocates elsewhere in the collection's chain — documents
// are found by scanning, not by a fixed location, so no external
// pointer needs fixing.
func (s *Storage) writeAt(pageID uint32, slot int, rec []byte) error {
	page, err := s.pager.ReadPage(pageID)
	if err != nil {
		return err
	}
	err = page.UpdateRecord(slot, rec)
	if err == nil {
		return s.pager.WritePage(page)
	}
	if err != storage.ErrPageFull {
		return err
	}

	if err := page.DeleteRecord(slot); err != nil {
		return err
	}
	if err := s.pager.WritePage(page); err != nil {
		return err
	}

	meta := s.meta()
	_, _, err = s.appendRecord(&meta, rec)
	if err != nil {
		return err
	}
	s.catalog.Put(meta)
	return s.catalog.Save()
}

func cloneDocument(doc *bson.Document) *bson.Document {
	out := bson.NewDocument()
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		out.Set(k, v)
	}
	return out
}

// ---- Delete ----

// Delete removes every document matching filter, undoing their index
// entries first.
func (s *Storage) Delete(filter *bson.Document) (int, error) {
	return s.deleteMatching(filter, false)
}

// DeleteOne removes the first document matching filter.
func (s *Storage) DeleteOne(filter *bson.Document) (int, error) {
	return s.deleteMatching(filter, true)
}

func (s *Storage) deleteMatching(filter *bson.Document, first bool) (int, error) {
	locs, err := s.scan()
	if err != nil {
		return 0, err
	}
	meta := s.meta()
	count := 0
	for _, l := range locs {
		if !Matches(l.doc, filter) {
			continue
		}
		id := docID(l.doc)
		for _, idx := range s.idxMgr.ForCollection(s.Name) {
			idx.Remove(l.doc, id)
		}
		page, err := s.pager.ReadPage(l.pageID)
		if err != nil {
			return count, err
		}
		if err := page.DeleteRecord(l.slot); err != nil {
			return count, err
		}
		if err := s.pager.WritePage(page); err != nil {
			return count, err
		}
		count++
		if meta.DocumentCount > 0 {
			meta.DocumentCount--
		}
		if first {
			break
		}
	}
	if count > 0 {
		s.catalog.Put(meta)
		if err := s.catalog.Save(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// ---- Index lifecycle ----

// CreateIndex builds a new index and backfills it from every existing
// document, per spec.Fields in projection order.
func (s *Storage) CreateIndex(spec index.Spec) error {
	idx, err := s.idxMgr.CreateIndex(s.Name, spec)
	if err != nil {
		return err
	}
	locs, err := s.scan()
	if err != nil {
		return err
	}
	for _, l := range locs {
		if err := idx.Add(l.doc, docID(l.doc)); err != nil {
			s.idxMgr.DropIndex(s.Name, spec.Name)
			return err
		}
	}

	meta := s.meta()
	fields := make([][]string, len(spec.Fields))
	for i, f := range spec.Fields {
		fields[i] = f.Path
	}
	meta.Indexes = append(meta.Indexes, catalog.IndexMeta{
		Name:       spec.Name,
		Fields:     fields,
		Unique:     spec.Unique,
		RootPageID: idx.RootPageID(),
	})
	s.catalog.Put(meta)
	return s.catalog.Save()
}

// DropIndex removes an index from the manager and the catalog.
func (s *Storage) DropIndex(name string) error {
	if err := s.idxMgr.DropIndex(s.Name, name); err != nil {
		return err
	}
	meta := s.meta()
	for i, im := range meta.Indexes {
		if im.Name == name {
			meta.Indexes = append(meta.Indexes[:i], meta.Indexes[i+1:]...)
			break
		}
	}
	s.catalog.Put(meta)
	return s.catalog.Save()
}
