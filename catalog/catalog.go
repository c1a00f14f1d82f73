// Package catalog persists the directory of collections and indexes: a
// single logical document, possibly spread across a chain of pages.
package catalog

import (
	"errors"

	"github.com/felmond13/novusdb-doc/bson"
	"github.com/felmond13/novusdb-doc/storage"
)

// multiPageMagic marks the first page of a catalog chain that spans
// more than one page.
const multiPageMagic uint32 = 0x4D504354 // "MPCT"

// IndexMeta is one persisted index's catalog entry.
type IndexMeta struct {
	Name       string
	Fields     [][]string // dotted paths, pre-split
	Unique     bool
	RootPageID uint32
}

// CollectionMeta is one persisted collection's catalog entry.
type CollectionMeta struct {
	Name           string
	FirstPageID    uint32
	LastPageID     uint32
	DocumentCount  uint64
	Indexes        []IndexMeta
}

// Catalog is the in-memory directory, synchronized to disk via Save.
type Catalog struct {
	pager       *storage.Pager
	collections []CollectionMeta
	pageID      uint32 // first page of the persisted chain, 0 if none yet
}

// Load reads the catalog from the pager's recorded catalog page id. A
// zero page id means a fresh database with no collections.
func Load(pager *storage.Pager) (*Catalog, error) {
	c := &Catalog{pager: pager}
	pageID := pager.CatalogPageID()
	if pageID == 0 {
		return c, nil
	}
	c.pageID = pageID

	payload, err := readChain(pager, pageID)
	if err != nil {
		return nil, err
	}
	doc, err := bson.Decode(payload)
	if err != nil {
		return nil, err
	}
	c.collections = decodeCollections(doc)
	return c, nil
}

// readChain reads a catalog's full payload, following the multi-page
// chain if the first page carries the chain magic, or reading a u32
// length followed by a single document otherwise.
func readChain(pager *storage.Pager, firstPageID uint32) ([]byte, error) {
	page, err := pager.ReadPage(firstPageID)
	if err != nil {
		return nil, err
	}
	data := page.DataArea()

	if leUint32(data) == multiPageMagic {
		totalLen := leUint32(data[4:])
		pageCount := leUint32(data[8:])
		out := make([]byte, 0, totalLen)
		out = append(out, data[12:]...)

		nextID := page.NextPageID()
		for i := uint32(1); i < pageCount; i++ {
			if nextID == 0 {
				return nil, errors.New("catalog: chain page count exceeds linked pages")
			}
			p, err := pager.ReadPage(nextID)
			if err != nil {
				return nil, err
			}
			out = append(out, p.DataArea()...)
			nextID = p.NextPageID()
		}
		if uint32(len(out)) < totalLen {
			return nil, errors.New("catalog: chain payload shorter than declared length")
		}
		return out[:totalLen], nil
	}

	docLen := leUint32(data)
	if 4+int(docLen) > len(data) {
		return nil, errors.New("catalog: single-page document length exceeds page data area")
	}
	return data[4 : 4+docLen], nil
}

// Collections returns the current collection directory. The returned
// slice must not be mutated by the caller.
func (c *Catalog) Collections() []CollectionMeta { return c.collections }

// Get returns a collection's metadata by name.
func (c *Catalog) Get(name string) (CollectionMeta, bool) {
	for _, cm := range c.collections {
		if cm.Name == name {
			return cm, true
		}
	}
	return CollectionMeta{}, false
}

// Put inserts or replaces a collection's metadata by name.
func (c *Catalog) Put(meta CollectionMeta) {
	for i := range c.collections {
		if c.collections[i].Name == meta.Name {
			c.collections[i] = meta
			return
		}
	}
	c.collections = append(c.collections, meta)
}

// Remove deletes a collection's metadata by name.
func (c *Catalog) Remove(name string) {
	for i := range c.collections {
		if c.collections[i].Name == name {
			c.collections = append(c.collections[:i], c.collections[i+1:]...)
			return
		}
	}
}

// Save encodes the catalog and writes it back to its page chain,
// allocating a chain if none exists, reusing and truncating the
// existing chain otherwise, and recording the new head in the pager's
// file header.
func (c *Catalog) Save() error {
	doc := encodeCollections(c.collections)
	payload, err := bson.Encode(doc)
	if err != nil {
		return err
	}

	oldChain, err := c.chainPageIDs()
	if err != nil {
		return err
	}

	var newChain []uint32
	if len(payload) <= storage.DataAreaSize {
		var pageID uint32
		if len(oldChain) > 0 {
			pageID = oldChain[0]
		} else {
			page, err := c.pager.AllocatePage(storage.PageTypeCatalog)
			if err != nil {
				return err
			}
			pageID = page.ID()
		}
		page, err := c.pager.ReadPage(pageID)
		if err != nil {
			return err
		}
		data := page.DataArea()
		for i := range data {
			data[i] = 0
		}
		putLEUint32(data, uint32(len(payload)))
		copy(data[4:], payload)
		page.SetNextPageID(0)
		if err := c.pager.WritePage(page); err != nil {
			return err
		}
		newChain = []uint32{pageID}
	} else {
		// the first page reserves 12 header bytes for the chain magic,
		// total length, and page count, so it carries less payload.
		var pageCount uint32
		firstCap := storage.DataAreaSize - 12
		if len(payload) > firstCap {
			remaining := len(payload) - firstCap
			pageCount = 1 + uint32((remaining+storage.DataAreaSize-1)/storage.DataAreaSize)
		} else {
			pageCount = 1
		}

		ids := make([]uint32, pageCount)
		for i := range ids {
			if i < len(oldChain) {
				ids[i] = oldChain[i]
			} else {
				page, err := c.pager.AllocatePage(storage.PageTypeCatalog)
				if err != nil {
					return err
				}
				ids[i] = page.ID()
			}
		}

		off := 0
		for i, pageID := range ids {
			page, err := c.pager.ReadPage(pageID)
			if err != nil {
				return err
			}
			data := page.DataArea()
			for j := range data {
				data[j] = 0
			}
			var n int
			if i == 0 {
				putLEUint32(data, multiPageMagic)
				putLEUint32(data[4:], uint32(len(payload)))
				putLEUint32(data[8:], pageCount)
				n = copy(data[12:], payload[off:])
			} else {
				n = copy(data, payload[off:])
			}
			off += n
			if i < len(ids)-1 {
				page.SetNextPageID(ids[i+1])
			} else {
				page.SetNextPageID(0)
			}
			if err := c.pager.WritePage(page); err != nil {
				return err
			}
		}
		newChain = ids
	}

	for _, id := range oldChain {
		if !containsUint32(newChain, id) {
			if err := c.pager.FreePage(id); err != nil {
				return err
			}
		}
	}

	c.pageID = newChain[0]
	return c.pager.SetCatalogPageID(c.pageID)
}

// chainPageIDs walks the currently persisted chain (if any) and returns
// its page ids in order, without decoding the payload.
func (c *Catalog) chainPageIDs() ([]uint32, error) {
	if c.pageID == 0 {
		return nil, nil
	}
	var ids []uint32
	id := c.pageID
	for id != 0 {
		ids = append(ids, id)
		page, err := c.pager.ReadPage(id)
		if err != nil {
			return nil, err
		}
		id = page.NextPageID()
	}
	return ids, nil
}

// Verify walks the persisted chain and confirms the declared payload
// length matches the bytes actually read back.
func (c *Catalog) Verify() error {
	if c.pageID == 0 {
		return nil
	}
	page, err := c.pager.ReadPage(c.pageID)
	if err != nil {
		return err
	}
	data := page.DataArea()
	var declared uint32
	if leUint32(data) == multiPageMagic {
		declared = leUint32(data[4:])
	} else {
		declared = leUint32(data)
	}
	payload, err := readChain(c.pager, c.pageID)
	if err != nil {
		return err
	}
	if uint32(len(payload)) != declared {
		return errors.New("catalog: verify failed: read length does not match declared length")
	}
	return nil
}

func containsUint32(s []uint32, v uint32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLEUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// ---- bson (de)serialization of the directory ----

func encodeCollections(cols []CollectionMeta) *bson.Document {
	doc := bson.NewDocument()
	items := make([]bson.Value, len(cols))
	for i, cm := range cols {
		cd := bson.NewDocument()
		cd.Set("name", bson.String(cm.Name))
		cd.Set("firstPageId", bson.Int64(int64(cm.FirstPageID)))
		cd.Set("lastPageId", bson.Int64(int64(cm.LastPageID)))
		cd.Set("documentCount", bson.Int64(int64(cm.DocumentCount)))

		idxItems := make([]bson.Value, len(cm.Indexes))
		for j, im := range cm.Indexes {
			id := bson.NewDocument()
			id.Set("name", bson.String(im.Name))
			keyItems := make([]bson.Value, len(im.Fields))
			for k, path := range im.Fields {
				keyItems[k] = bson.String(joinPath(path))
			}
			id.Set("keys", bson.ArrayValue(keyItems))
			id.Set("unique", bson.Bool(im.Unique))
			id.Set("rootPageId", bson.Int64(int64(im.RootPageID)))
			idxItems[j] = bson.DocumentValue(id)
		}
		cd.Set("indexes", bson.ArrayValue(idxItems))
		items[i] = bson.DocumentValue(cd)
	}
	doc.Set("collections", bson.ArrayValue(items))
	return doc
}

func decodeCollections(doc *bson.Document) []CollectionMeta {
	v, ok := doc.Get("collections")
	if !ok {
		return nil
	}
	arr, ok := v.AsArray()
	if !ok {
		return nil
	}
	cols := make([]CollectionMeta, 0, len(arr))
	for _, item := range arr {
		cd, ok := item.AsDocument()
		if !ok {
			continue
		}
		cm := CollectionMeta{}
		if nv, ok := cd.Get("name"); ok {
			cm.Name, _ = nv.AsString()
		}
		if fv, ok := cd.Get("firstPageId"); ok {
			n, _ := fv.AsInt64()
			cm.FirstPageID = uint32(n)
		}
		if lv, ok := cd.Get("lastPageId"); ok {
			n, _ := lv.AsInt64()
			cm.LastPageID = uint32(n)
		}
		if dv, ok := cd.Get("documentCount"); ok {
			n, _ := dv.AsInt64()
			cm.DocumentCount = uint64(n)
		}
		if iv, ok := cd.Get("indexes"); ok {
			if idxArr, ok := iv.AsArray(); ok {
				for _, ie := range idxArr {
					id, ok := ie.AsDocument()
					if !ok {
						continue
					}
					im := IndexMeta{}
					if nv, ok := id.Get("name"); ok {
						im.Name, _ = nv.AsString()
					}
					if kv, ok := id.Get("keys"); ok {
						if keyArr, ok := kv.AsArray(); ok {
							for _, k := range keyArr {
								s, _ := k.AsString()
								im.Fields = append(im.Fields, splitPath(s))
							}
						}
					}
					if uv, ok := id.Get("unique"); ok {
						im.Unique, _ = uv.AsBool()
					}
					if rv, ok := id.Get("rootPageId"); ok {
						n, _ := rv.AsInt64()
						im.RootPageID = uint32(n)
					}
					cm.Indexes = append(cm.Indexes, im)
				}
			}
		}
		cols = append(cols, cm)
	}
	return cols
}

func joinPath(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}

func splitPath(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
