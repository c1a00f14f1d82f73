// Package index implements the persistent B+Tree and the index manager
// that binds trees to collection documents.
package index

import (
	"bytes"
	"errors"
	"sort"

	"github.com/felmond13/novusdb-doc/storage"
)

// order bounds the number of keys any node may hold; a node with
// order-1 keys is considered full regardless of its byte size.
const order = 50

// maxNodeBytes is the byte-driven ceiling on a serialized node: the
// data area minus a 64-byte margin for the node header and rounding.
const maxNodeBytes = storage.DataAreaSize - 64

// splitThreshold triggers a split once a node would grow past 3/4 of
// maxNodeBytes, keeping nodes from ever approaching the hard ceiling.
const splitThreshold = maxNodeBytes * 3 / 4

// maxKeyLen and maxValueLen bound a single entry.
const (
	maxKeyLen   = storage.DataAreaSize / 4
	maxValueLen = 256
)

// minKeys is the floor a non-root node's key count may not drop below
// after a delete without triggering borrow/merge rebalancing.
const minKeys = (order - 1) / 2

// Node header layout within a page's data area, little-endian:
//
//	[0]     isLeaf    uint8 (0 or 1)
//	[1:3]   keyCount  uint16
//	[3:7]   next      uint32 (leaf chain forward pointer, 0 if none)
//	[7:11]  prev      uint32 (leaf chain back pointer, 0 if none)
//	[11:]   entries
const (
	offIsLeaf   = 0
	offKeyCount = 1
	offNext     = 3
	offPrev     = 7
	nodeDataOff = 11
)

// ErrKeyTooLong and ErrValueTooLong guard the spec's per-entry size limits.
var (
	ErrKeyTooLong   = errors.New("index: key exceeds maximum length")
	ErrValueTooLong = errors.New("index: value exceeds maximum length")
)

// node is a B+Tree node decoded into memory. Leaves carry values and a
// chain pointer; internal nodes carry one more child than they have keys.
type node struct {
	isLeaf   bool
	keys     [][]byte
	values   [][]byte // leaf only, len == len(keys)
	children []uint32 // internal only, len == len(keys)+1
	next     uint32   // leaf only
	prev     uint32   // leaf only
}

// Entry is a decoded (key, value) pair returned by Lookup and RangeScan.
type Entry struct {
	Key   []byte
	Value []byte
}

// BTree is an ordered map from opaque byte-string keys to opaque
// byte-string values, backed by the Pager. Unique trees reject a second
// insert of a key already present; non-unique trees accept duplicate
// keys, ordered by value so multi-value lookups are deterministic.
type BTree struct {
	RootPageID uint32
	Unique     bool
	pager      *storage.Pager
}

// NewBTree allocates a fresh tree with a single empty leaf as its root.
func NewBTree(pager *storage.Pager, unique bool) (*BTree, error) {
	page, err := pager.AllocatePage(storage.PageTypeIndex)
	if err != nil {
		return nil, err
	}
	writeNode(page, &node{isLeaf: true})
	if err := pager.WritePage(page); err != nil {
		return nil, err
	}
	return &BTree{RootPageID: page.ID(), Unique: unique, pager: pager}, nil
}

// OpenBTree resumes an existing tree from its persisted root page id.
func OpenBTree(pager *storage.Pager, rootPageID uint32, unique bool) *BTree {
	return &BTree{RootPageID: rootPageID, Unique: unique, pager: pager}
}

// ---- node (de)serialization ----

func readNode(page *storage.Page) *node {
	data := page.DataArea()
	n := &node{isLeaf: data[offIsLeaf] == 1}
	keyCount := int(leUint16(data[offKeyCount:]))
	n.next = leUint32(data[offNext:])
	n.prev = leUint32(data[offPrev:])

	off := nodeDataOff
	n.keys = make([][]byte, keyCount)
	for i := 0; i < keyCount; i++ {
		kl := int(leUint16(data[off:]))
		off += 2
		n.keys[i] = append([]byte(nil), data[off:off+kl]...)
		off += kl
	}
	if n.isLeaf {
		n.values = make([][]byte, keyCount)
		for i := 0; i < keyCount; i++ {
			vl := int(leUint16(data[off:]))
			off += 2
			n.values[i] = append([]byte(nil), data[off:off+vl]...)
			off += vl
		}
	} else {
		n.children = make([]uint32, keyCount+1)
		for i := 0; i <= keyCount; i++ {
			n.children[i] = leUint32(data[off:])
			off += 4
		}
	}
	return n
}

func writeNode(page *storage.Page, n *node) {
	data := page.DataArea()
	for i := range data {
		data[i] = 0
	}
	if n.isLeaf {
		data[offIsLeaf] = 1
	}
	putLEUint16(data[offKeyCount:], uint16(len(n.keys)))
	putLEUint32(data[offNext:], n.next)
	putLEUint32(data[offPrev:], n.prev)

	off := nodeDataOff
	for _, k := range n.keys {
		putLEUint16(data[off:], uint16(len(k)))
		off += 2
		copy(data[off:], k)
		off += len(k)
	}
	if n.isLeaf {
		for _, v := range n.values {
			putLEUint16(data[off:], uint16(len(v)))
			off += 2
			copy(data[off:], v)
			off += len(v)
		}
	} else {
		for _, c := range n.children {
			putLEUint32(data[off:], c)
			off += 4
		}
	}
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func putLEUint16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLEUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// nodeSize returns the serialized byte size of a node's entries, not
// counting the fixed 11-byte header.
func nodeSize(n *node) int {
	s := 0
	for _, k := range n.keys {
		s += 2 + len(k)
	}
	if n.isLeaf {
		for _, v := range n.values {
			s += 2 + len(v)
		}
	} else {
		s += 4 * len(n.children)
	}
	return s
}

// ---- descent helpers ----

func (bt *BTree) findLeaf(pageID uint32, key []byte) (*storage.Page, *node, error) {
	for {
		page, err := bt.pager.ReadPage(pageID)
		if err != nil {
			return nil, nil, err
		}
		n := readNode(page)
		if n.isLeaf {
			return page, n, nil
		}
		idx := sort.Search(len(n.keys), func(i int) bool {
			return bytes.Compare(n.keys[i], key) > 0
		})
		pageID = n.children[idx]
	}
}

func (bt *BTree) findLeftmostLeaf() (*storage.Page, *node, error) {
	pageID := bt.RootPageID
	for {
		page, err := bt.pager.ReadPage(pageID)
		if err != nil {
			return nil, nil, err
		}
		n := readNode(page)
		if n.isLeaf {
			return page, n, nil
		}
		pageID = n.children[0]
	}
}

// ---- Lookup / RangeScan ----

// Lookup returns every value stored under key, in ascending value order
// for non-unique trees (unique trees hold at most one).
func (bt *BTree) Lookup(key []byte) ([][]byte, error) {
	_, n, err := bt.findLeaf(bt.RootPageID, key)
	if err != nil {
		return nil, err
	}
	pos := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) >= 0
	})
	var result [][]byte
	for {
		for pos < len(n.keys) {
			if !bytes.Equal(n.keys[pos], key) {
				return result, nil
			}
			result = append(result, n.values[pos])
			pos++
		}
		if n.next == 0 {
			return result, nil
		}
		nextPage, err := bt.pager.ReadPage(n.next)
		if err != nil {
			return nil, err
		}
		n = readNode(nextPage)
		pos = 0
	}
}

// RangeScan returns every (key, value) pair with minKey <= key <= maxKey
// in ascending order. A nil bound is unbounded on that side.
func (bt *BTree) RangeScan(minKey, maxKey []byte) ([]Entry, error) {
	var page *storage.Page
	var n *node
	var err error
	if minKey != nil {
		page, n, err = bt.findLeaf(bt.RootPageID, minKey)
	} else {
		page, n, err = bt.findLeftmostLeaf()
	}
	if err != nil {
		return nil, err
	}
	_ = page
	var result []Entry
	for {
		for i, k := range n.keys {
			if minKey != nil && bytes.Compare(k, minKey) < 0 {
				continue
			}
			if maxKey != nil && bytes.Compare(k, maxKey) > 0 {
				return result, nil
			}
			result = append(result, Entry{Key: k, Value: n.values[i]})
		}
		if n.next == 0 {
			return result, nil
		}
		nextPage, err := bt.pager.ReadPage(n.next)
		if err != nil {
			return nil, err
		}
		n = readNode(nextPage)
	}
}

// ---- Insert ----

func (bt *BTree) isFull(n *node, keyLen, valueLen int) bool {
	if len(n.keys) >= order-1 {
		return true
	}
	extra := 2 + keyLen
	if n.isLeaf {
		extra += 2 + valueLen
	} else {
		extra += 4
	}
	return nodeSize(n)+extra > splitThreshold
}

// Insert adds (key, value). Unique trees reject a key already present
// with storage.ErrDuplicateKey.
func (bt *BTree) Insert(key, value []byte) error {
	if len(key) > maxKeyLen {
		return ErrKeyTooLong
	}
	if len(value) > maxValueLen {
		return ErrValueTooLong
	}

	rootPage, err := bt.pager.ReadPage(bt.RootPageID)
	if err != nil {
		return err
	}
	root := readNode(rootPage)

	if bt.isFull(root, len(key), len(value)) {
		newRootPage, err := bt.pager.AllocatePage(storage.PageTypeIndex)
		if err != nil {
			return err
		}
		newRoot := &node{isLeaf: false, children: []uint32{bt.RootPageID}}
		if err := bt.splitChild(newRootPage, newRoot, 0, rootPage, root); err != nil {
			return err
		}
		bt.RootPageID = newRootPage.ID()
		rootPage, newRootPage = newRootPage, nil
		root = newRoot
	}
	return bt.insertNonFull(rootPage, root, key, value)
}

func (bt *BTree) insertNonFull(page *storage.Page, n *node, key, value []byte) error {
	if n.isLeaf {
		pos := sort.Search(len(n.keys), func(i int) bool {
			c := bytes.Compare(n.keys[i], key)
			if c != 0 {
				return c >= 0
			}
			if bt.Unique {
				return true
			}
			return bytes.Compare(n.values[i], value) >= 0
		})
		if bt.Unique && pos < len(n.keys) && bytes.Equal(n.keys[pos], key) {
			return storage.ErrDuplicateKey
		}
		n.keys = append(n.keys, nil)
		copy(n.keys[pos+1:], n.keys[pos:])
		n.keys[pos] = append([]byte(nil), key...)
		n.values = append(n.values, nil)
		copy(n.values[pos+1:], n.values[pos:])
		n.values[pos] = append([]byte(nil), value...)
		writeNode(page, n)
		return bt.pager.WritePage(page)
	}

	childIdx := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) > 0
	})
	childPage, err := bt.pager.ReadPage(n.children[childIdx])
	if err != nil {
		return err
	}
	child := readNode(childPage)
	if bt.isFull(child, len(key), len(value)) {
		if err := bt.splitChild(page, n, childIdx, childPage, child); err != nil {
			return err
		}
		if err := bt.pager.WritePage(page); err != nil {
			return err
		}
		if bytes.Compare(key, n.keys[childIdx]) >= 0 {
			childIdx++
		}
		childPage, err = bt.pager.ReadPage(n.children[childIdx])
		if err != nil {
			return err
		}
		child = readNode(childPage)
	}
	return bt.insertNonFull(childPage, child, key, value)
}

// splitChild splits childPage (at index idx among parent's children) by
// a byte-driven midpoint, writing the promoted separator key and new
// sibling child id into parent, and persisting all touched pages.
func (bt *BTree) splitChild(parentPage *storage.Page, parent *node, idx int, childPage *storage.Page, child *node) error {
	mid := splitIndex(child)

	newPage, err := bt.pager.AllocatePage(storage.PageTypeIndex)
	if err != nil {
		return err
	}
	newNode := &node{isLeaf: child.isLeaf}

	var promoted []byte
	if child.isLeaf {
		newNode.keys = append([][]byte(nil), child.keys[mid:]...)
		newNode.values = append([][]byte(nil), child.values[mid:]...)
		promoted = append([]byte(nil), newNode.keys[0]...)

		newNode.next = child.next
		newNode.prev = childPage.ID()
		if child.next != 0 {
			nextPage, err := bt.pager.ReadPage(child.next)
			if err != nil {
				return err
			}
			nextNode := readNode(nextPage)
			nextNode.prev = newPage.ID()
			writeNode(nextPage, nextNode)
			if err := bt.pager.WritePage(nextPage); err != nil {
				return err
			}
		}
		child.next = newPage.ID()
		child.keys = child.keys[:mid]
		child.values = child.values[:mid]
	} else {
		promoted = append([]byte(nil), child.keys[mid]...)
		newNode.keys = append([][]byte(nil), child.keys[mid+1:]...)
		newNode.children = append([]uint32(nil), child.children[mid+1:]...)
		child.keys = child.keys[:mid]
		child.children = child.children[:mid+1]
	}

	writeNode(newPage, newNode)
	if err := bt.pager.WritePage(newPage); err != nil {
		return err
	}
	writeNode(childPage, child)
	if err := bt.pager.WritePage(childPage); err != nil {
		return err
	}

	parent.keys = append(parent.keys, nil)
	copy(parent.keys[idx+1:], parent.keys[idx:])
	parent.keys[idx] = promoted

	parent.children = append(parent.children, 0)
	copy(parent.children[idx+2:], parent.children[idx+1:])
	parent.children[idx+1] = newPage.ID()

	writeNode(parentPage, parent)
	return bt.pager.WritePage(parentPage)
}

// splitIndex scans a node's entries left to right accumulating byte
// size, returning the first key index whose cumulative size reaches
// half the node's total size, clamped to [1, keyCount-1] for leaves and
// [1, keyCount-2] for internal nodes.
func splitIndex(n *node) int {
	sizes := make([]int, len(n.keys))
	total := 0
	for i, k := range n.keys {
		s := 2 + len(k)
		if n.isLeaf {
			s += 2 + len(n.values[i])
		} else {
			s += 4
		}
		sizes[i] = s
		total += s
	}
	half := total / 2
	cum := 0
	idx := len(sizes) - 1
	for i, s := range sizes {
		cum += s
		if cum >= half {
			idx = i
			break
		}
	}
	maxIdx := len(n.keys) - 1
	if !n.isLeaf {
		// an internal split removes and promotes keys[mid], so both
		// sides must keep at least one key after that removal.
		maxIdx = len(n.keys) - 2
	}
	if idx < 1 {
		idx = 1
	}
	if idx > maxIdx {
		idx = maxIdx
	}
	return idx
}

// ---- Delete ----

// Delete removes the (key, value) pair. storage.ErrNotFound is returned
// if no matching pair exists.
func (bt *BTree) Delete(key, value []byte) error {
	if _, err := bt.deleteRecursive(bt.RootPageID, key, value); err != nil {
		return err
	}
	rootPage, err := bt.pager.ReadPage(bt.RootPageID)
	if err != nil {
		return err
	}
	root := readNode(rootPage)
	if !root.isLeaf && len(root.keys) == 0 {
		bt.RootPageID = root.children[0]
	}
	return nil
}

// deleteRecursive removes the pair from the subtree rooted at pageID,
// reporting whether that subtree's root is now underflowed so the
// caller can rebalance it against a sibling.
func (bt *BTree) deleteRecursive(pageID uint32, key, value []byte) (bool, error) {
	page, err := bt.pager.ReadPage(pageID)
	if err != nil {
		return false, err
	}
	n := readNode(page)

	if n.isLeaf {
		pos := -1
		for i := range n.keys {
			if bytes.Equal(n.keys[i], key) && bytes.Equal(n.values[i], value) {
				pos = i
				break
			}
		}
		if pos == -1 {
			return false, storage.ErrNotFound
		}
		n.keys = append(n.keys[:pos], n.keys[pos+1:]...)
		n.values = append(n.values[:pos], n.values[pos+1:]...)
		writeNode(page, n)
		if err := bt.pager.WritePage(page); err != nil {
			return false, err
		}
		return pageID != bt.RootPageID && len(n.keys) < minKeys, nil
	}

	childIdx := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) > 0
	})
	underflow, err := bt.deleteRecursive(n.children[childIdx], key, value)
	if err != nil {
		return false, err
	}
	if !underflow {
		return false, nil
	}
	return bt.fixUnderflow(page, n, childIdx)
}

// fixUnderflow repairs n.children[childIdx] by borrowing a key from a
// sibling, or failing that, merging with one, returning whether n
// itself (the parent) is now underflowed.
func (bt *BTree) fixUnderflow(parentPage *storage.Page, parent *node, childIdx int) (bool, error) {
	childPage, err := bt.pager.ReadPage(parent.children[childIdx])
	if err != nil {
		return false, err
	}
	child := readNode(childPage)

	if childIdx > 0 {
		leftPage, err := bt.pager.ReadPage(parent.children[childIdx-1])
		if err != nil {
			return false, err
		}
		left := readNode(leftPage)
		if len(left.keys) > minKeys {
			bt.borrowFromLeft(parent, childIdx, leftPage, left, childPage, child)
			return bt.writeUnderflowPages(parentPage, parent, leftPage, left, childPage, child)
		}
	}
	if childIdx < len(parent.children)-1 {
		rightPage, err := bt.pager.ReadPage(parent.children[childIdx+1])
		if err != nil {
			return false, err
		}
		right := readNode(rightPage)
		if len(right.keys) > minKeys {
			bt.borrowFromRight(parent, childIdx, childPage, child, rightPage, right)
			return bt.writeUnderflowPages(parentPage, parent, childPage, child, rightPage, right)
		}
	}

	if childIdx > 0 {
		leftPage, err := bt.pager.ReadPage(parent.children[childIdx-1])
		if err != nil {
			return false, err
		}
		left := readNode(leftPage)
		if err := bt.mergeChildren(parentPage, parent, childIdx-1, leftPage, left, childPage, child); err != nil {
			return false, err
		}
		return parentPage.ID() != bt.RootPageID && len(parent.keys) < minKeys, nil
	}

	rightPage, err := bt.pager.ReadPage(parent.children[childIdx+1])
	if err != nil {
		return false, err
	}
	right := readNode(rightPage)
	if err := bt.mergeChildren(parentPage, parent, childIdx, childPage, child, rightPage, right); err != nil {
		return false, err
	}
	return parentPage.ID() != bt.RootPageID && len(parent.keys) < minKeys, nil
}

func (bt *BTree) writeUnderflowPages(parentPage *storage.Page, parent *node, aPage *storage.Page, a *node, bPage *storage.Page, b *node) (bool, error) {
	writeNode(parentPage, parent)
	if err := bt.pager.WritePage(parentPage); err != nil {
		return false, err
	}
	writeNode(aPage, a)
	if err := bt.pager.WritePage(aPage); err != nil {
		return false, err
	}
	writeNode(bPage, b)
	if err := bt.pager.WritePage(bPage); err != nil {
		return false, err
	}
	return false, nil
}

func (bt *BTree) borrowFromLeft(parent *node, childIdx int, leftPage *storage.Page, left *node, childPage *storage.Page, child *node) {
	if child.isLeaf {
		lastIdx := len(left.keys) - 1
		child.keys = append([][]byte{left.keys[lastIdx]}, child.keys...)
		child.values = append([][]byte{left.values[lastIdx]}, child.values...)
		left.keys = left.keys[:lastIdx]
		left.values = left.values[:lastIdx]
		parent.keys[childIdx-1] = append([]byte(nil), child.keys[0]...)
		return
	}
	lastKey := left.keys[len(left.keys)-1]
	lastChild := left.children[len(left.children)-1]
	child.keys = append([][]byte{append([]byte(nil), parent.keys[childIdx-1]...)}, child.keys...)
	child.children = append([]uint32{lastChild}, child.children...)
	parent.keys[childIdx-1] = append([]byte(nil), lastKey...)
	left.keys = left.keys[:len(left.keys)-1]
	left.children = left.children[:len(left.children)-1]
}

func (bt *BTree) borrowFromRight(parent *node, childIdx int, childPage *storage.Page, child *node, rightPage *storage.Page, right *node) {
	if child.isLeaf {
		child.keys = append(child.keys, right.keys[0])
		child.values = append(child.values, right.values[0])
		right.keys = right.keys[1:]
		right.values = right.values[1:]
		parent.keys[childIdx] = append([]byte(nil), right.keys[0]...)
		return
	}
	firstKey := right.keys[0]
	firstChild := right.children[0]
	child.keys = append(child.keys, append([]byte(nil), parent.keys[childIdx]...))
	child.children = append(child.children, firstChild)
	parent.keys[childIdx] = append([]byte(nil), firstKey...)
	right.keys = right.keys[1:]
	right.children = right.children[1:]
}

// mergeChildren merges parent.children[rightIdx] into parent.children[leftIdx]
// (where rightIdx == leftIdx+1), removing the separator key at leftIdx from
// parent and freeing the now-empty right page.
func (bt *BTree) mergeChildren(parentPage *storage.Page, parent *node, leftIdx int, leftPage *storage.Page, left *node, rightPage *storage.Page, right *node) error {
	if left.isLeaf {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.next = right.next
		if right.next != 0 {
			nextPage, err := bt.pager.ReadPage(right.next)
			if err != nil {
				return err
			}
			nextNode := readNode(nextPage)
			nextNode.prev = leftPage.ID()
			writeNode(nextPage, nextNode)
			if err := bt.pager.WritePage(nextPage); err != nil {
				return err
			}
		}
	} else {
		left.keys = append(left.keys, append([]byte(nil), parent.keys[leftIdx]...))
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
	}

	parent.keys = append(parent.keys[:leftIdx], parent.keys[leftIdx+1:]...)
	parent.children = append(parent.children[:leftIdx+1], parent.children[leftIdx+2:]...)

	writeNode(parentPage, parent)
	if err := bt.pager.WritePage(parentPage); err != nil {
		return err
	}
	writeNode(leftPage, left)
	if err := bt.pager.WritePage(leftPage); err != nil {
		return err
	}
	return bt.pager.FreePage(rightPage.ID())
}

// ---- Verify ----

// Verify recursively checks node-local key ordering, the parent-supplied
// [minKey, maxKey) bound, internal fan-out arithmetic, and that the leaf
// chain's prev pointers are the exact reverse of its next pointers.
func (bt *BTree) Verify() error {
	if _, _, err := bt.verifyNode(bt.RootPageID, nil, nil); err != nil {
		return err
	}
	return bt.verifyLeafChain()
}

func (bt *BTree) verifyNode(pageID uint32, minKey, maxKey []byte) (firstLeaf, lastLeaf []byte, err error) {
	page, err := bt.pager.ReadPage(pageID)
	if err != nil {
		return nil, nil, err
	}
	n := readNode(page)

	for i := 1; i < len(n.keys); i++ {
		if bytes.Compare(n.keys[i-1], n.keys[i]) > 0 {
			return nil, nil, errors.New("index: keys not strictly ascending within node")
		}
	}
	for _, k := range n.keys {
		if minKey != nil && bytes.Compare(k, minKey) < 0 {
			return nil, nil, errors.New("index: key below parent-propagated lower bound")
		}
		if maxKey != nil && bytes.Compare(k, maxKey) >= 0 {
			return nil, nil, errors.New("index: key at or above parent-propagated upper bound")
		}
	}

	if n.isLeaf {
		if len(n.values) != len(n.keys) {
			return nil, nil, errors.New("index: leaf value count does not match key count")
		}
		if len(n.keys) == 0 {
			return nil, nil, nil
		}
		return n.keys[0], n.keys[len(n.keys)-1], nil
	}

	if len(n.children) != len(n.keys)+1 {
		return nil, nil, errors.New("index: internal node child count does not match key count + 1")
	}
	var first, last []byte
	for i, childID := range n.children {
		childMin, childMax := minKey, maxKey
		if i > 0 {
			childMin = n.keys[i-1]
		}
		if i < len(n.keys) {
			childMax = n.keys[i]
		}
		f, l, err := bt.verifyNode(childID, childMin, childMax)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			first = f
		}
		if l != nil {
			last = l
		}
	}
	return first, last, nil
}

func (bt *BTree) verifyLeafChain() error {
	page, n, err := bt.findLeftmostLeaf()
	if err != nil {
		return err
	}
	prevID := uint32(0)
	for {
		if n.prev != prevID {
			return errors.New("index: leaf chain prev pointer does not match reverse traversal")
		}
		if n.next != 0 {
			nextPage, err := bt.pager.ReadPage(n.next)
			if err != nil {
				return err
			}
			nextNode := readNode(nextPage)
			if len(n.keys) > 0 && len(nextNode.keys) > 0 {
				if bytes.Compare(n.keys[len(n.keys)-1], nextNode.keys[0]) >= 0 {
					return errors.New("index: leaf chain out of order across a page boundary")
				}
			}
			prevID = page.ID()
			page, n = nextPage, nextNode
			continue
		}
		return nil
	}
}
