// Package btree implements a disk-backed B-tree of fixed 4 KB pages.
//
// Leaves hold the data: up to MaxLeafCells key/value cells in strictly
// increasing key order. Internal nodes hold separator keys and child page
// pointers and never hold values. Lookups descend from the root with a
// binary search per node; inserts go through a Cursor obtained from Find.
// A full leaf splits in two, the lower half's maximum key is promoted as
// the separator, and an overflowing parent splits in turn, up to and
// including promotion of a brand-new root.
//
// The tree holds no decoded pages between operations. It tracks only the
// page number of the current root and fetches nodes from its PageStore on
// demand; one node is decoded and mutated at a time.
package btree

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDuplicateKey rejects an insert whose key already exists in the tree.
var ErrDuplicateKey = errors.New("btree: duplicate key")

// BTree orchestrates search, insertion, and splits over a PageStore.
type BTree struct {
	store    PageStore
	rootPage uint32
}

// Open loads a tree from the store, creating a fresh single-leaf root at
// page 0 when the store is empty. The root moves to a fresh page on every
// root split, so opening an existing file locates the one page whose
// is-root flag is set; page 0 is checked first since it stays root until
// the first split.
func Open(store PageStore) (*BTree, error) {
	if store.PageCount() == 0 {
		root := newLeaf()
		root.isRoot = true
		if err := store.CommitPage(root); err != nil {
			return nil, fmt.Errorf("btree: init root: %w", err)
		}
		return &BTree{store: store}, nil
	}

	rootPage, err := findRoot(store)
	if err != nil {
		return nil, err
	}
	return &BTree{store: store, rootPage: rootPage}, nil
}

func findRoot(store PageStore) (uint32, error) {
	for i := uint32(0); i < store.PageCount(); i++ {
		n, err := store.GetPage(i)
		if err != nil {
			return 0, fmt.Errorf("btree: locate root: %w", err)
		}
		if n.isRoot {
			return i, nil
		}
	}
	return 0, fmt.Errorf("btree: no root among %d pages", store.PageCount())
}

// Root fetches the current root node.
func (t *BTree) Root() (*Node, error) {
	return t.store.GetPage(t.rootPage)
}

// Close flushes all committed pages to stable storage.
func (t *BTree) Close() error {
	return t.store.Close()
}

// Find descends to the leaf whose key range covers key and binary-searches
// it. found reports whether key exists; either way the cursor is the
// position where key lives or must be inserted. A miss on a full leaf
// parks the cursor at the leaf's cell count, with EndOfTable set when that
// leaf is the last page of the store, so the insert path knows a split
// comes first.
func (t *BTree) Find(key uint32) (Cursor, bool, error) {
	leaf, err := t.findLeaf(key)
	if err != nil {
		return Cursor{}, false, err
	}
	pageNum, cellNum, found := leaf.Find(key)
	if pageNum == InvalidPage {
		return Cursor{
			PageNum:    leaf.pageNum,
			CellNum:    leaf.NumCells(),
			EndOfTable: leaf.pageNum == t.store.PageCount()-1,
		}, false, nil
	}
	return Cursor{PageNum: pageNum, CellNum: cellNum}, found, nil
}

func (t *BTree) findLeaf(key uint32) (*Node, error) {
	n, err := t.store.GetPage(t.rootPage)
	if err != nil {
		return nil, err
	}
	for n.typ == Internal {
		if n, err = t.store.GetPage(n.childFor(key)); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Get returns the value at a cursor position previously confirmed by
// Find. A cursor that does not point at an existing cell is a contract
// violation and panics; storage faults are returned.
func (t *BTree) Get(pageNum, cellNum uint32) ([]byte, error) {
	n, err := t.store.GetPage(pageNum)
	if err != nil {
		return nil, err
	}
	c, ok := n.Get(cellNum)
	if !ok {
		panic(fmt.Sprintf("btree: invalid cursor: page %d has no cell %d", pageNum, cellNum))
	}
	return c.Value, nil
}

// Insert places value under key at the position cur points to and reports
// whether it was placed. Inserting a key that already exists fails with
// ErrDuplicateKey and leaves the tree unchanged. A full target leaf goes
// through the split protocol first; splits grow parents as needed and may
// promote a new root.
func (t *BTree) Insert(cur Cursor, key uint32, value []byte) (bool, error) {
	if len(value) != CellValueSize {
		return false, fmt.Errorf("btree: value must be %d bytes, got %d", CellValueSize, len(value))
	}
	n, err := t.store.GetPage(cur.PageNum)
	if err != nil {
		return false, err
	}
	if n.typ != Leaf {
		panic(fmt.Sprintf("btree: invalid cursor: page %d is not a leaf", cur.PageNum))
	}
	if c, ok := n.Get(cur.CellNum); ok && c.Key == key {
		return false, ErrDuplicateKey
	}
	if n.NumCells() >= MaxLeafCells {
		return t.splitInsert(n, key, value)
	}
	if cur.CellNum > n.NumCells() {
		panic(fmt.Sprintf("btree: invalid cursor: cell %d past end of page %d", cur.CellNum, cur.PageNum))
	}
	if !n.Insert(cur.CellNum, key, value) {
		return false, nil
	}
	if err := t.store.CommitPage(n); err != nil {
		return false, err
	}
	return true, nil
}

// splitInsert is the leaf split protocol: split the full leaf, place the
// pending cell into the half its key sorts into, commit both leaves, then
// wire the new sibling into the parent level.
func (t *BTree) splitInsert(full *Node, key uint32, value []byte) (bool, error) {
	right := full.Split(t.store.PageCount())
	right.parent = full.parent
	sep := full.maxKey()

	target := full
	if key > sep {
		target = right
	}
	_, cellNum, _ := target.Find(key)
	if !target.Insert(cellNum, key, value) {
		return false, nil
	}

	if err := t.store.CommitPage(full); err != nil {
		return false, err
	}
	if err := t.store.CommitPage(right); err != nil {
		return false, err
	}
	if err := t.insertIntoParent(full, right, sep); err != nil {
		return false, err
	}
	return true, nil
}

// insertIntoParent records a split one level up: left kept its page and
// now tops out at sep; right is its new sibling. The parent's existing
// slot for left is re-keyed and a slot for the other half is inserted in
// order. An overflowing parent splits in turn; a split root gets a
// brand-new root page.
func (t *BTree) insertIntoParent(left, right *Node, sep uint32) error {
	if left.isRoot {
		return t.promoteRoot(left, right, sep)
	}

	parent, err := t.store.GetPage(left.parent)
	if err != nil {
		return err
	}
	i := parent.childIndex(left.pageNum)
	if i < 0 {
		return fmt.Errorf("btree: page %d missing from parent page %d", left.pageNum, parent.pageNum)
	}

	var pendKey, pendChild uint32
	if i == len(parent.keys) {
		// left was the rightmost child: right takes that spot and left
		// re-enters as an ordinary slot under the separator.
		parent.children[i] = right.pageNum
		pendKey, pendChild = sep, left.pageNum
	} else {
		// left keeps its slot with its new maximum; right enters under
		// the slot's old separator, which is now its own maximum.
		pendKey = parent.keys[i]
		parent.keys[i] = sep
		pendChild = right.pageNum
	}

	if parent.insertChild(pendKey, pendChild) {
		return t.store.CommitPage(parent)
	}
	return t.splitInternalInsert(parent, pendKey, pendChild)
}

// splitInternalInsert splits a full internal node to make room for one
// more (separator, child) pair, fixes the parent pointers of every child
// that moved under the new sibling, and recurses the split one level up
// with the promoted median.
func (t *BTree) splitInternalInsert(full *Node, pendKey, pendChild uint32) error {
	promoted, right := full.splitInternal(t.store.PageCount())
	right.parent = full.parent

	target := full
	if pendKey > promoted {
		target = right
	}
	if !target.insertChild(pendKey, pendChild) {
		return fmt.Errorf("btree: no room in page %d after split", target.pageNum)
	}

	if err := t.store.CommitPage(full); err != nil {
		return err
	}
	if err := t.store.CommitPage(right); err != nil {
		return err
	}
	if err := t.reparentChildren(right); err != nil {
		return err
	}
	return t.insertIntoParent(full, right, promoted)
}

// reparentChildren rewrites the parent pointer of every child of n that
// does not already point at it.
func (t *BTree) reparentChildren(n *Node) error {
	for _, childPage := range n.children {
		child, err := t.store.GetPage(childPage)
		if err != nil {
			return fmt.Errorf("btree: reparent page %d: %w", childPage, err)
		}
		if child.parent == n.pageNum {
			continue
		}
		child.parent = n.pageNum
		if err := t.store.CommitPage(child); err != nil {
			return err
		}
	}
	return nil
}

// promoteRoot grows the tree by one level: a brand-new internal root at a
// fresh page takes the two halves of the old root as its only children.
func (t *BTree) promoteRoot(left, right *Node, sep uint32) error {
	root := newInternal()
	root.pageNum = t.store.PageCount()
	root.isRoot = true
	root.keys = []uint32{sep}
	root.children = []uint32{left.pageNum, right.pageNum}

	left.isRoot = false
	left.parent = root.pageNum
	right.parent = root.pageNum

	for _, n := range []*Node{left, right, root} {
		if err := t.store.CommitPage(n); err != nil {
			return fmt.Errorf("btree: promote root: %w", err)
		}
	}
	t.rootPage = root.pageNum
	return nil
}

// Dump writes an indented outline of the tree to w, one node per line.
func (t *BTree) Dump(w io.Writer) error {
	return t.dumpNode(w, t.rootPage, 0)
}

func (t *BTree) dumpNode(w io.Writer, pageNum uint32, depth int) error {
	n, err := t.store.GetPage(pageNum)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)
	switch n.typ {
	case Leaf:
		keys := make([]string, len(n.cells))
		for i, c := range n.cells {
			keys[i] = fmt.Sprint(c.Key)
		}
		_, err := fmt.Fprintf(w, "%s- leaf (page %d): %s\n", indent, n.pageNum, strings.Join(keys, " "))
		return err
	default:
		if _, err := fmt.Fprintf(w, "%s- internal (page %d, %d keys)\n", indent, n.pageNum, len(n.keys)); err != nil {
			return err
		}
		for i, child := range n.children {
			if err := t.dumpNode(w, child, depth+1); err != nil {
				return err
			}
			if i < len(n.keys) {
				if _, err := fmt.Fprintf(w, "%s  key %d\n", indent, n.keys[i]); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
