package btree

import (
	"cmp"
	"slices"
)

// NodeType distinguishes the two page kinds.
type NodeType uint8

const (
	Internal NodeType = 0
	Leaf     NodeType = 1
)

// Cell is one key/value pair stored in a leaf.
type Cell struct {
	Key   uint32
	Value []byte // exactly CellValueSize bytes
}

// Node is the decoded in-memory form of one page. A node is exclusively
// owned by the operation that fetched it until committed back; two decoded
// nodes never share memory.
type Node struct {
	pageNum uint32
	isRoot  bool
	parent  uint32 // InvalidPage when the node has no parent
	typ     NodeType

	// Leaf payload: cells ordered by key.
	cells []Cell

	// Internal payload: n separator keys and n+1 children.
	// keys[i] is the maximum key under children[i]; children[n] is the
	// rightmost child covering everything above keys[n-1].
	keys     []uint32
	children []uint32
}

func newLeaf() *Node {
	return &Node{typ: Leaf, parent: InvalidPage}
}

func newLeafWithCells(cells []Cell) *Node {
	return &Node{typ: Leaf, parent: InvalidPage, cells: cells}
}

func newInternal() *Node {
	return &Node{typ: Internal, parent: InvalidPage}
}

// PageNum returns the page this node occupies in the store.
func (n *Node) PageNum() uint32 { return n.pageNum }

// IsRoot reports whether this node is the tree root.
func (n *Node) IsRoot() bool { return n.isRoot }

// Type returns Leaf or Internal.
func (n *Node) Type() NodeType { return n.typ }

// Parent returns the parent page and whether the node has one.
func (n *Node) Parent() (uint32, bool) {
	return n.parent, n.parent != InvalidPage
}

// NumCells returns the number of cells in a leaf, or the number of
// separator keys in an internal node.
func (n *Node) NumCells() uint32 {
	if n.typ == Leaf {
		return uint32(len(n.cells))
	}
	return uint32(len(n.keys))
}

// Get returns the leaf cell at cellNum. ok is false when the index is out
// of range or the node is internal; internal lookups route through the
// tree's descent instead.
func (n *Node) Get(cellNum uint32) (Cell, bool) {
	if n.typ != Leaf || cellNum >= uint32(len(n.cells)) {
		return Cell{}, false
	}
	return n.cells[cellNum], true
}

// searchCells is the shared lower-bound binary search over a leaf's cells.
func (n *Node) searchCells(key uint32) (int, bool) {
	return slices.BinarySearchFunc(n.cells, key, func(c Cell, k uint32) int {
		return cmp.Compare(c.Key, k)
	})
}

// Find binary-searches a leaf for key.
//
// Hit: (own page, cell index, true). A full leaf still answers hits.
// Miss with room: (own page, insertion index preserving order, false).
// Miss on a full leaf: (InvalidPage, 0, false). Nothing can be inserted
// here until the caller splits, and the sentinel keeps a split-requiring
// miss distinct from an ordinary one.
func (n *Node) Find(key uint32) (pageNum, cellNum uint32, found bool) {
	if n.typ != Leaf {
		panic("btree: Find on internal node; descend via the tree")
	}
	idx, ok := n.searchCells(key)
	if ok {
		return n.pageNum, uint32(idx), true
	}
	if len(n.cells) >= MaxLeafCells {
		return InvalidPage, 0, false
	}
	return n.pageNum, uint32(idx), false
}

// Insert places (key, value) at cellNum, shifting later cells right.
// Returns false when the leaf is already at capacity: the caller must
// split first, Insert never splits. The value bytes are copied.
func (n *Node) Insert(cellNum uint32, key uint32, value []byte) bool {
	if n.typ != Leaf {
		panic("btree: Insert on internal node")
	}
	if len(n.cells) >= MaxLeafCells {
		return false
	}
	v := make([]byte, CellValueSize)
	copy(v, value)
	n.cells = slices.Insert(n.cells, int(cellNum), Cell{Key: key, Value: v})
	return true
}

// maxKey returns the largest key in a leaf.
func (n *Node) maxKey() uint32 {
	return n.cells[len(n.cells)-1].Key
}

// Split moves the upper half of a leaf's cells into a new leaf assigned
// newPageNum and returns it. An even count splits exactly even; an odd
// count leaves the extra cell in the lower half. The new leaf starts
// detached (not root, no parent) and the caller wires both halves into
// the tree, using the lower half's maximum key as the separator.
func (n *Node) Split(newPageNum uint32) *Node {
	mid := (len(n.cells) + 1) / 2
	upper := slices.Clone(n.cells[mid:])
	n.cells = n.cells[:mid:mid]

	right := newLeafWithCells(upper)
	right.pageNum = newPageNum
	return right
}

// childFor returns the child page whose subtree covers key: the child at
// the first separator >= key, or the rightmost child when key is greater
// than every separator.
func (n *Node) childFor(key uint32) uint32 {
	idx, _ := slices.BinarySearch(n.keys, key)
	return n.children[idx]
}

// childIndex returns the position of page among the children, or -1.
func (n *Node) childIndex(page uint32) int {
	return slices.Index(n.children, page)
}

// insertChild inserts a separator key with the child it tops out, keeping
// both slices ordered. Returns false at fan-out capacity.
func (n *Node) insertChild(key, child uint32) bool {
	if len(n.keys) >= MaxInternalCells {
		return false
	}
	idx, _ := slices.BinarySearch(n.keys, key)
	n.keys = slices.Insert(n.keys, idx, key)
	n.children = slices.Insert(n.children, idx, child)
	return true
}

// splitInternal splits a full internal node for a push-up: the median
// separator leaves both halves and must be re-inserted one level up.
// Returns the promoted key and the new right sibling assigned newPageNum.
// The upper half's children move under the sibling; rewriting their
// parent pointers is the caller's job.
func (n *Node) splitInternal(newPageNum uint32) (promoted uint32, right *Node) {
	mid := len(n.keys) / 2
	promoted = n.keys[mid]

	right = newInternal()
	right.pageNum = newPageNum
	right.keys = slices.Clone(n.keys[mid+1:])
	right.children = slices.Clone(n.children[mid+1:])

	n.keys = n.keys[:mid:mid]
	n.children = n.children[: mid+1 : mid+1]
	return promoted, right
}
