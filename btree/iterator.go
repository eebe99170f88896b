package btree

import (
	"fmt"
	"slices"
)

// Iterator yields cells in key order within an inclusive key range.
// B-tree leaves are not linked, so the scan keeps an explicit stack of
// (page, index) frames and walks internal children in order.
type Iterator struct {
	tree  *BTree
	end   uint32
	stack []frame
	key   uint32
	val   []byte
	err   error
	done  bool
}

type frame struct {
	pageNum uint32
	idx     int // next cell (leaf) or next child (internal) to visit
}

// Scan returns an iterator over every cell in the tree.
func (t *BTree) Scan() (*Iterator, error) {
	return t.Range(0, ^uint32(0))
}

// Range returns an iterator over cells with keys in [start, end].
func (t *BTree) Range(start, end uint32) (*Iterator, error) {
	it := &Iterator{tree: t, end: end}
	if err := it.seek(t.rootPage, start); err != nil {
		return nil, err
	}
	return it, nil
}

// seek walks down to the leaf covering start, leaving each level's frame
// positioned at the next child to resume once the descent is exhausted.
func (it *Iterator) seek(rootPage, start uint32) error {
	pageNum := rootPage
	for {
		n, err := it.tree.store.GetPage(pageNum)
		if err != nil {
			return fmt.Errorf("btree: scan seek: %w", err)
		}
		if n.typ == Leaf {
			idx, _ := n.searchCells(start)
			it.stack = append(it.stack, frame{pageNum: pageNum, idx: idx})
			return nil
		}
		childIdx, _ := slices.BinarySearch(n.keys, start)
		it.stack = append(it.stack, frame{pageNum: pageNum, idx: childIdx + 1})
		pageNum = n.children[childIdx]
	}
}

// Next advances the iterator. It returns false when the range is
// exhausted or an error occurred; check Err afterwards.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	for len(it.stack) > 0 {
		f := &it.stack[len(it.stack)-1]
		n, err := it.tree.store.GetPage(f.pageNum)
		if err != nil {
			it.err = fmt.Errorf("btree: scan: %w", err)
			return false
		}

		if n.typ == Leaf {
			if f.idx >= len(n.cells) {
				it.stack = it.stack[:len(it.stack)-1]
				continue
			}
			c := n.cells[f.idx]
			if c.Key > it.end {
				it.done = true
				return false
			}
			f.idx++
			it.key = c.Key
			it.val = c.Value
			return true
		}

		if f.idx >= len(n.children) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		child := n.children[f.idx]
		f.idx++
		it.stack = append(it.stack, frame{pageNum: child, idx: 0})
	}
	it.done = true
	return false
}

// Key returns the key of the current cell.
func (it *Iterator) Key() uint32 { return it.key }

// Value returns the value of the current cell. The bytes are owned by the
// iterator's current position; copy them to retain across Next.
func (it *Iterator) Value() []byte { return it.val }

// Err returns the first storage fault hit by the scan, if any.
func (it *Iterator) Err() error { return it.err }
