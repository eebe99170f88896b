package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tablet-db/tablet/pager"
	"github.com/tablet-db/tablet/row"
)

// On-disk page layout. Every page starts with the common header:
//
//	[0]     1 byte   node type (0 = internal, 1 = leaf)
//	[1]     1 byte   is-root flag
//	[2-5]   4 bytes  parent page (InvalidPage when the node has none)
//	[6-9]   4 bytes  cell count
//
// Leaf pages store cells contiguously in key order from offset 10, each
// cell a 4-byte key followed by the fixed-size row value. There is no
// free list or slotted layout; insertion shifts later cells physically.
//
// Internal pages extend the header with the rightmost child pointer:
//
//	[10-13] 4 bytes  rightmost child page
//	[14+]   cells of (child page uint32, separator key uint32)
//
// Separator key i is the maximum key stored under child i; the rightmost
// child covers everything above the last separator.
const (
	offType     = 0
	offIsRoot   = 1
	offParent   = 2
	offNumCells = 6

	offLeafCells     = 10
	offRightmost     = 10
	offInternalCells = 14

	// HeaderSize is the common header shared by both page kinds.
	HeaderSize = 10

	leafKeySize = 4

	// CellValueSize is the fixed size of a cell's value. The tree never
	// parses value bytes; it only needs their size for the page layout.
	CellValueSize = row.Size

	// LeafCellSize is one leaf cell: key plus value.
	LeafCellSize = leafKeySize + CellValueSize

	// MaxLeafCells is the leaf capacity computed from the layout (12).
	MaxLeafCells = (pager.PageSize - HeaderSize - LeafCellSize) / LeafCellSize

	// InternalHeaderSize adds the rightmost child pointer to the header.
	InternalHeaderSize = HeaderSize + 4

	// InternalCellSize is one internal cell: child page plus separator key.
	InternalCellSize = 8

	// MaxInternalCells is the internal fan-out capacity computed from the
	// layout (510 separator keys, 511 children).
	MaxInternalCells = (pager.PageSize - InternalHeaderSize) / InternalCellSize

	// InvalidPage is the nil page pointer: the parent of the root on disk,
	// and the sentinel Find returns for a miss on a full leaf.
	InvalidPage = ^uint32(0)
)

// encodePage serializes a node into a raw page.
func encodePage(n *Node) *pager.Page {
	pg := new(pager.Page)
	pg[offType] = byte(n.typ)
	if n.isRoot {
		pg[offIsRoot] = 1
	}
	binary.LittleEndian.PutUint32(pg[offParent:], n.parent)
	binary.LittleEndian.PutUint32(pg[offNumCells:], n.NumCells())

	switch n.typ {
	case Leaf:
		off := offLeafCells
		for _, c := range n.cells {
			binary.LittleEndian.PutUint32(pg[off:], c.Key)
			copy(pg[off+leafKeySize:off+LeafCellSize], c.Value)
			off += LeafCellSize
		}
	case Internal:
		rightmost := InvalidPage
		if len(n.children) > 0 {
			rightmost = n.children[len(n.children)-1]
		}
		binary.LittleEndian.PutUint32(pg[offRightmost:], rightmost)
		off := offInternalCells
		for i, key := range n.keys {
			binary.LittleEndian.PutUint32(pg[off:], n.children[i])
			binary.LittleEndian.PutUint32(pg[off+4:], key)
			off += InternalCellSize
		}
	}
	return pg
}

// decodePage materializes the node stored in a raw page. Cell values are
// copied out so the decoded node never aliases the page cache.
func decodePage(pageNum uint32, pg *pager.Page) (*Node, error) {
	n := &Node{
		pageNum: pageNum,
		isRoot:  pg[offIsRoot] == 1,
		parent:  binary.LittleEndian.Uint32(pg[offParent:]),
	}
	count := binary.LittleEndian.Uint32(pg[offNumCells:])

	switch NodeType(pg[offType]) {
	case Leaf:
		n.typ = Leaf
		if count > MaxLeafCells {
			return nil, fmt.Errorf("btree: page %d: corrupt leaf cell count %d", pageNum, count)
		}
		n.cells = make([]Cell, count)
		off := offLeafCells
		for i := range n.cells {
			n.cells[i].Key = binary.LittleEndian.Uint32(pg[off:])
			n.cells[i].Value = bytes.Clone(pg[off+leafKeySize : off+LeafCellSize])
			off += LeafCellSize
		}
	case Internal:
		n.typ = Internal
		if count == 0 || count > MaxInternalCells {
			return nil, fmt.Errorf("btree: page %d: corrupt separator count %d", pageNum, count)
		}
		n.keys = make([]uint32, count)
		n.children = make([]uint32, count+1)
		off := offInternalCells
		for i := range n.keys {
			n.children[i] = binary.LittleEndian.Uint32(pg[off:])
			n.keys[i] = binary.LittleEndian.Uint32(pg[off+4:])
			off += InternalCellSize
		}
		n.children[count] = binary.LittleEndian.Uint32(pg[offRightmost:])
	default:
		return nil, fmt.Errorf("btree: page %d: unknown node type %d", pageNum, pg[offType])
	}
	return n, nil
}
