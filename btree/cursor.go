package btree

// Cursor is an immutable position in the tree: either an existing cell
// (Find hit) or the exact index where a new cell must be inserted to keep
// keys ordered (Find miss). EndOfTable marks the position past the last
// cell of a full last page. Cursors compare equal by all three fields.
type Cursor struct {
	PageNum    uint32
	CellNum    uint32
	EndOfTable bool
}
