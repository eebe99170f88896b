package btree

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablet-db/tablet/pager"
)

func openTreeAt(t *testing.T, path string) *BTree {
	t.Helper()
	store, err := OpenFileStore(path, DefaultCachePages)
	require.NoError(t, err)
	tree, err := Open(store)
	require.NoError(t, err)
	return tree
}

func openTestTree(t *testing.T) *BTree {
	t.Helper()
	tree := openTreeAt(t, filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { tree.Close() })
	return tree
}

func insertKey(t *testing.T, tree *BTree, key uint32) {
	t.Helper()
	cur, found, err := tree.Find(key)
	require.NoError(t, err)
	require.False(t, found, "key %d already present", key)
	placed, err := tree.Insert(cur, key, testValue(key))
	require.NoError(t, err)
	require.True(t, placed, "key %d not placed", key)
}

func collectKeys(t *testing.T, tree *BTree) []uint32 {
	t.Helper()
	it, err := tree.Scan()
	require.NoError(t, err)
	var keys []uint32
	for it.Next() {
		keys = append(keys, it.Key())
	}
	require.NoError(t, it.Err())
	return keys
}

func nodeKeys(n *Node) []uint32 {
	if n.typ == Internal {
		return n.keys
	}
	keys := make([]uint32, len(n.cells))
	for i, c := range n.cells {
		keys[i] = c.Key
	}
	return keys
}

func seq(from, to uint32) []uint32 {
	keys := make([]uint32, 0, to-from+1)
	for k := from; k <= to; k++ {
		keys = append(keys, k)
	}
	return keys
}

// checkTree walks every page and verifies the structural invariants:
// exactly one root flag, capacities respected, keys strictly increasing,
// every separator equal to the maximum key of its child's subtree, and
// every parent pointer consistent with the walk.
func checkTree(t *testing.T, tree *BTree) {
	t.Helper()
	roots := 0
	for i := uint32(0); i < tree.store.PageCount(); i++ {
		n, err := tree.store.GetPage(i)
		require.NoError(t, err)
		if n.isRoot {
			roots++
			assert.Equal(t, tree.rootPage, i, "root flag on page %d but tree points at %d", i, tree.rootPage)
		}
	}
	require.Equal(t, 1, roots, "exactly one page may carry the root flag")

	root, err := tree.Root()
	require.NoError(t, err)
	if root.typ == Leaf && len(root.cells) == 0 {
		return // empty tree
	}
	checkSubtree(t, tree, tree.rootPage, InvalidPage)
}

// checkSubtree verifies one subtree and returns its maximum key.
func checkSubtree(t *testing.T, tree *BTree, pageNum, wantParent uint32) uint32 {
	t.Helper()
	n, err := tree.store.GetPage(pageNum)
	require.NoError(t, err)

	if wantParent == InvalidPage {
		assert.True(t, n.isRoot, "page %d reached as root but flag unset", pageNum)
	} else {
		assert.False(t, n.isRoot, "page %d carries root flag below the root", pageNum)
		assert.Equal(t, wantParent, n.parent, "page %d parent pointer", pageNum)
	}

	keys := nodeKeys(n)
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i], "page %d keys out of order", pageNum)
	}

	if n.typ == Leaf {
		require.NotEmpty(t, n.cells, "empty leaf page %d below the root", pageNum)
		require.LessOrEqual(t, len(n.cells), MaxLeafCells, "page %d over capacity", pageNum)
		return n.maxKey()
	}

	require.LessOrEqual(t, len(n.keys), MaxInternalCells, "page %d over fan-out", pageNum)
	require.Equal(t, len(n.keys)+1, len(n.children), "page %d children/keys mismatch", pageNum)
	var max uint32
	for i, child := range n.children {
		max = checkSubtree(t, tree, child, pageNum)
		if i < len(n.keys) {
			assert.Equal(t, n.keys[i], max, "page %d separator %d is not its subtree's maximum", pageNum, i)
		} else {
			assert.Greater(t, max, n.keys[len(n.keys)-1], "page %d rightmost subtree below last separator", pageNum)
		}
	}
	return max
}

func TestFreshTreeIsEmptyLeafRoot(t *testing.T) {
	tree := openTestTree(t)

	root, err := tree.Root()
	require.NoError(t, err)
	assert.Equal(t, Leaf, root.Type())
	assert.True(t, root.IsRoot())
	assert.Equal(t, uint32(0), root.NumCells())
	assert.Equal(t, uint32(1), tree.store.PageCount())
	assert.Empty(t, collectKeys(t, tree))
}

func TestFindInsertGetRoundTrip(t *testing.T) {
	tree := openTestTree(t)

	insertKey(t, tree, 42)

	cur, found, err := tree.Find(42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint32(0), cur.CellNum)

	val, err := tree.Get(cur.PageNum, cur.CellNum)
	require.NoError(t, err)
	assert.Equal(t, testValue(42), val)

	cur, found, err = tree.Find(41)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, uint32(0), cur.CellNum)

	cur, found, err = tree.Find(43)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, uint32(1), cur.CellNum)
}

func TestMissReportsInsertionIndex(t *testing.T) {
	tree := openTestTree(t)
	for _, k := range []uint32{2, 4, 6} {
		insertKey(t, tree, k)
	}

	cases := []struct {
		key  uint32
		cell uint32
	}{
		{1, 0},
		{3, 1},
		{5, 2},
		{999, 3},
	}
	for _, tc := range cases {
		cur, found, err := tree.Find(tc.key)
		require.NoError(t, err)
		assert.False(t, found, "find(%d)", tc.key)
		assert.Equal(t, tc.cell, cur.CellNum, "find(%d)", tc.key)
		assert.False(t, cur.EndOfTable, "find(%d) on a leaf with room", tc.key)
	}
}

func TestFillSingleLeaf(t *testing.T) {
	tree := openTestTree(t)
	for k := uint32(1); k <= MaxLeafCells; k++ {
		insertKey(t, tree, k)
	}

	assert.Equal(t, uint32(1), tree.store.PageCount(), "no split while the root leaf has room")

	for k := uint32(1); k <= MaxLeafCells; k++ {
		cur, found, err := tree.Find(k)
		require.NoError(t, err)
		assert.True(t, found, "find(%d)", k)
		assert.Equal(t, uint32(0), cur.PageNum)
		assert.Equal(t, k-1, cur.CellNum)
	}

	// A miss on the full last page parks the cursor past the last cell.
	cur, found, err := tree.Find(MaxLeafCells + 1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, uint32(0), cur.PageNum)
	assert.Equal(t, uint32(MaxLeafCells), cur.CellNum)
	assert.True(t, cur.EndOfTable)
}

func TestThirteenthInsertSplitsRoot(t *testing.T) {
	tree := openTestTree(t)
	for k := uint32(1); k <= MaxLeafCells+1; k++ {
		insertKey(t, tree, k)
	}

	require.Equal(t, uint32(3), tree.store.PageCount(), "split allocates the sibling and the new root")
	assert.Equal(t, uint32(2), tree.rootPage, "new root takes the next fresh page")

	root, err := tree.Root()
	require.NoError(t, err)
	assert.Equal(t, Internal, root.Type())
	assert.Equal(t, []uint32{6}, root.keys, "separator is the lower half's maximum key")
	assert.Equal(t, []uint32{0, 1}, root.children)

	left, err := tree.store.GetPage(0)
	require.NoError(t, err)
	assert.Equal(t, seq(1, 6), nodeKeys(left))
	assert.False(t, left.isRoot)
	assert.Equal(t, uint32(2), left.parent)

	right, err := tree.store.GetPage(1)
	require.NoError(t, err)
	assert.Equal(t, seq(7, 13), nodeKeys(right))
	assert.Equal(t, uint32(2), right.parent)

	for k := uint32(1); k <= MaxLeafCells+1; k++ {
		cur, found, err := tree.Find(k)
		require.NoError(t, err)
		require.True(t, found, "find(%d) after split", k)
		val, err := tree.Get(cur.PageNum, cur.CellNum)
		require.NoError(t, err)
		assert.Equal(t, testValue(k), val)
	}
	checkTree(t, tree)
}

func TestSplitOfMiddleChildRekeysParent(t *testing.T) {
	tree := openTestTree(t)

	// Two leaves under one root: page 0 covers <= 60, page 1 the rest.
	for k := uint32(10); k <= 130; k += 10 {
		insertKey(t, tree, k)
	}
	// Fill the left leaf back up and burst it. The split happens under a
	// non-rightmost child slot, so the parent re-keys that slot and the
	// sibling enters under the old separator.
	for k := uint32(1); k <= 6; k++ {
		insertKey(t, tree, k)
	}
	insertKey(t, tree, 7)

	root, err := tree.Root()
	require.NoError(t, err)
	assert.Equal(t, []uint32{6, 60}, root.keys)
	assert.Equal(t, []uint32{0, 3, 1}, root.children)

	want := append(append(seq(1, 7), 10, 20, 30, 40, 50, 60), 70, 80, 90, 100, 110, 120, 130)
	assert.Equal(t, want, collectKeys(t, tree))
	checkTree(t, tree)
}

func TestDuplicateInsertRejected(t *testing.T) {
	tree := openTestTree(t)
	insertKey(t, tree, 5)

	cur, found, err := tree.Find(5)
	require.NoError(t, err)
	require.True(t, found)

	placed, err := tree.Insert(cur, 5, testValue(5))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.False(t, placed)
}

func TestDuplicateOnFullLeafDoesNotSplit(t *testing.T) {
	tree := openTestTree(t)
	for k := uint32(1); k <= MaxLeafCells; k++ {
		insertKey(t, tree, k)
	}

	cur, found, err := tree.Find(7)
	require.NoError(t, err)
	require.True(t, found)

	placed, err := tree.Insert(cur, 7, testValue(7))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.False(t, placed)
	assert.Equal(t, uint32(1), tree.store.PageCount(), "duplicate must not trigger a split")
}

func TestRandomInsertOrderKeepsKeysSorted(t *testing.T) {
	tree := openTestTree(t)

	rng := rand.New(rand.NewSource(42))
	for _, v := range rng.Perm(200) {
		insertKey(t, tree, uint32(v)+1)
	}

	assert.Equal(t, seq(1, 200), collectKeys(t, tree))
	for _, k := range []uint32{1, 57, 128, 200} {
		cur, found, err := tree.Find(k)
		require.NoError(t, err)
		require.True(t, found, "find(%d)", k)
		val, err := tree.Get(cur.PageNum, cur.CellNum)
		require.NoError(t, err)
		assert.Equal(t, testValue(k), val)
	}
	checkTree(t, tree)
}

func TestEndOfTableOnlyOnLastPage(t *testing.T) {
	tree := openTestTree(t)
	for k := uint32(1); k <= 13; k++ {
		insertKey(t, tree, k)
	}

	// The right leaf has room: an ordinary miss, not end of table.
	cur, found, err := tree.Find(100)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, uint32(1), cur.PageNum)
	assert.Equal(t, uint32(7), cur.CellNum)
	assert.False(t, cur.EndOfTable)

	// Fill the right leaf. Now the miss parks past a full leaf, but that
	// leaf is not the store's last page (the root is), so EndOfTable
	// stays false.
	for k := uint32(14); k <= 18; k++ {
		insertKey(t, tree, k)
	}
	cur, found, err = tree.Find(100)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, uint32(1), cur.PageNum)
	assert.Equal(t, uint32(12), cur.CellNum)
	assert.False(t, cur.EndOfTable)

	// The parked cursor still accepts the insert via the split path.
	placed, err := tree.Insert(cur, 100, testValue(100))
	require.NoError(t, err)
	assert.True(t, placed)
	_, found, err = tree.Find(100)
	require.NoError(t, err)
	assert.True(t, found)
	checkTree(t, tree)
}

func TestCloseReopenKeepsTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	tree := openTreeAt(t, path)
	for k := uint32(1); k <= 40; k++ {
		insertKey(t, tree, k)
	}
	rootBefore := tree.rootPage
	require.NotEqual(t, uint32(0), rootBefore, "root should have moved off page 0")
	require.NoError(t, tree.Close())

	tree = openTreeAt(t, path)
	defer tree.Close()

	assert.Equal(t, rootBefore, tree.rootPage, "reopen rediscovers the root by its flag")
	for k := uint32(1); k <= 40; k++ {
		cur, found, err := tree.Find(k)
		require.NoError(t, err)
		require.True(t, found, "find(%d) after reopen", k)
		val, err := tree.Get(cur.PageNum, cur.CellNum)
		require.NoError(t, err)
		assert.Equal(t, testValue(k), val)
	}
	_, found, err := tree.Find(999)
	require.NoError(t, err)
	assert.False(t, found)

	// The reopened tree keeps accepting inserts.
	for k := uint32(41); k <= 50; k++ {
		insertKey(t, tree, k)
	}
	assert.Equal(t, seq(1, 50), collectKeys(t, tree))
	checkTree(t, tree)
}

func TestMultiLevelGrowth(t *testing.T) {
	tree := openTestTree(t)

	// Enough ascending inserts to overflow a 510-key internal root and
	// force a second level of internal nodes.
	const n = 3100
	for k := uint32(1); k <= n; k++ {
		insertKey(t, tree, k)
	}

	root, err := tree.Root()
	require.NoError(t, err)
	require.Equal(t, Internal, root.Type())
	child, err := tree.store.GetPage(root.children[0])
	require.NoError(t, err)
	assert.Equal(t, Internal, child.Type(), "tree should be three levels deep")

	assert.Equal(t, seq(1, n), collectKeys(t, tree))
	for _, k := range []uint32{1, 777, 1555, 2049, n} {
		cur, found, err := tree.Find(k)
		require.NoError(t, err)
		require.True(t, found, "find(%d)", k)
		val, err := tree.Get(cur.PageNum, cur.CellNum)
		require.NoError(t, err)
		assert.Equal(t, testValue(k), val)
	}
	for _, k := range []uint32{0, n + 1, n + 1000} {
		_, found, err := tree.Find(k)
		require.NoError(t, err)
		assert.False(t, found, "find(%d)", k)
	}
	checkTree(t, tree)
}

func TestGetPanicsOnInvalidCursor(t *testing.T) {
	tree := openTestTree(t)
	insertKey(t, tree, 1)

	require.Panics(t, func() { tree.Get(0, 99) })
}

func TestInsertPanicsOnInvalidCursor(t *testing.T) {
	tree := openTestTree(t)
	for _, k := range []uint32{1, 2, 3} {
		insertKey(t, tree, k)
	}

	require.Panics(t, func() {
		tree.Insert(Cursor{PageNum: 0, CellNum: 50}, 9, testValue(9))
	})
}

func TestInsertPanicsOnInternalPage(t *testing.T) {
	tree := openTestTree(t)
	for k := uint32(1); k <= 13; k++ {
		insertKey(t, tree, k)
	}

	require.Panics(t, func() {
		tree.Insert(Cursor{PageNum: tree.rootPage}, 99, testValue(99))
	})
}

func TestInsertRejectsWrongValueSize(t *testing.T) {
	tree := openTestTree(t)

	cur, _, err := tree.Find(1)
	require.NoError(t, err)
	placed, err := tree.Insert(cur, 1, []byte("short"))
	assert.False(t, placed)
	assert.ErrorContains(t, err, "value must be")
}

func TestOpenRejectsCorruptPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	var junk [pager.PageSize]byte
	junk[0] = 7 // no such node type
	require.NoError(t, os.WriteFile(path, junk[:], 0644))

	store, err := OpenFileStore(path, 4)
	require.NoError(t, err)
	defer store.Close()

	_, err = Open(store)
	assert.ErrorContains(t, err, "locate root")
}

func TestOpenRejectsRootlessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rootless.db")
	orphan := newLeafWithCells(makeCells(1, 2, 3))
	pg := encodePage(orphan)
	require.NoError(t, os.WriteFile(path, pg[:], 0644))

	store, err := OpenFileStore(path, 4)
	require.NoError(t, err)
	defer store.Close()

	_, err = Open(store)
	assert.ErrorContains(t, err, "no root")
}
