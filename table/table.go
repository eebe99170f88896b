// Package table binds the row codec to the tree: a single-file table of
// user rows keyed by ID.
package table

import (
	"fmt"
	"io"

	"github.com/tablet-db/tablet/btree"
	"github.com/tablet-db/tablet/row"
)

// Table is one durable table backed by one file.
type Table struct {
	tree *btree.BTree
}

// Open opens (or creates) the table stored in the file at path.
// cachePages sizes the underlying page cache.
func Open(path string, cachePages int) (*Table, error) {
	store, err := btree.OpenFileStore(path, cachePages)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	tree, err := btree.Open(store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	return &Table{tree: tree}, nil
}

// Close flushes the table to stable storage.
func (t *Table) Close() error {
	return t.tree.Close()
}

// Insert validates r and stores it under its ID. Inserting an ID that is
// already present fails with btree.ErrDuplicateKey.
func (t *Table) Insert(r row.Row) error {
	if err := r.Validate(); err != nil {
		return err
	}
	cur, found, err := t.tree.Find(r.ID)
	if err != nil {
		return fmt.Errorf("table: insert %d: %w", r.ID, err)
	}
	if found {
		return btree.ErrDuplicateKey
	}
	placed, err := t.tree.Insert(cur, r.ID, r.Marshal())
	if err != nil {
		return fmt.Errorf("table: insert %d: %w", r.ID, err)
	}
	if !placed {
		return fmt.Errorf("table: insert %d: not placed", r.ID)
	}
	return nil
}

// Get returns the row stored under id; ok is false when id is absent.
func (t *Table) Get(id uint32) (row.Row, bool, error) {
	cur, found, err := t.tree.Find(id)
	if err != nil {
		return row.Row{}, false, fmt.Errorf("table: get %d: %w", id, err)
	}
	if !found {
		return row.Row{}, false, nil
	}
	val, err := t.tree.Get(cur.PageNum, cur.CellNum)
	if err != nil {
		return row.Row{}, false, fmt.Errorf("table: get %d: %w", id, err)
	}
	r, err := row.Unmarshal(val)
	if err != nil {
		return row.Row{}, false, fmt.Errorf("table: get %d: %w", id, err)
	}
	return r, true, nil
}

// Scan calls fn for every row in ID order. fn returning an error stops
// the scan and the error is passed through.
func (t *Table) Scan(fn func(row.Row) error) error {
	return t.Range(0, ^uint32(0), fn)
}

// Range calls fn for every row with ID in [start, end], in ID order.
func (t *Table) Range(start, end uint32, fn func(row.Row) error) error {
	it, err := t.tree.Range(start, end)
	if err != nil {
		return fmt.Errorf("table: scan: %w", err)
	}
	for it.Next() {
		r, err := row.Unmarshal(it.Value())
		if err != nil {
			return fmt.Errorf("table: scan: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("table: scan: %w", err)
	}
	return nil
}

// Count returns the number of rows.
func (t *Table) Count() (int, error) {
	n := 0
	err := t.Scan(func(row.Row) error {
		n++
		return nil
	})
	return n, err
}

// Dump writes an outline of the underlying tree to w.
func (t *Table) Dump(w io.Writer) error {
	return t.tree.Dump(w)
}
