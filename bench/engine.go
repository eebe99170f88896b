// Package bench compares the tablet table against Pebble (CockroachDB's
// LSM storage engine) under mixed read/write workloads, with CSV output
// and a latency chart.
package bench

import (
	"path/filepath"

	"github.com/tablet-db/tablet/btree"
	"github.com/tablet-db/tablet/row"
	"github.com/tablet-db/tablet/table"
)

// Engine is the operation surface the workloads drive. Both engines store
// the same encoded rows, so measured work is comparable.
type Engine interface {
	Name() string
	Insert(r row.Row) error
	Get(id uint32) (row.Row, bool, error)
	// Scan visits every row with ID in [start, end] and returns how many.
	Scan(start, end uint32) (int, error)
	Close() error
}

// Tablet drives the page-based table.
type Tablet struct {
	tbl *table.Table
}

func NewTablet(dir string) (*Tablet, error) {
	tbl, err := table.Open(filepath.Join(dir, "tablet.db"), btree.DefaultCachePages)
	if err != nil {
		return nil, err
	}
	return &Tablet{tbl: tbl}, nil
}

func (e *Tablet) Name() string { return "tablet" }

func (e *Tablet) Insert(r row.Row) error {
	return e.tbl.Insert(r)
}

func (e *Tablet) Get(id uint32) (row.Row, bool, error) {
	return e.tbl.Get(id)
}

func (e *Tablet) Scan(start, end uint32) (int, error) {
	n := 0
	err := e.tbl.Range(start, end, func(row.Row) error {
		n++
		return nil
	})
	return n, err
}

func (e *Tablet) Close() error {
	return e.tbl.Close()
}
