package bench

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/tablet-db/tablet/row"
)

// Pebble stores the same encoded rows in a Pebble LSM tree.
type Pebble struct {
	db *pebble.DB
}

func NewPebble(dir string) (*Pebble, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}
	db, err := pebble.Open(filepath.Join(dir, "pebble"), opts)
	if err != nil {
		return nil, fmt.Errorf("bench: open pebble: %w", err)
	}
	return &Pebble{db: db}, nil
}

func (e *Pebble) Name() string { return "pebble" }

func (e *Pebble) Insert(r row.Row) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return e.db.Set(encodeKey(r.ID), r.Marshal(), pebble.NoSync)
}

func (e *Pebble) Get(id uint32) (row.Row, bool, error) {
	val, closer, err := e.db.Get(encodeKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return row.Row{}, false, nil
	}
	if err != nil {
		return row.Row{}, false, fmt.Errorf("bench: pebble get: %w", err)
	}
	// val is only valid until closer.Close(), so decode first.
	r, derr := row.Unmarshal(val)
	closer.Close()
	if derr != nil {
		return row.Row{}, false, derr
	}
	return r, true, nil
}

func (e *Pebble) Scan(start, end uint32) (int, error) {
	iterOpts := &pebble.IterOptions{LowerBound: encodeKey(start)}
	// Pebble's UpperBound is exclusive; an inclusive end at the top of the
	// key space means no upper bound at all.
	if end != ^uint32(0) {
		iterOpts.UpperBound = encodeKey(end + 1)
	}
	iter, err := e.db.NewIter(iterOpts)
	if err != nil {
		return 0, fmt.Errorf("bench: pebble scan: %w", err)
	}
	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	if err := iter.Close(); err != nil {
		return n, fmt.Errorf("bench: pebble scan: %w", err)
	}
	return n, nil
}

func (e *Pebble) Close() error {
	return e.db.Close()
}

// encodeKey encodes the ID big-endian so byte order matches key order.
func encodeKey(id uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, id)
	return b
}
