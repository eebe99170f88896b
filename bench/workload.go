package bench

import (
	"fmt"
	"math/rand"

	"github.com/tablet-db/tablet/row"
)

// Workload names a read/write mix.
type Workload string

const (
	// OLTP is read-heavy: 90% point lookups, 10% inserts.
	OLTP Workload = "oltp"
	// OLAP is write-heavy: 10% point lookups, 90% inserts.
	OLAP Workload = "olap"
	// Reporting runs 100-key range scans.
	Reporting Workload = "reporting"
)

var workloads = []Workload{OLTP, OLAP, Reporting}

// runWorkload drives ops operations against e. Lookups and scan starts
// pick keys uniformly from the loaded range [1, keyspace]; inserts take
// fresh IDs from *nextID, past everything loaded, so they never collide.
func runWorkload(e Engine, w Workload, ops, keyspace int, nextID *uint32, rng *rand.Rand) error {
	for i := 0; i < ops; i++ {
		choice := rng.Intn(100)
		key := uint32(rng.Intn(keyspace)) + 1

		switch w {
		case OLTP, OLAP:
			readPct := 90
			if w == OLAP {
				readPct = 10
			}
			if choice < readPct {
				if _, _, err := e.Get(key); err != nil {
					return fmt.Errorf("bench: %s get %d: %w", w, key, err)
				}
			} else {
				*nextID++
				if err := e.Insert(rowFor(*nextID)); err != nil {
					return fmt.Errorf("bench: %s insert %d: %w", w, *nextID, err)
				}
			}
		case Reporting:
			if _, err := e.Scan(key, key+100); err != nil {
				return fmt.Errorf("bench: scan from %d: %w", key, err)
			}
		default:
			return fmt.Errorf("bench: unknown workload %q", w)
		}
	}
	return nil
}

func rowFor(id uint32) row.Row {
	return row.Row{
		ID:       id,
		Username: fmt.Sprintf("user%d", id),
		Email:    fmt.Sprintf("user%d@example.com", id),
	}
}
