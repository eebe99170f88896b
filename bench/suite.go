package bench

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// Result is one measured phase of one engine.
type Result struct {
	Engine      string
	Phase       string
	Ops         int
	NsPerOp     int64
	AllocMB     uint64
	HeapObjects uint64
}

// Options configures a suite run.
type Options struct {
	Rows    int    // rows loaded before the workloads run
	Ops     int    // operations per workload
	Seed    int64  // workload key sequence seed
	DataDir string // engine files live here
	OutDir  string // CSV and chart land here; empty skips both
}

// Run loads each engine, measures the load and the three workload mixes,
// and (when OutDir is set) writes results.csv and latency.png.
func Run(opts Options) ([]Result, error) {
	engines := []struct {
		name string
		open func(dir string) (Engine, error)
	}{
		{"tablet", func(dir string) (Engine, error) { return NewTablet(dir) }},
		{"pebble", func(dir string) (Engine, error) { return NewPebble(dir) }},
	}

	var results []Result
	for _, eng := range engines {
		dir := filepath.Join(opts.DataDir, eng.name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("bench: create %s: %w", dir, err)
		}
		e, err := eng.open(dir)
		if err != nil {
			return nil, err
		}
		res, err := runEngine(e, opts)
		cerr := e.Close()
		if err != nil {
			return nil, err
		}
		if cerr != nil {
			return nil, fmt.Errorf("bench: close %s: %w", e.Name(), cerr)
		}
		results = append(results, res...)
	}

	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
			return nil, fmt.Errorf("bench: create %s: %w", opts.OutDir, err)
		}
		if err := writeCSV(results, filepath.Join(opts.OutDir, "results.csv")); err != nil {
			return nil, err
		}
		if err := renderChart(results, filepath.Join(opts.OutDir, "latency.png")); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func runEngine(e Engine, opts Options) ([]Result, error) {
	rng := rand.New(rand.NewSource(opts.Seed))
	var results []Result

	start := time.Now()
	for id := uint32(1); id <= uint32(opts.Rows); id++ {
		if err := e.Insert(rowFor(id)); err != nil {
			return nil, fmt.Errorf("bench: load %s: %w", e.Name(), err)
		}
	}
	m := readMem()
	results = append(results, Result{
		Engine:      e.Name(),
		Phase:       "load",
		Ops:         opts.Rows,
		NsPerOp:     perOp(time.Since(start), opts.Rows),
		AllocMB:     m.allocMB,
		HeapObjects: m.heapObjects,
	})

	nextID := uint32(opts.Rows)
	for _, w := range workloads {
		start := time.Now()
		if err := runWorkload(e, w, opts.Ops, opts.Rows, &nextID, rng); err != nil {
			return nil, err
		}
		m := readMem()
		results = append(results, Result{
			Engine:      e.Name(),
			Phase:       string(w),
			Ops:         opts.Ops,
			NsPerOp:     perOp(time.Since(start), opts.Ops),
			AllocMB:     m.allocMB,
			HeapObjects: m.heapObjects,
		})
	}
	return results, nil
}

func perOp(d time.Duration, ops int) int64 {
	if ops == 0 {
		return 0
	}
	return d.Nanoseconds() / int64(ops)
}

type memSample struct {
	allocMB     uint64
	heapObjects uint64
}

// readMem forces a GC first so the numbers reflect live data, not garbage.
func readMem() memSample {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return memSample{allocMB: m.Alloc >> 20, heapObjects: m.HeapObjects}
}

func writeCSV(results []Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bench: create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"engine", "phase", "ops", "ns_per_op", "alloc_mb", "heap_objects"})
	for _, r := range results {
		w.Write([]string{
			r.Engine,
			r.Phase,
			strconv.Itoa(r.Ops),
			strconv.FormatInt(r.NsPerOp, 10),
			strconv.FormatUint(r.AllocMB, 10),
			strconv.FormatUint(r.HeapObjects, 10),
		})
	}
	w.Flush()
	return w.Error()
}
