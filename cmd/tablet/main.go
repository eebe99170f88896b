// Command tablet is the database CLI: an interactive shell over one
// database file, an HTTP server over a directory of tables, and a
// benchmark suite comparing the table against Pebble.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tablet-db/tablet/bench"
	"github.com/tablet-db/tablet/btree"
	"github.com/tablet-db/tablet/repl"
	"github.com/tablet-db/tablet/server"
	"github.com/tablet-db/tablet/table"
)

var rootCmd = &cobra.Command{
	Use:   "tablet [file]",
	Short: "Single-file database backed by a paged B-tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runShell(cmd, args[0], btree.DefaultCachePages)
	},
}

var replCache int

var replCmd = &cobra.Command{
	Use:   "repl <file>",
	Short: "Open an interactive shell on a database file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd, args[0], replCache)
	},
}

func runShell(cmd *cobra.Command, path string, cachePages int) error {
	tbl, err := table.Open(path, cachePages)
	if err != nil {
		return err
	}
	if err := repl.New(tbl, cmd.InOrStdin(), cmd.OutOrStdout()).Run(); err != nil {
		tbl.Close()
		return err
	}
	return tbl.Close()
}

var (
	serveData   string
	serveListen string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tables over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(serveData, 0755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		s := server.New(serveData)
		log.Printf("tablet listening on %s (data in %s)", serveListen, serveData)
		return s.Listen(serveListen)
	},
}

var (
	benchRows int
	benchOps  int
	benchSeed int64
	benchData string
	benchOut  string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the table against Pebble",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := benchData
		if dataDir == "" {
			dir, err := os.MkdirTemp("", "tablet-bench-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			dataDir = dir
		}

		results, err := bench.Run(bench.Options{
			Rows:    benchRows,
			Ops:     benchOps,
			Seed:    benchSeed,
			DataDir: dataDir,
			OutDir:  benchOut,
		})
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%-8s %-10s %8d ops %10d ns/op %6d MB %10d objects\n",
				r.Engine, r.Phase, r.Ops, r.NsPerOp, r.AllocMB, r.HeapObjects)
		}
		if benchOut != "" {
			fmt.Printf("CSV and chart written to %s\n", benchOut)
		}
		return nil
	},
}

func init() {
	replCmd.Flags().IntVar(&replCache, "cache", btree.DefaultCachePages, "pages held in the LRU cache")

	serveCmd.Flags().StringVar(&serveData, "data", "data", "directory holding table files")
	serveCmd.Flags().StringVar(&serveListen, "listen", ":3000", "listen address")

	benchCmd.Flags().IntVar(&benchRows, "rows", 50000, "rows loaded before the workloads")
	benchCmd.Flags().IntVar(&benchOps, "ops", 20000, "operations per workload")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 1, "workload key sequence seed")
	benchCmd.Flags().StringVar(&benchData, "data", "", "engine data directory (default: a temp dir, removed afterwards)")
	benchCmd.Flags().StringVar(&benchOut, "out", "results", "directory for results.csv and latency.png")

	rootCmd.AddCommand(replCmd, serveCmd, benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
