// Package repl implements the interactive shell: insert and select
// statements plus dot-prefixed meta commands, one per line.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tablet-db/tablet/btree"
	"github.com/tablet-db/tablet/pager"
	"github.com/tablet-db/tablet/row"
	"github.com/tablet-db/tablet/table"
)

const prompt = "tablet> "

// REPL reads statements from in and writes results to out.
type REPL struct {
	tbl *table.Table
	in  *bufio.Scanner
	out io.Writer
}

func New(tbl *table.Table, in io.Reader, out io.Writer) *REPL {
	return &REPL{tbl: tbl, in: bufio.NewScanner(in), out: out}
}

// Run processes lines until .exit or end of input.
func (r *REPL) Run() error {
	for {
		fmt.Fprint(r.out, prompt)
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		switch {
		case line == "":
		case line == ".exit":
			return nil
		case strings.HasPrefix(line, "."):
			r.runMeta(line)
		default:
			r.runStatement(line)
		}
	}
}

func (r *REPL) runMeta(line string) {
	switch line {
	case ".btree":
		fmt.Fprintln(r.out, "Tree:")
		if err := r.tbl.Dump(r.out); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
	case ".constants":
		fmt.Fprintln(r.out, "Constants:")
		fmt.Fprintf(r.out, "  page size:          %d\n", pager.PageSize)
		fmt.Fprintf(r.out, "  row size:           %d\n", row.Size)
		fmt.Fprintf(r.out, "  node header size:   %d\n", btree.HeaderSize)
		fmt.Fprintf(r.out, "  leaf cell size:     %d\n", btree.LeafCellSize)
		fmt.Fprintf(r.out, "  leaf max cells:     %d\n", btree.MaxLeafCells)
		fmt.Fprintf(r.out, "  internal max cells: %d\n", btree.MaxInternalCells)
	default:
		fmt.Fprintf(r.out, "Unrecognized command: %s\n", line)
	}
}

func (r *REPL) runStatement(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "insert":
		r.runInsert(fields)
	case "select":
		r.runSelect()
	default:
		fmt.Fprintf(r.out, "Unrecognized statement: %s\n", fields[0])
	}
}

func (r *REPL) runInsert(fields []string) {
	if len(fields) != 4 {
		fmt.Fprintln(r.out, "Syntax: insert <id> <username> <email>")
		return
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		fmt.Fprintf(r.out, "Error: id must be a positive number, got %q\n", fields[1])
		return
	}
	err = r.tbl.Insert(row.Row{ID: uint32(id), Username: fields[2], Email: fields[3]})
	switch {
	case errors.Is(err, btree.ErrDuplicateKey):
		fmt.Fprintln(r.out, "Error: duplicate key.")
	case err != nil:
		fmt.Fprintf(r.out, "Error: %v\n", err)
	default:
		fmt.Fprintln(r.out, "Executed.")
	}
}

func (r *REPL) runSelect() {
	err := r.tbl.Scan(func(rw row.Row) error {
		_, err := fmt.Fprintf(r.out, "(%d, %s, %s)\n", rw.ID, rw.Username, rw.Email)
		return err
	})
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, "Executed.")
}
