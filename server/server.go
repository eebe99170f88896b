// Package server exposes tables over HTTP: create database files, insert
// rows, point lookups, and range scans.
package server

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/tablet-db/tablet/btree"
	"github.com/tablet-db/tablet/table"
)

// tableHandle serializes access to one open table. The tree mutates pages
// in place, so every operation on a table runs under its handle's mutex.
type tableHandle struct {
	mu  sync.Mutex
	tbl *table.Table
}

// Server owns the fiber app and a registry of lazily opened tables, one
// file per table under dataDir.
type Server struct {
	app     *fiber.App
	dataDir string

	mu     sync.Mutex
	tables map[string]*tableHandle
}

// Table names become file names, so only a conservative charset passes.
var tableName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func New(dataDir string) *Server {
	s := &Server{
		app:     fiber.New(fiber.Config{DisableStartupMessage: true}),
		dataDir: dataDir,
		tables:  make(map[string]*tableHandle),
	}
	s.routes()
	return s
}

// Listen serves on addr until the listener fails or Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops the listener and closes every open table.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.tables {
		h.mu.Lock()
		if cerr := h.tbl.Close(); cerr != nil && err == nil {
			err = cerr
		}
		h.mu.Unlock()
	}
	s.tables = make(map[string]*tableHandle)
	return err
}

// handle returns the open table named name, opening its file on first use.
func (s *Server) handle(name string) (*tableHandle, error) {
	if !tableName.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.tables[name]; ok {
		return h, nil
	}
	tbl, err := table.Open(filepath.Join(s.dataDir, name+".db"), btree.DefaultCachePages)
	if err != nil {
		return nil, err
	}
	h := &tableHandle{tbl: tbl}
	s.tables[name] = h
	return h, nil
}
