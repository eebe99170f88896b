package btree

import (
	"fmt"

	"github.com/tablet-db/tablet/pager"
)

// DefaultCachePages is the default LRU page cache size (256 pages = 1 MB).
const DefaultCachePages = 256

// PageStore is the tree's view of durable page storage. Page indices are
// a dense range [0, PageCount()); a freshly split node takes the next
// unused index, which is PageCount() at split time.
type PageStore interface {
	// GetPage decodes the node stored at pageNum.
	GetPage(pageNum uint32) (*Node, error)
	// CommitPage encodes the node and writes it at its own page number.
	CommitPage(n *Node) error
	// PageCount returns the number of committed pages.
	PageCount() uint32
	// Close flushes committed pages to stable storage.
	Close() error
}

// FileStore adapts a pager file into the PageStore contract.
type FileStore struct {
	pg *pager.Pager
}

// OpenFileStore opens (or creates) a page store backed by the file at path.
func OpenFileStore(path string, cachePages int) (*FileStore, error) {
	pg, err := pager.Open(path, cachePages)
	if err != nil {
		return nil, err
	}
	return &FileStore{pg: pg}, nil
}

func (s *FileStore) GetPage(pageNum uint32) (*Node, error) {
	raw, err := s.pg.Read(pageNum)
	if err != nil {
		return nil, err
	}
	return decodePage(pageNum, raw)
}

func (s *FileStore) CommitPage(n *Node) error {
	if err := s.pg.Write(n.pageNum, encodePage(n)); err != nil {
		return fmt.Errorf("btree: commit page %d: %w", n.pageNum, err)
	}
	return nil
}

func (s *FileStore) PageCount() uint32 {
	return s.pg.PageCount()
}

func (s *FileStore) Close() error {
	return s.pg.Close()
}
