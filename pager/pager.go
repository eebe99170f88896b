// Package pager manages a single file of fixed-size pages with an LRU cache
// of recently used pages. The file is a dense sequence of 4 KB pages with no
// header: page 0 is ordinary data, and the page count is derived from the
// file size on open.
package pager

import (
	"container/list"
	"fmt"
	"os"
)

const (
	PageSize = 4096 // matches the OS page size
)

// Page is a raw 4 KB block read from or written to disk.
type Page [PageSize]byte

// Pager reads and writes pages of a single backing file.
type Pager struct {
	file      *os.File
	cache     *lruCache
	pageCount uint32 // pages in the dense range [0, pageCount)
}

// Open opens (or creates) a pager backed by the given file.
// cachePages is the number of pages to hold in the LRU cache.
func Open(path string, cachePages int) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pager: stat %s: %w", path, err)
	}
	if info.Size()%PageSize != 0 {
		f.Close()
		return nil, fmt.Errorf("pager: %s is not page-aligned (%d bytes)", path, info.Size())
	}

	return &Pager{
		file:      f,
		cache:     newLRUCache(cachePages),
		pageCount: uint32(info.Size() / PageSize),
	}, nil
}

// Read returns the page with the given ID, from cache or disk.
// Reading outside the dense range [0, PageCount()) is an error.
func (p *Pager) Read(id uint32) (*Page, error) {
	if id >= p.pageCount {
		return nil, fmt.Errorf("pager: read page %d: beyond page count %d", id, p.pageCount)
	}
	if pg := p.cache.get(id); pg != nil {
		return pg, nil
	}
	pg, err := p.readFromDisk(id)
	if err != nil {
		return nil, err
	}
	p.cache.put(id, pg)
	return pg, nil
}

// Write writes a page to disk and updates the cache. Writing at
// id == PageCount() extends the file by one page; writing further
// ahead would leave a hole and is an error.
func (p *Pager) Write(id uint32, pg *Page) error {
	if id > p.pageCount {
		return fmt.Errorf("pager: write page %d: would leave hole after page %d", id, p.pageCount)
	}
	if err := p.writeToDisk(id, pg); err != nil {
		return err
	}
	p.cache.put(id, pg)
	if id == p.pageCount {
		p.pageCount++
	}
	return nil
}

// PageCount returns the number of pages in the file.
func (p *Pager) PageCount() uint32 {
	return p.pageCount
}

// Close flushes the file to stable storage and closes it.
func (p *Pager) Close() error {
	if err := p.file.Sync(); err != nil {
		p.file.Close()
		return fmt.Errorf("pager: sync: %w", err)
	}
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("pager: close: %w", err)
	}
	return nil
}

func (p *Pager) offset(id uint32) int64 {
	return int64(id) * PageSize
}

func (p *Pager) readFromDisk(id uint32) (*Page, error) {
	pg := new(Page)
	if _, err := p.file.ReadAt(pg[:], p.offset(id)); err != nil {
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	return pg, nil
}

func (p *Pager) writeToDisk(id uint32, pg *Page) error {
	if _, err := p.file.WriteAt(pg[:], p.offset(id)); err != nil {
		return fmt.Errorf("pager: write page %d: %w", id, err)
	}
	return nil
}

// ─── LRU Cache ────────────────────────────────────────────────────────────────

// lruCache keeps the most recently used raw pages. Only raw bytes are
// cached, never decoded nodes, so cached pages are safe to hand out again.
type lruCache struct {
	cap   int
	order *list.List // front = most recent; values are *lruEntry
	items map[uint32]*list.Element
}

type lruEntry struct {
	id   uint32
	page *Page
}

func newLRUCache(cap int) *lruCache {
	if cap < 1 {
		cap = 1
	}
	return &lruCache{
		cap:   cap,
		order: list.New(),
		items: make(map[uint32]*list.Element, cap),
	}
}

func (c *lruCache) get(id uint32) *Page {
	el, ok := c.items[id]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).page
}

func (c *lruCache) put(id uint32, pg *Page) {
	if el, ok := c.items[id]; ok {
		el.Value.(*lruEntry).page = pg
		c.order.MoveToFront(el)
		return
	}
	c.items[id] = c.order.PushFront(&lruEntry{id: id, page: pg})
	if c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry).id)
	}
}
