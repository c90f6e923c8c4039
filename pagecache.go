// pagecache.go: bounded, read-through page cache backed by otter
//
// The page cache is ordinary infrastructure, not one of the pluggable
// EvictionPolicy variants under study (spec.md §2 step 3) — so unlike
// CacheLevel it is backed directly by a high-performance off-the-shelf
// cache rather than a hand-rolled policy.
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/maypok86/otter"
)

// pageSize is the fixed on-disk page size (§6.6's page_size_bytes).
const pageSize = 4096

// Page is one fixed-size page of database.rdb.
type Page struct {
	ID           uint64
	Checksum     uint32
	Version      uint32
	DataLen      uint32
	LastModified time.Time
	Dirty        bool
	Pinned       bool
	RefCount     int32
	Data         [pageSize]byte
}

// encodePage renders a Page to its on-disk image: a small fixed header
// (id, checksum, version, data_len, last_modified) followed by the raw
// page-sized data region the checksum covers.
func encodePage(p *Page) []byte {
	buf := make([]byte, 32+pageSize)
	binary.LittleEndian.PutUint64(buf[0:8], p.ID)
	binary.LittleEndian.PutUint32(buf[8:12], 0) // checksum placeholder, filled below
	binary.LittleEndian.PutUint32(buf[12:16], p.Version)
	binary.LittleEndian.PutUint32(buf[16:20], p.DataLen)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(p.LastModified.Unix()))
	copy(buf[32:], p.Data[:])
	sum := fnv1a(buf[32:])
	binary.LittleEndian.PutUint32(buf[8:12], sum)
	return buf
}

func decodePage(buf []byte) (*Page, error) {
	if len(buf) != 32+pageSize {
		return nil, newErr("decodePage", KindCorruption, errf("page image is %d bytes, want %d", len(buf), 32+pageSize))
	}
	wantSum := binary.LittleEndian.Uint32(buf[8:12])
	gotSum := fnv1a(buf[32:])
	if gotSum != wantSum {
		return nil, newErr("decodePage", KindCorruption, errf("page checksum mismatch: got %x want %x", gotSum, wantSum))
	}
	p := &Page{
		ID:           binary.LittleEndian.Uint64(buf[0:8]),
		Checksum:     wantSum,
		Version:      binary.LittleEndian.Uint32(buf[12:16]),
		DataLen:      binary.LittleEndian.Uint32(buf[16:20]),
		LastModified: time.Unix(int64(binary.LittleEndian.Uint64(buf[20:28])), 0).UTC(),
	}
	copy(p.Data[:], buf[32:])
	return p, nil
}

// pageSource reads a page from the backing file on a cache miss.
type pageSource interface {
	readPage(id uint64) (*Page, error)
}

// PageCache is a bounded, read-through cache of database.rdb pages, backed
// by otter's striped-lock LRU rather than a hand-rolled policy.
type PageCache struct {
	mu     sync.Mutex
	cache  otter.Cache[uint64, *Page]
	source pageSource
}

// NewPageCache builds a PageCache holding up to capacity pages, reading
// through to source on a miss.
func NewPageCache(capacity int, source pageSource) (*PageCache, error) {
	b, err := otter.MustBuilder[uint64, *Page](capacity)
	if err != nil {
		return nil, newErr("NewPageCache", KindInvalidConfig, err)
	}
	c, err := b.Build()
	if err != nil {
		return nil, newErr("NewPageCache", KindInvalidConfig, err)
	}
	return &PageCache{cache: c, source: source}, nil
}

// Get returns the page for id, reading through to source on a miss and
// populating the cache with the result.
func (pc *PageCache) Get(id uint64) (*Page, error) {
	if p, ok := pc.cache.Get(id); ok {
		return p, nil
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if p, ok := pc.cache.Get(id); ok {
		return p, nil
	}
	p, err := pc.source.readPage(id)
	if err != nil {
		return nil, err
	}
	pc.cache.Set(id, p)
	return p, nil
}

// Put inserts or replaces the cached image for p.ID, marking it dirty so a
// later save rewrites it.
func (pc *PageCache) Put(p *Page) {
	p.Dirty = true
	pc.cache.Set(p.ID, p)
}

// Invalidate drops a page from the cache, e.g. after it is freed.
func (pc *PageCache) Invalidate(id uint64) {
	pc.cache.Delete(id)
}

// Close releases otter's background resources.
func (pc *PageCache) Close() {
	pc.cache.Close()
}
