// entry.go: CacheEntry and its object pool
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"sync"
	"time"
)

// CacheEntry is one resident (key, value) pair within a CacheLevel. It is
// created by put or promotion, mutated only under the owning level's lock,
// and destroyed by eviction or explicit remove.
type CacheEntry struct {
	Key             Key
	Value           []byte
	Level           int
	LastAccessTime  time.Time
	AccessCount     int64
	AccessFrequency float64 // EMA-smoothed, per spec.md §4.2
	AccessScore     float64 // composite score slot; AURA keeps its scores in its own policy state and does not read it
	Dirty           bool
	Pinned          int32 // pin count slot; CacheLevel tracks pins in its own pinned map and does not update it
}

// Size is the byte accounting unit used by CacheLevel's capacity_bytes quota.
func (e *CacheEntry) Size() int {
	return e.Key.Len() + len(e.Value)
}

func (e *CacheEntry) reset() {
	e.Key = Key{}
	e.Value = nil
	e.Level = 0
	e.LastAccessTime = time.Time{}
	e.AccessCount = 0
	e.AccessFrequency = 0
	e.AccessScore = 0
	e.Dirty = false
	e.Pinned = 0
}

// entryPool reuses CacheEntry allocations across puts/evictions, mirroring
// the teacher library's EntryPool.
type entryPool struct {
	pool sync.Pool
}

func newEntryPool() *entryPool {
	return &entryPool{
		pool: sync.Pool{New: func() interface{} { return &CacheEntry{} }},
	}
}

func (p *entryPool) get() *CacheEntry {
	return p.pool.Get().(*CacheEntry)
}

func (p *entryPool) put(e *CacheEntry) {
	if e == nil {
		return
	}
	e.reset()
	p.pool.Put(e)
}
