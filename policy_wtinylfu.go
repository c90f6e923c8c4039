// policy_wtinylfu.go: W-TinyLFU eviction policy variant
//
// A small window LRU (~1% of capacity) feeds candidates into a segmented
// main cache (probation -> protected); a Count-Min Sketch estimates access
// frequency and gates which of {window candidate, main's current victim}
// survives when the level is over capacity. Grounded on the structure of
// the teacher library's wtinylfu.go (window + segmented-LRU + CMS shards),
// generalized from string keys/interface{} values to the tiered Key type.
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"container/list"

	"github.com/dolthub/maphash"
)

// countMinSketch is a 4-row frequency estimator over Key. Its hash seeds
// are randomized per process (via dolthub/maphash) since the estimate is
// purely an in-memory admission signal, never persisted and never required
// to be stable across restarts.
type countMinSketch struct {
	width   int
	rows    [4][]uint8
	hashers [4]maphash.Hasher[Key]
	total   uint64
	resetAt uint64
}

func newCountMinSketch(capacity int) *countMinSketch {
	width := capacity * 4
	if width < 64 {
		width = 64
	}
	resetAt := uint64(capacity) * 10
	if resetAt == 0 {
		resetAt = 640
	}
	c := &countMinSketch{width: width, resetAt: resetAt}
	for i := range c.rows {
		c.rows[i] = make([]uint8, width)
		c.hashers[i] = maphash.NewHasher[Key]()
	}
	return c
}

func (c *countMinSketch) index(row int, key Key) uint64 {
	return c.hashers[row].Hash(key) % uint64(c.width)
}

// Record increments the estimate for key, aging (halving) all counters
// once the sketch has absorbed resetAt samples since the last reset.
func (c *countMinSketch) Record(key Key) {
	for i := 0; i < 4; i++ {
		idx := c.index(i, key)
		if c.rows[i][idx] < 15 {
			c.rows[i][idx]++
		}
	}
	c.total++
	if c.total >= c.resetAt {
		c.age()
	}
}

func (c *countMinSketch) age() {
	for i := 0; i < 4; i++ {
		for j := range c.rows[i] {
			c.rows[i][j] /= 2
		}
	}
	c.total = 0
}

// Estimate returns the frequency estimate for key (the minimum across rows,
// the standard Count-Min reading).
func (c *countMinSketch) Estimate(key Key) uint8 {
	best := uint8(255)
	for i := 0; i < 4; i++ {
		v := c.rows[i][c.index(i, key)]
		if v < best {
			best = v
		}
	}
	return best
}

// wtinylfuPolicy implements the window + segmented-main-cache design.
type wtinylfuPolicy struct {
	cms *countMinSketch

	window    *list.List
	windowMap map[Key]*list.Element
	windowCap int

	probation    *list.List
	probationMap map[Key]*list.Element

	protected    *list.List
	protectedMap map[Key]*list.Element
	protectedCap int
}

func newWTinyLFUPolicy(capacity int) *wtinylfuPolicy {
	if capacity < 1 {
		capacity = 1
	}
	windowCap := capacity / 100
	if windowCap < 1 {
		windowCap = 1
	}
	mainCap := capacity - windowCap
	if mainCap < 1 {
		mainCap = 1
	}
	protectedCap := mainCap * 8 / 10
	if protectedCap < 1 {
		protectedCap = 1
	}
	return &wtinylfuPolicy{
		cms:          newCountMinSketch(capacity),
		window:       list.New(),
		windowMap:    make(map[Key]*list.Element),
		windowCap:    windowCap,
		probation:    list.New(),
		probationMap: make(map[Key]*list.Element),
		protected:    list.New(),
		protectedMap: make(map[Key]*list.Element),
		protectedCap: protectedCap,
	}
}

func (w *wtinylfuPolicy) OnAccess(key Key) {
	w.cms.Record(key)

	if e, ok := w.windowMap[key]; ok {
		w.window.MoveToFront(e)
		return
	}
	if e, ok := w.probationMap[key]; ok {
		w.probation.Remove(e)
		delete(w.probationMap, key)
		w.protectedMap[key] = w.protected.PushFront(key)
		w.demoteProtectedOverflow()
		return
	}
	if e, ok := w.protectedMap[key]; ok {
		w.protected.MoveToFront(e)
	}
}

func (w *wtinylfuPolicy) OnInsert(key Key) {
	w.cms.Record(key)
	w.windowMap[key] = w.window.PushFront(key)
}

func (w *wtinylfuPolicy) OnRemove(key Key) {
	if e, ok := w.windowMap[key]; ok {
		w.window.Remove(e)
		delete(w.windowMap, key)
		return
	}
	if e, ok := w.probationMap[key]; ok {
		w.probation.Remove(e)
		delete(w.probationMap, key)
		return
	}
	if e, ok := w.protectedMap[key]; ok {
		w.protected.Remove(e)
		delete(w.protectedMap, key)
	}
}

// demoteProtectedOverflow migrates protected's LRU tail back to probation
// when protected grows past its target share of main. Pure segment
// migration: it does not change how many keys the policy holds overall.
func (w *wtinylfuPolicy) demoteProtectedOverflow() {
	if w.protected.Len() <= w.protectedCap {
		return
	}
	e := w.protected.Back()
	key := e.Value.(Key)
	w.protected.Remove(e)
	delete(w.protectedMap, key)
	w.probationMap[key] = w.probation.PushFront(key)
}

// PickVictim runs the TinyLFU admission comparison: when the window holds
// more than its target share, its LRU entry is a promotion candidate into
// main; it is admitted (and probation's own LRU entry evicted instead) only
// if its estimated frequency strictly exceeds the main victim's. Otherwise
// the window candidate itself is evicted. While main is still empty (the
// very first admissions a level ever sees) there is nothing to compare the
// candidate against, so it is admitted unconditionally and the search
// retries — bounded by the window's length, since each retry either moves
// one key out of the window or finds a now-populated main segment to evict
// from instead.
func (w *wtinylfuPolicy) PickVictim(pinned PinnedFunc) (Key, bool) {
	if w.window.Len() > w.windowCap {
		if candidate, ok := w.firstUnpinned(w.window, pinned); ok {
			mainVictim, hasMain := w.mainVictim(pinned)
			if !hasMain {
				w.window.Remove(w.windowElem(candidate))
				delete(w.windowMap, candidate)
				w.probationMap[candidate] = w.probation.PushFront(candidate)
				return w.PickVictim(pinned)
			}
			if w.cms.Estimate(candidate) > w.cms.Estimate(mainVictim) {
				w.window.Remove(w.windowElem(candidate))
				delete(w.windowMap, candidate)
				w.probationMap[candidate] = w.probation.PushFront(candidate)
				return w.evictMain(mainVictim)
			}
			w.window.Remove(w.windowElem(candidate))
			delete(w.windowMap, candidate)
			return candidate, true
		}
	}
	if victim, ok := w.mainVictim(pinned); ok {
		return w.evictMain(victim)
	}
	if candidate, ok := w.firstUnpinned(w.window, pinned); ok {
		w.window.Remove(w.windowElem(candidate))
		delete(w.windowMap, candidate)
		return candidate, true
	}
	return Key{}, false
}

func (w *wtinylfuPolicy) mainVictim(pinned PinnedFunc) (Key, bool) {
	if k, ok := w.firstUnpinned(w.probation, pinned); ok {
		return k, true
	}
	return w.firstUnpinned(w.protected, pinned)
}

func (w *wtinylfuPolicy) evictMain(key Key) (Key, bool) {
	if e, ok := w.probationMap[key]; ok {
		w.probation.Remove(e)
		delete(w.probationMap, key)
		return key, true
	}
	if e, ok := w.protectedMap[key]; ok {
		w.protected.Remove(e)
		delete(w.protectedMap, key)
		return key, true
	}
	return Key{}, false
}

func (w *wtinylfuPolicy) windowElem(key Key) *list.Element {
	return w.windowMap[key]
}

func (w *wtinylfuPolicy) firstUnpinned(l *list.List, pinned PinnedFunc) (Key, bool) {
	for e := l.Back(); e != nil; e = e.Prev() {
		k := e.Value.(Key)
		if pinned == nil || !pinned(k) {
			return k, true
		}
	}
	return Key{}, false
}
