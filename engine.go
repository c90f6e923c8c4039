// engine.go: CacheEngine — an ordered tier of CacheLevels
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"sync"
	"time"
)

// EngineStats is a point-in-time snapshot of the engine-wide counters.
type EngineStats struct {
	Hits        int64
	Misses      int64
	Promotions  int64
	SpillDrops  int64
	LastTune    time.Time
	TuneRuns    int64
}

// EngineConfig configures the CacheEngine's tiering and auto-tune behavior.
type EngineConfig struct {
	Name            string
	Levels          []LevelConfig
	AutoTuneEnabled bool
	TargetHitRatio  float64
	TuneInterval    time.Duration
	TuneEpsilon     float64 // dead-band around TargetHitRatio; default 0.02
	TuneMaxBytes    int64   // per-level ceiling auto-tune will not grow past
	TuneMinBytes    int64   // per-level floor auto-tune will not shrink below
}

func (c EngineConfig) validate() error {
	if len(c.Levels) < 1 || len(c.Levels) > 8 {
		return newErr("EngineConfig.validate", KindInvalidConfig, errf("cache_levels must be in [1,8], got %d", len(c.Levels)))
	}
	if c.TargetHitRatio < 0 || c.TargetHitRatio > 1 {
		return newErr("EngineConfig.validate", KindInvalidConfig, errf("target_hit_ratio must be in [0,1]"))
	}
	for i, lc := range c.Levels {
		if err := lc.validate(); err != nil {
			return newErr("EngineConfig.validate", KindInvalidConfig, errf("level %d: %w", i, err))
		}
	}
	return nil
}

// CacheEngine composes an ordered, index-stable sequence of CacheLevels
// (L0 fastest ... Lk slowest) behind a single global lock, with an
// independent tune mutex for the auto-tuning pass.
type CacheEngine struct {
	mu     sync.Mutex
	tuneMu sync.Mutex

	config EngineConfig
	levels []*CacheLevel
	stats  EngineStats
}

// NewCacheEngine builds every configured level and returns the composed engine.
func NewCacheEngine(cfg EngineConfig) (*CacheEngine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.TuneEpsilon == 0 {
		cfg.TuneEpsilon = 0.02
	}
	levels := make([]*CacheLevel, len(cfg.Levels))
	for i, lc := range cfg.Levels {
		lvl, err := NewCacheLevel(lc)
		if err != nil {
			return nil, err
		}
		levels[i] = lvl
	}
	return &CacheEngine{config: cfg, levels: levels}, nil
}

// Get scans levels in index order. A hit below L0 is promoted to L0 (the
// entry adopts a fresh LastAccessTime, per SPEC_FULL.md/DESIGN.md's
// resolution of spec.md's open question on that point), with any entries
// the promotion displaces cascading into slower levels in turn.
func (e *CacheEngine) Get(key Key) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, lvl := range e.levels {
		v, ok := lvl.Get(key)
		if !ok {
			continue
		}
		e.stats.Hits++
		if i > 0 {
			lvl.Remove(key)
			evicted, err := e.levels[0].PutSpill(key, v, false)
			if err == nil {
				e.stats.Promotions++
				e.cascade(evicted, 1)
			}
		}
		return v, true
	}
	e.stats.Misses++
	return nil, false
}

// Put inserts key at L0 (or updates it in place wherever it currently
// resides, preserving the single-level-residency invariant). Capacity
// pressure at L0 spills the displaced entry into L1, and so on, dropping
// only past the last level.
func (e *CacheEngine) Put(key Key, value []byte, pin bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, lvl := range e.levels {
		if lvl.Has(key) {
			return lvl.Put(key, value, pin)
		}
	}

	evicted, err := e.levels[0].PutSpill(key, value, pin)
	if err != nil {
		return err
	}
	e.cascade(evicted, 1)
	return nil
}

// cascade pushes spilled entries into levelIdx, recursing further down on
// further displacement, and drops entries that overflow past the last level.
func (e *CacheEngine) cascade(pairs []evictedPair, levelIdx int) {
	if len(pairs) == 0 {
		return
	}
	if levelIdx >= len(e.levels) {
		e.stats.SpillDrops += int64(len(pairs))
		return
	}
	for _, p := range pairs {
		more, err := e.levels[levelIdx].PutSpill(p.Key, p.Value, false)
		if err != nil {
			e.stats.SpillDrops++
			continue
		}
		e.cascade(more, levelIdx+1)
	}
}

// Remove deletes key from whichever level holds it.
func (e *CacheEngine) Remove(key Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, lvl := range e.levels {
		if lvl.Remove(key) {
			return true
		}
	}
	return false
}

// Clear empties every level.
func (e *CacheEngine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, lvl := range e.levels {
		lvl.Clear()
	}
}

// Stats returns a snapshot of the engine-wide counters.
func (e *CacheEngine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// LevelStats returns a snapshot of one level's counters by index.
func (e *CacheEngine) LevelStats(i int) (LevelStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.levels) {
		return LevelStats{}, false
	}
	return e.levels[i].Stats(), true
}

// PinKey pins key wherever it currently resides (a no-op if absent).
func (e *CacheEngine) PinKey(key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, lvl := range e.levels {
		if lvl.Has(key) {
			lvl.Pin(key)
			return
		}
	}
}

// UnpinKey unpins key wherever it currently resides (a no-op if absent).
func (e *CacheEngine) UnpinKey(key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, lvl := range e.levels {
		if lvl.Has(key) {
			lvl.Unpin(key)
			return
		}
	}
}

// Tune runs one auto-tuning pass: levels under target hit ratio grow their
// byte capacity by 10%, levels over target shrink by 5%, clamped to
// [TuneMinBytes, TuneMaxBytes] when those are configured. Tune takes its own
// mutex, independent of the engine's get/put/remove/clear lock, and touches
// only each level's capacity field under that level's own lock.
func (e *CacheEngine) Tune() {
	e.tuneMu.Lock()
	defer e.tuneMu.Unlock()

	for _, lvl := range e.levels {
		st := lvl.Stats()
		total := st.Hits + st.Misses
		if total == 0 {
			continue
		}
		ratio := st.HitRatio
		cur := lvl.config.CapacityBytes
		var next int64
		switch {
		case ratio < e.config.TargetHitRatio-e.config.TuneEpsilon:
			next = int64(float64(cur) * 1.1)
		case ratio > e.config.TargetHitRatio+e.config.TuneEpsilon:
			next = int64(float64(cur) * 0.95)
		default:
			continue
		}
		if e.config.TuneMaxBytes > 0 && next > e.config.TuneMaxBytes {
			next = e.config.TuneMaxBytes
		}
		if e.config.TuneMinBytes > 0 && next < e.config.TuneMinBytes {
			next = e.config.TuneMinBytes
		}
		lvl.SetCapacityBytes(next)
	}
	e.stats.TuneRuns++
	e.stats.LastTune = time.Now()
}
