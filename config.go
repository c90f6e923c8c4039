// config.go: configuration loading for tierdb
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PersistenceMode selects which durability surface a Database exposes.
type PersistenceMode string

const (
	// MemoryOnly never touches disk; all state is lost on process exit.
	MemoryOnly PersistenceMode = "memory_only"
	// WalOnly appends every mutation to the write-ahead log; Close does not
	// checkpoint, so unless Checkpoint() is called explicitly, recovery
	// replays the whole log from the start.
	WalOnly PersistenceMode = "wal_only"
	// CheckpointOnly snapshots on Checkpoint() calls and skips the WAL
	// entirely; mutations since the last checkpoint are lost on crash.
	CheckpointOnly PersistenceMode = "checkpoint_only"
	// Full runs the WAL plus checkpoints taken on Checkpoint() calls and on
	// Close; CheckpointPeriod is not acted on, so no periodic checkpoint
	// runs. On open the WAL is replayed from its start up to the first
	// Checkpoint marker.
	Full PersistenceMode = "full"
)

// jsonLevelConfig mirrors LevelConfig's shape for tierdb.json decoding.
type jsonLevelConfig struct {
	CapacityBytes     int64   `json:"capacity_bytes"`
	CapacityEntries   int     `json:"capacity_entries"`
	Policy            string  `json:"policy"`
	OnDisk            bool    `json:"on_disk"`
	HitRatioThreshold float64 `json:"hit_ratio_threshold"`
	WriteBufferBytes  int     `json:"write_buffer_bytes"`
	AuraAlpha         float64 `json:"aura_alpha"`
}

// jsonConfig is the shape of tierdb.json, the simplified on-disk config file.
type jsonConfig struct {
	Levels           []jsonLevelConfig `json:"levels"`
	TargetHitRatio   float64           `json:"target_hit_ratio"`
	TuneInterval     string            `json:"tune_interval"`
	AutoTuneEnabled  bool              `json:"auto_tune_enabled"`
	PersistenceMode  string            `json:"persistence_mode"`
	DataDir          string            `json:"data_dir"`
	CheckpointPeriod string            `json:"checkpoint_period"`
	PageCacheEntries int               `json:"page_cache_entries"`
}

// StoreConfig is the full configuration surface for a CachedStore: its
// tiered cache engine plus its persistence engine.
type StoreConfig struct {
	Engine EngineConfig

	Mode             PersistenceMode
	DataDir          string
	CheckpointPeriod time.Duration
	PageCacheEntries int

	Logger Logger
}

// Global configuration state, mirroring the teacher's power-user escape
// hatch: a process can call SetGlobalConfig once at startup (e.g. from an
// init() in a tierdb_config.go file) to bypass the JSON file entirely.
var (
	globalConfig *StoreConfig
	configMutex  sync.RWMutex
)

// SetGlobalConfig installs a config that LoadStoreConfig will prefer over
// both tierdb.json and the built-in defaults.
func SetGlobalConfig(cfg StoreConfig) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = &cfg
}

// GetGlobalConfig returns the process-wide override config, if one was set.
func GetGlobalConfig() *StoreConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// LoadStoreConfig resolves configuration with priority: global Go override
// > tierdb.json in the working directory or a parent > built-in defaults.
func LoadStoreConfig() StoreConfig {
	if cfg := GetGlobalConfig(); cfg != nil {
		return *cfg
	}
	if cfg, err := loadJSONStoreConfig(); err == nil {
		return cfg
	}
	return defaultStoreConfig()
}

func loadJSONStoreConfig() (StoreConfig, error) {
	path := findConfigFile()
	if path == "" {
		return StoreConfig{}, fmt.Errorf("tierdb.json not found")
	}
	if filepath.Base(path) != "tierdb.json" || strings.Contains(path, "..") {
		return StoreConfig{}, fmt.Errorf("invalid config file path: %s", path)
	}
	// nosec G304 - path is validated above to prevent traversal.
	data, err := os.ReadFile(path)
	if err != nil {
		return StoreConfig{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return StoreConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg := defaultStoreConfig()
	if len(jc.Levels) > 0 {
		levels := make([]LevelConfig, len(jc.Levels))
		for i, jl := range jc.Levels {
			levels[i] = LevelConfig{
				CapacityBytes:     jl.CapacityBytes,
				CapacityEntries:   jl.CapacityEntries,
				Policy:            PolicyKind(jl.Policy),
				OnDisk:            jl.OnDisk,
				HitRatioThreshold: jl.HitRatioThreshold,
				WriteBufferBytes:  jl.WriteBufferBytes,
				AuraAlpha:         jl.AuraAlpha,
			}
		}
		cfg.Engine.Levels = levels
	}
	if jc.TargetHitRatio > 0 {
		cfg.Engine.TargetHitRatio = jc.TargetHitRatio
	}
	if jc.TuneInterval != "" {
		d, err := time.ParseDuration(jc.TuneInterval)
		if err != nil {
			return StoreConfig{}, fmt.Errorf("invalid tune_interval in %s: %w", path, err)
		}
		cfg.Engine.TuneInterval = d
	}
	cfg.Engine.AutoTuneEnabled = jc.AutoTuneEnabled
	if jc.PersistenceMode != "" {
		cfg.Mode = PersistenceMode(jc.PersistenceMode)
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.CheckpointPeriod != "" {
		d, err := time.ParseDuration(jc.CheckpointPeriod)
		if err != nil {
			return StoreConfig{}, fmt.Errorf("invalid checkpoint_period in %s: %w", path, err)
		}
		cfg.CheckpointPeriod = d
	}
	if jc.PageCacheEntries > 0 {
		cfg.PageCacheEntries = jc.PageCacheEntries
	}
	return cfg, nil
}

// findConfigFile searches for tierdb.json in the working directory and up
// to four parent directories.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "tierdb.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// defaultStoreConfig returns a three-level LRU/ARC/WTinyLFU tier with
// auto-tuning enabled and full (WAL + checkpoint) persistence under ./data.
func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		Engine: EngineConfig{
			Name: "tierdb",
			Levels: []LevelConfig{
				{CapacityBytes: 16 << 20, CapacityEntries: 100_000, Policy: PolicyLRU, HitRatioThreshold: 0.9},
				{CapacityBytes: 128 << 20, CapacityEntries: 1_000_000, Policy: PolicyARC, HitRatioThreshold: 0.7},
				{CapacityBytes: 512 << 20, CapacityEntries: 5_000_000, Policy: PolicyWTinyLFU, OnDisk: true, HitRatioThreshold: 0.5},
			},
			AutoTuneEnabled: true,
			TargetHitRatio:  0.8,
			TuneInterval:    30 * time.Second,
			TuneEpsilon:     0.02,
		},
		Mode:             Full,
		DataDir:          "./data",
		CheckpointPeriod: 5 * time.Minute,
		PageCacheEntries: 4096,
		Logger:           NopLogger{},
	}
}

// GetConfigSource reports which tier LoadStoreConfig would resolve to,
// for debugging and the tierdb-debug inspector.
func GetConfigSource() string {
	if GetGlobalConfig() != nil {
		return "Go configuration (SetGlobalConfig)"
	}
	if findConfigFile() != "" {
		return "JSON configuration (tierdb.json)"
	}
	return "default configuration"
}
