// config_validator.go: configuration validation and optimization suggestions
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"fmt"
	"time"
)

// ConfigValidationResult carries the outcome of ValidateConfig: whether the
// config is usable as-is, plus warnings and an optional optimized copy.
type ConfigValidationResult struct {
	IsValid         bool
	Warnings        []string
	Suggestions     []string
	OptimizedConfig *StoreConfig
}

// ValidateConfig range-checks cfg into IsValid/Warnings and offers
// suggestions for capacity and tuning knobs that look mis-sized relative
// to one another, mirroring the teacher's non-fatal validate-and-suggest
// style rather than hard rejection for anything but structural errors.
func ValidateConfig(cfg StoreConfig) ConfigValidationResult {
	result := ConfigValidationResult{IsValid: true}

	if err := cfg.Engine.validate(); err != nil {
		result.IsValid = false
		result.Warnings = append(result.Warnings, err.Error())
	}

	var totalBytes int64
	for i, lc := range cfg.Engine.Levels {
		totalBytes += lc.CapacityBytes
		if i > 0 && lc.CapacityBytes < cfg.Engine.Levels[i-1].CapacityBytes {
			result.Suggestions = append(result.Suggestions,
				fmt.Sprintf("level %d is smaller than level %d; levels are conventionally sized L0 < L1 < ... < Lk", i, i-1))
		}
		if lc.Policy == PolicyWTinyLFU && lc.CapacityEntries < 100 {
			result.Suggestions = append(result.Suggestions,
				fmt.Sprintf("level %d: wtinylfu's window segment needs capacity_entries >= 100 to carve out a non-trivial window", i))
		}
	}
	if totalBytes > 16<<30 {
		result.Suggestions = append(result.Suggestions,
			fmt.Sprintf("total configured capacity is %.1f GiB; confirm this fits the target host's memory", float64(totalBytes)/(1<<30)))
	}

	if cfg.Engine.AutoTuneEnabled && cfg.Engine.TuneInterval < time.Second {
		result.Suggestions = append(result.Suggestions, "tune_interval below 1s will dominate lock contention with tuning overhead")
	}

	if cfg.Mode != MemoryOnly && cfg.DataDir == "" {
		result.IsValid = false
		result.Warnings = append(result.Warnings, "data_dir must be set for any persistence mode other than memory_only")
	}

	if cfg.Mode == WalOnly || cfg.Mode == Full {
		if cfg.CheckpointPeriod == 0 && cfg.Mode == Full {
			result.Suggestions = append(result.Suggestions, "full persistence with no checkpoint_period will replay the entire WAL on every restart")
		}
	}

	if len(result.Suggestions) > 0 {
		result.OptimizedConfig = generateOptimizedConfig(cfg)
	}
	return result
}

// generateOptimizedConfig nudges cfg's tuning knobs toward the suggestions
// ValidateConfig produced, without touching structural settings (mode,
// data dir, level count) that only the caller should decide.
func generateOptimizedConfig(cfg StoreConfig) *StoreConfig {
	optimized := cfg
	if optimized.Engine.AutoTuneEnabled && optimized.Engine.TuneInterval < time.Second {
		optimized.Engine.TuneInterval = time.Second
	}
	if optimized.Mode == Full && optimized.CheckpointPeriod == 0 {
		optimized.CheckpointPeriod = 5 * time.Minute
	}
	return &optimized
}

// GetConfigRecommendation returns a StoreConfig tuned for a named workload
// shape, for callers that would rather start from a preset than hand-tune
// every level.
func GetConfigRecommendation(useCase string) StoreConfig {
	switch useCase {
	case "development":
		return StoreConfig{
			Engine: EngineConfig{
				Name:           "tierdb-dev",
				Levels:         []LevelConfig{{CapacityBytes: 4 << 20, CapacityEntries: 10_000, Policy: PolicyLRU, HitRatioThreshold: 0.8}},
				TargetHitRatio: 0.8,
			},
			Mode:    MemoryOnly,
			Logger:  NopLogger{},
		}
	case "web-server":
		return StoreConfig{
			Engine: EngineConfig{
				Name: "tierdb-web",
				Levels: []LevelConfig{
					{CapacityBytes: 16 << 20, CapacityEntries: 100_000, Policy: PolicyLRU, HitRatioThreshold: 0.9},
					{CapacityBytes: 256 << 20, CapacityEntries: 2_000_000, Policy: PolicyWTinyLFU, HitRatioThreshold: 0.6},
				},
				AutoTuneEnabled: true,
				TargetHitRatio:  0.85,
				TuneInterval:    30 * time.Second,
			},
			Mode:             Full,
			DataDir:          "./data",
			CheckpointPeriod: 5 * time.Minute,
			PageCacheEntries: 4096,
			Logger:           NopLogger{},
		}
	case "memory-efficient":
		return StoreConfig{
			Engine: EngineConfig{
				Name:           "tierdb-lean",
				Levels:         []LevelConfig{{CapacityBytes: 8 << 20, CapacityEntries: 50_000, Policy: PolicyARC, HitRatioThreshold: 0.7}},
				TargetHitRatio: 0.7,
			},
			Mode:    CheckpointOnly,
			DataDir: "./data",
			Logger:  NopLogger{},
		}
	default:
		return defaultStoreConfig()
	}
}
