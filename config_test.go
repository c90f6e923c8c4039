// config_test.go: Unit tests for config loading and validation
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import "testing"

func TestLoadStoreConfig_GlobalOverrideWins(t *testing.T) {
	custom := StoreConfig{Engine: EngineConfig{Name: "custom", Levels: []LevelConfig{{CapacityBytes: 1, CapacityEntries: 1, Policy: PolicyLRU}}}}
	SetGlobalConfig(custom)
	defer SetGlobalConfig(StoreConfig{})

	got := LoadStoreConfig()
	if got.Engine.Name != "custom" {
		t.Errorf("expected the global override to win, got %+v", got)
	}
	if GetConfigSource() != "Go configuration (SetGlobalConfig)" {
		t.Errorf("unexpected config source: %s", GetConfigSource())
	}
}

func TestDefaultStoreConfig_IsValid(t *testing.T) {
	cfg := defaultStoreConfig()
	if err := cfg.Engine.validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidateConfig_FlagsMissingDataDir(t *testing.T) {
	cfg := StoreConfig{
		Engine: EngineConfig{Levels: []LevelConfig{{CapacityBytes: 1, CapacityEntries: 1, Policy: PolicyLRU}}},
		Mode:   Full,
	}
	result := ValidateConfig(cfg)
	if result.IsValid {
		t.Error("expected Full mode with no data_dir to be invalid")
	}
}

func TestValidateConfig_SuggestsCheckpointPeriod(t *testing.T) {
	cfg := StoreConfig{
		Engine:  EngineConfig{Levels: []LevelConfig{{CapacityBytes: 1, CapacityEntries: 1, Policy: PolicyLRU}}},
		Mode:    Full,
		DataDir: "./data",
	}
	result := ValidateConfig(cfg)
	if len(result.Suggestions) == 0 {
		t.Error("expected a suggestion about a zero checkpoint_period")
	}
	if result.OptimizedConfig == nil || result.OptimizedConfig.CheckpointPeriod == 0 {
		t.Error("expected generateOptimizedConfig to fill in a nonzero checkpoint_period")
	}
}

func TestGetConfigRecommendation_KnownPresets(t *testing.T) {
	for _, name := range []string{"development", "web-server", "memory-efficient", "unknown-preset"} {
		cfg := GetConfigRecommendation(name)
		if err := cfg.Engine.validate(); err != nil {
			t.Errorf("preset %q produced an invalid engine config: %v", name, err)
		}
	}
}
