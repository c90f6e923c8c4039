// /cmd/tierdb-cli/main.go: interactive tierdb.json generator
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// simpleLevel mirrors the shape jsonLevelConfig expects in tierdb.json.
type simpleLevel struct {
	CapacityBytes   int64  `json:"capacity_bytes"`
	CapacityEntries int    `json:"capacity_entries"`
	Policy          string `json:"policy"`
	OnDisk          bool   `json:"on_disk,omitempty"`
}

type simpleConfig struct {
	Levels           []simpleLevel `json:"levels"`
	TargetHitRatio   float64       `json:"target_hit_ratio,omitempty"`
	AutoTuneEnabled  bool          `json:"auto_tune_enabled,omitempty"`
	PersistenceMode  string        `json:"persistence_mode,omitempty"`
	DataDir          string        `json:"data_dir,omitempty"`
	CheckpointPeriod string        `json:"checkpoint_period,omitempty"`
}

func main() {
	fmt.Println("tierdb configuration generator")
	fmt.Println("===============================")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	var cfg simpleConfig

	fmt.Println("What's your primary use case?")
	fmt.Println("1. Development/Testing (single level, in-memory)")
	fmt.Println("2. Web Application (two levels, auto-tuned, full persistence)")
	fmt.Println("3. High-Throughput API (three levels, wtinylfu last)")
	fmt.Println("4. Memory-Constrained (one ARC level, checkpoint-only)")
	fmt.Println("5. Custom configuration")
	fmt.Println("6. Exit")
	fmt.Print("Choose (1-6): ")

	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(choice)

	switch choice {
	case "1":
		cfg = simpleConfig{
			Levels:          []simpleLevel{{CapacityBytes: 4 << 20, CapacityEntries: 10_000, Policy: "lru"}},
			PersistenceMode: "memory_only",
		}
	case "2":
		cfg = simpleConfig{
			Levels: []simpleLevel{
				{CapacityBytes: 16 << 20, CapacityEntries: 100_000, Policy: "lru"},
				{CapacityBytes: 256 << 20, CapacityEntries: 2_000_000, Policy: "wtinylfu"},
			},
			TargetHitRatio:   0.85,
			AutoTuneEnabled:  true,
			PersistenceMode:  "full",
			DataDir:          "./data",
			CheckpointPeriod: "5m",
		}
	case "3":
		cfg = simpleConfig{
			Levels: []simpleLevel{
				{CapacityBytes: 16 << 20, CapacityEntries: 100_000, Policy: "lru"},
				{CapacityBytes: 128 << 20, CapacityEntries: 1_000_000, Policy: "arc"},
				{CapacityBytes: 512 << 20, CapacityEntries: 5_000_000, Policy: "wtinylfu", OnDisk: true},
			},
			TargetHitRatio:   0.8,
			AutoTuneEnabled:  true,
			PersistenceMode:  "full",
			DataDir:          "./data",
			CheckpointPeriod: "2m",
		}
	case "4":
		cfg = simpleConfig{
			Levels:          []simpleLevel{{CapacityBytes: 8 << 20, CapacityEntries: 50_000, Policy: "arc"}},
			PersistenceMode: "checkpoint_only",
			DataDir:         "./data",
		}
	case "5":
		cfg = customConfig(reader)
	case "6":
		fmt.Println("bye")
		os.Exit(0)
	default:
		fmt.Println("invalid choice, using development defaults")
		cfg = simpleConfig{Levels: []simpleLevel{{CapacityBytes: 4 << 20, CapacityEntries: 10_000, Policy: "lru"}}}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fmt.Printf("error generating config: %v\n", err)
		return
	}
	if err := os.WriteFile("tierdb.json", data, 0600); err != nil {
		fmt.Printf("error writing tierdb.json: %v\n", err)
		return
	}
	fmt.Println("\nwrote tierdb.json:")
	fmt.Println(string(data))
}

func customConfig(reader *bufio.Reader) simpleConfig {
	var cfg simpleConfig
	var lvl simpleLevel

	fmt.Print("Level 0 capacity in bytes: ")
	if s, _ := reader.ReadString('\n'); s != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			lvl.CapacityBytes = n
		}
	}
	fmt.Print("Level 0 capacity in entries: ")
	if s, _ := reader.ReadString('\n'); s != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			lvl.CapacityEntries = n
		}
	}
	fmt.Print("Level 0 policy (lru/lfu/arc/wtinylfu/aura): ")
	if s, _ := reader.ReadString('\n'); s != "" {
		lvl.Policy = strings.TrimSpace(s)
	}
	cfg.Levels = []simpleLevel{lvl}

	fmt.Print("Persistence mode (memory_only/wal_only/checkpoint_only/full): ")
	if s, _ := reader.ReadString('\n'); s != "" {
		cfg.PersistenceMode = strings.TrimSpace(s)
	}
	return cfg
}
