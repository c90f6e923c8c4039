// /cmd/tierdb-debug/main.go: inspect a tierdb data directory and measure
// real cache engine performance.
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/agilira/tierdb"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}
	switch os.Args[1] {
	case "inspect":
		cmdInspect(os.Args[2:])
	case "bench":
		cmdBench(os.Args[2:])
	case "version":
		fmt.Printf("tierdb-debug version %s, Go version: %s\n", version, runtime.Version())
	case "help", "-h", "--help":
		showHelp()
	default:
		fmt.Printf("unknown command: %s\n\n", os.Args[1])
		showHelp()
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Printf("tierdb-debug v%s\n\n", version)
	fmt.Println("USAGE: tierdb-debug <command> [flags]")
	fmt.Println("COMMANDS:")
	fmt.Println("  inspect -dir <path>   Dump a data directory's header, WAL entry count, and table list")
	fmt.Println("  bench                 Run real CacheEngine Get/Put measurements")
	fmt.Println("  version               Show version information")
	fmt.Println("  help                  Show this help")
}

func cmdInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dir := fs.String("dir", "./data", "data directory to inspect")
	jsonOutput := fs.Bool("json", false, "output in JSON format")
	if err := fs.Parse(args); err != nil {
		return
	}

	report, err := tierdb.InspectDataDir(*dir)
	if err != nil {
		fmt.Printf("inspect failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("=== %s ===\n", *dir)
	fmt.Printf("header present:   %v\n", report.HeaderPresent)
	fmt.Printf("header version:   %d\n", report.HeaderVersion)
	fmt.Printf("tables:           %d\n", len(report.Tables))
	for _, t := range report.Tables {
		fmt.Printf("  - %s (%d rows)\n", t.Name, t.RowCount)
	}
	fmt.Printf("wal present:      %v\n", report.WALPresent)
	fmt.Printf("wal entries:      %d\n", report.WALEntryCount)
	fmt.Printf("last checkpoint:  %s\n", report.LastCheckpoint.Format(time.RFC3339))
}

func cmdBench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "output in JSON format")
	entries := fs.Int("n", 5000, "number of keys to exercise")
	if err := fs.Parse(args); err != nil {
		return
	}

	engine, err := tierdb.NewCacheEngine(tierdb.EngineConfig{
		Name: "tierdb-debug-bench",
		Levels: []tierdb.LevelConfig{
			{CapacityBytes: 16 << 20, CapacityEntries: *entries, Policy: tierdb.PolicyWTinyLFU, HitRatioThreshold: 0.7},
		},
		TargetHitRatio: 0.7,
	})
	if err != nil {
		fmt.Printf("failed to build engine: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	for i := 0; i < *entries; i++ {
		key := tierdb.RowKey("bench", uint64(i))
		_ = engine.Put(key, []byte{byte(i)}, false)
	}
	putDur := time.Since(start)

	hits := 0
	start = time.Now()
	for i := 0; i < *entries; i++ {
		key := tierdb.RowKey("bench", uint64(i%(*entries/2+1)))
		if _, ok := engine.Get(key); ok {
			hits++
		}
	}
	getDur := time.Since(start)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats := engine.Stats()

	if *jsonOutput {
		out := map[string]interface{}{
			"entries":          *entries,
			"put_ns_per_op":    putDur.Nanoseconds() / int64(*entries),
			"get_ns_per_op":    getDur.Nanoseconds() / int64(*entries),
			"hits":             hits,
			"engine_hits":      stats.Hits,
			"engine_misses":    stats.Misses,
			"alloc_mb":         float64(mem.Alloc) / 1024 / 1024,
			"go_version":       runtime.Version(),
			"num_cpu":          runtime.NumCPU(),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("entries:       %d\n", *entries)
	fmt.Printf("put:           %d ns/op\n", putDur.Nanoseconds()/int64(*entries))
	fmt.Printf("get:           %d ns/op\n", getDur.Nanoseconds()/int64(*entries))
	fmt.Printf("engine hits:   %d\n", stats.Hits)
	fmt.Printf("engine misses: %d\n", stats.Misses)
	fmt.Printf("alloc:         %.1f MB\n", float64(mem.Alloc)/1024/1024)
}
