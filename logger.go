// logger.go: injectable logging seam
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

// Logger is the injectable logging seam used by CachedStore, the
// PersistenceEngine, and the auto-tune worker. Callers wire log/slog, zap,
// or anything else that satisfies it; NopLogger is the default.
type Logger interface {
	// Debug logs fine-grained events: cache hits/misses, tune adjustments.
	Debug(msg string, fields ...interface{})
	// Info logs operational events: table creation, checkpoints, startup.
	Info(msg string, fields ...interface{})
	// Warn logs degraded-but-recoverable conditions: eviction pressure,
	// a recovered WAL tail with a truncated final record.
	Warn(msg string, fields ...interface{})
	// Error logs failed operations: checksum mismatches, I/O failures.
	Error(msg string, fields ...interface{})
}

// NopLogger discards everything. It is the zero-configuration default.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...interface{}) {}
func (NopLogger) Info(msg string, fields ...interface{})  {}
func (NopLogger) Warn(msg string, fields ...interface{})  {}
func (NopLogger) Error(msg string, fields ...interface{}) {}
