// persistence_test.go: Unit tests for PersistenceEngine and InspectDataDir
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"testing"
)

func newTestPersistence(t *testing.T, mode PersistenceMode) (*PersistenceEngine, string) {
	t.Helper()
	dir := t.TempDir()
	pe, err := NewPersistenceEngine(StoreConfig{Mode: mode, DataDir: dir, PageCacheEntries: 64})
	if err != nil {
		t.Fatalf("unexpected error building PersistenceEngine: %v", err)
	}
	return pe, dir
}

func TestPersistenceEngine_SaveAndReopen(t *testing.T) {
	pe, dir := newTestPersistence(t, Full)
	db := NewDatabase()
	db.CreateTable(usersTable())
	_, _ = db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})

	if err := pe.Open(db); err != nil {
		t.Fatalf("unexpected error on first Open: %v", err)
	}
	if err := pe.Save(db); err != nil {
		t.Fatalf("unexpected error on Save: %v", err)
	}
	if err := pe.Close(db); err != nil {
		t.Fatalf("unexpected error on Close: %v", err)
	}

	pe2, err := NewPersistenceEngine(StoreConfig{Mode: Full, DataDir: dir, PageCacheEntries: 64})
	if err != nil {
		t.Fatalf("unexpected error reopening: %v", err)
	}
	db2 := NewDatabase()
	if err := pe2.Open(db2); err != nil {
		t.Fatalf("unexpected error reopening data dir: %v", err)
	}
	tbl, ok := db2.Table("users")
	if !ok {
		t.Fatal("expected users table to survive a save/reopen cycle")
	}
	if len(tbl.Rows) != 1 || tbl.Rows[0].Values[1].Str != "a@example.com" {
		t.Errorf("unexpected rows after reopen: %+v", tbl.Rows)
	}
}

func TestPersistenceEngine_WalReplayAfterCrash(t *testing.T) {
	pe, dir := newTestPersistence(t, Full)
	db := NewDatabase()
	db.CreateTable(usersTable())
	if err := pe.Open(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pe.Save(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row, _ := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})
	if _, err := pe.Append(WalEntry{Type: WalInsert, Table: "users", RowID: row.RowID, Payload: EncodeRow(row)}); err != nil {
		t.Fatalf("unexpected error appending to WAL: %v", err)
	}
	// Simulate a crash: no checkpoint, no final Save — the WAL entry is the
	// only record of the insert.

	pe2, err := NewPersistenceEngine(StoreConfig{Mode: Full, DataDir: dir, PageCacheEntries: 64})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db2 := NewDatabase()
	if err := pe2.Open(db2); err != nil {
		t.Fatalf("unexpected error replaying WAL: %v", err)
	}
	tbl, ok := db2.Table("users")
	if !ok || len(tbl.Rows) != 1 {
		t.Fatalf("expected the WAL-only insert to be recovered, got table=%v rows=%+v", ok, tbl)
	}
}

func TestPersistenceEngine_CheckpointTruncatesWAL(t *testing.T) {
	pe, _ := newTestPersistence(t, Full)
	db := NewDatabase()
	db.CreateTable(usersTable())
	if err := pe.Open(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, _ := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})
	_, _ = pe.Append(WalEntry{Type: WalInsert, Table: "users", RowID: row.RowID, Payload: EncodeRow(row)})

	if err := pe.Checkpoint(db); err != nil {
		t.Fatalf("unexpected error checkpointing: %v", err)
	}
	if pe.wal.size() == 0 {
		t.Error("expected the WAL to contain at least the post-truncate checkpoint marker")
	}

	var replayed []WalEntry
	_ = pe.wal.replay(func(e WalEntry) error {
		replayed = append(replayed, e)
		return nil
	})
	if len(replayed) != 0 {
		t.Errorf("expected no replayable entries right after a checkpoint, got %d", len(replayed))
	}
}

func TestPersistenceEngine_MemoryOnlyDoesNoIO(t *testing.T) {
	pe, err := NewPersistenceEngine(StoreConfig{Mode: MemoryOnly})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db := NewDatabase()
	if err := pe.Open(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pe.Save(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq, err := pe.Append(WalEntry{Type: WalInsert}); err != nil || seq != 0 {
		t.Errorf("expected Append to no-op under MemoryOnly, got seq=%d err=%v", seq, err)
	}
}

func TestPersistenceEngine_PageAllocationRoundTrip(t *testing.T) {
	pe, _ := newTestPersistence(t, Full)
	db := NewDatabase()
	if err := pe.Open(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := pe.AllocatePage()
	copy(p.Data[:], []byte("page payload"))
	if err := pe.WritePage(p); err != nil {
		t.Fatalf("unexpected error writing page: %v", err)
	}

	got, err := pe.ReadPage(p.ID)
	if err != nil {
		t.Fatalf("unexpected error reading page: %v", err)
	}
	if string(got.Data[:12]) != "page payload" {
		t.Errorf("unexpected page contents: %q", got.Data[:12])
	}
}

func TestInspectDataDir(t *testing.T) {
	pe, dir := newTestPersistence(t, Full)
	db := NewDatabase()
	db.CreateTable(usersTable())
	_, _ = db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})
	if err := pe.Open(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pe.Close(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := InspectDataDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.HeaderPresent {
		t.Error("expected HeaderPresent to be true")
	}
	if len(report.Tables) != 1 || report.Tables[0].Name != "users" || report.Tables[0].RowCount != 1 {
		t.Errorf("unexpected table report: %+v", report.Tables)
	}
	if !report.WALPresent {
		t.Error("expected WALPresent to be true under Full mode")
	}
}
