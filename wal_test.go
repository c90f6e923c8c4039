// wal_test.go: Unit tests for walFile
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"path/filepath"
	"testing"
)

func TestWalFile_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := openWALFile(path, 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.close()

	seq1, err := w.append(WalEntry{Type: WalInsert, Table: "users", RowID: 1, Payload: []byte("a")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seq2, err := w.append(WalEntry{Type: WalInsert, Table: "users", RowID: 2, Payload: []byte("b")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq2 != seq1+1 {
		t.Errorf("expected monotonic sequence numbers, got %d then %d", seq1, seq2)
	}

	var replayed []WalEntry
	if err := w.replay(func(e WalEntry) error {
		replayed = append(replayed, e)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replayed) != 2 {
		t.Fatalf("expected 2 replayed entries, got %d", len(replayed))
	}
	if replayed[0].RowID != 1 || replayed[1].RowID != 2 {
		t.Errorf("unexpected replay order: %+v", replayed)
	}
}

func TestWalFile_ReplayStopsAtCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, _ := openWALFile(path, 1<<20)
	defer w.close()

	_, _ = w.append(WalEntry{Type: WalInsert, Table: "t", RowID: 1})
	_, _ = w.append(WalEntry{Type: WalCheckpoint})
	_, _ = w.append(WalEntry{Type: WalInsert, Table: "t", RowID: 2})

	var replayed []WalEntry
	_ = w.replay(func(e WalEntry) error {
		replayed = append(replayed, e)
		return nil
	})
	if len(replayed) != 1 {
		t.Fatalf("expected replay to stop at the checkpoint marker, got %d entries", len(replayed))
	}
}

func TestWalFile_TruncateResetsSequenceAndAppendsCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, _ := openWALFile(path, 1<<20)
	defer w.close()

	_, _ = w.append(WalEntry{Type: WalInsert, Table: "t", RowID: 1})
	_, _ = w.append(WalEntry{Type: WalInsert, Table: "t", RowID: 2})

	if err := w.truncate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.currentSequence() != 2 {
		t.Errorf("expected sequence 2 after truncate + checkpoint append, got %d", w.currentSequence())
	}

	var replayed []WalEntry
	_ = w.replay(func(e WalEntry) error {
		replayed = append(replayed, e)
		return nil
	})
	if len(replayed) != 0 {
		t.Errorf("expected no replayable entries right after truncate, got %d", len(replayed))
	}
}

func TestWalFile_AppendRejectsOverflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, _ := openWALFile(path, walEntryHeader+4)
	defer w.close()

	if _, err := w.append(WalEntry{Type: WalInsert, Payload: []byte("0123456789")}); err == nil {
		t.Fatal("expected an error when the entry exceeds max_wal_size")
	}
}
