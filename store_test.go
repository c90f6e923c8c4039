// store_test.go: Unit tests for CachedStore
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import "testing"

func newTestStore(t *testing.T) *CachedStore {
	t.Helper()
	cfg := StoreConfig{
		Engine: EngineConfig{
			Name:   "test",
			Levels: []LevelConfig{{CapacityBytes: 1 << 20, CapacityEntries: 1000, Policy: PolicyLRU, HitRatioThreshold: 0.5}},
		},
		Mode:             Full,
		DataDir:          t.TempDir(),
		PageCacheEntries: 64,
		Logger:           NopLogger{},
	}
	s, err := NewCachedStore(cfg)
	if err != nil {
		t.Fatalf("unexpected error building CachedStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCachedStore_CreateInsertGetRow(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateTable(usersTable()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, err := s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := s.GetRow("users", row.RowID)
	if err != nil || !ok {
		t.Fatalf("expected to find the inserted row, ok=%v err=%v", ok, err)
	}
	if got.Values[1].Str != "a@example.com" {
		t.Errorf("unexpected row: %+v", got)
	}
}

func TestCachedStore_UpdateInvalidatesCachedRow(t *testing.T) {
	s := newTestStore(t)
	_ = s.CreateTable(usersTable())
	row, _ := s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})

	// Warm the cache.
	if _, _, err := s.GetRow("users", row.RowID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.UpdateRow("users", row.RowID, Row{Values: []Value{IntValue(0), StringValue("new@example.com")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := s.GetRow("users", row.RowID)
	if err != nil || !ok {
		t.Fatalf("expected row still present, ok=%v err=%v", ok, err)
	}
	if got.Values[1].Str != "new@example.com" {
		t.Errorf("expected updated value to be visible, got %+v", got)
	}
}

func TestCachedStore_DeleteRow(t *testing.T) {
	s := newTestStore(t)
	_ = s.CreateTable(usersTable())
	row, _ := s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})

	if err := s.DeleteRow("users", row.RowID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok, err := s.GetRow("users", row.RowID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected the row to be gone after delete")
	}
}

func TestCachedStore_QueryCacheInvalidatedByWrite(t *testing.T) {
	s := newTestStore(t)
	_ = s.CreateTable(usersTable())
	_, _ = s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})

	const queryHash = 12345
	rows, err := s.SelectRows("users", queryHash, nil)
	if err != nil || len(rows) != 1 {
		t.Fatalf("unexpected first query result: rows=%+v err=%v", rows, err)
	}

	_, _ = s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("b@example.com")}})

	rows, err = s.SelectRows("users", queryHash, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected the query cache to be invalidated by the intervening insert, got %d rows", len(rows))
	}
}

func TestCachedStore_DropTableInvalidatesTableKey(t *testing.T) {
	s := newTestStore(t)
	_ = s.CreateTable(usersTable())

	if err := s.DropTable("users"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.DropTable("users"); err == nil {
		t.Error("expected an error dropping an already-dropped table")
	}
}

func TestCachedStore_DropTableInvalidatesCachedRow(t *testing.T) {
	s := newTestStore(t)
	_ = s.CreateTable(usersTable())
	row, _ := s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})

	// Warm the Row(users, row.RowID) cache entry.
	if _, ok, err := s.GetRow("users", row.RowID); err != nil || !ok {
		t.Fatalf("expected to find the inserted row, ok=%v err=%v", ok, err)
	}

	if err := s.DropTable("users"); err != nil {
		t.Fatalf("unexpected error dropping table: %v", err)
	}

	if _, ok, err := s.GetRow("users", row.RowID); err == nil || ok {
		t.Errorf("expected the dropped table's row cache entry to be gone, got ok=%v err=%v", ok, err)
	}
}

func TestCachedStore_AddForeignKeyEnforcedOnInsertAndUpdate(t *testing.T) {
	s := newTestStore(t)
	_ = s.CreateTable(usersTable())
	_ = s.CreateTable(Table{
		Name:    "orders",
		Columns: []ColumnDef{{Name: "id", Type: uint32(valueTypeInt), Flags: ColPrimary}, {Name: "user_id", Type: uint32(valueTypeInt)}},
	})
	if err := s.AddForeignKey(ForeignKey{Name: "fk_orders_users", Table: "orders", Column: "user_id", ReferencesTable: "users", ReferencesColumn: "id"}); err != nil {
		t.Fatalf("unexpected error adding foreign key: %v", err)
	}

	if _, err := s.InsertRow("orders", Row{Values: []Value{IntValue(1), IntValue(999)}}); err == nil {
		t.Fatal("expected insert to fail for a nonexistent referenced user")
	}

	user, _ := s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})
	order, err := s.InsertRow("orders", Row{Values: []Value{IntValue(1), IntValue(int64(user.RowID))}})
	if err != nil {
		t.Fatalf("expected insert to succeed once the referenced user exists: %v", err)
	}

	if err := s.UpdateRow("orders", order.RowID, Row{Values: []Value{IntValue(1), IntValue(999)}}); err == nil {
		t.Fatal("expected update to be rejected for a nonexistent referenced user")
	}
}

func TestCachedStore_RejectsMutationAfterClose(t *testing.T) {
	s := newTestStore(t)
	_ = s.CreateTable(usersTable())
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}

	if _, err := s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}}); err == nil {
		t.Fatal("expected InsertRow to fail after Close")
	} else if k, ok := KindOf(err); !ok || k != KindShutdown {
		t.Errorf("expected KindShutdown, got %v", err)
	}

	// A second Close must be a harmless no-op, not a double Close of persistence.
	if err := s.Close(); err != nil {
		t.Errorf("expected a second Close to be a no-op, got %v", err)
	}
}

func TestCachedStore_CheckpointAndClose(t *testing.T) {
	s := newTestStore(t)
	_ = s.CreateTable(usersTable())
	_, _ = s.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})

	if err := s.Checkpoint(); err != nil {
		t.Fatalf("unexpected error checkpointing: %v", err)
	}
	// s.Close() runs via t.Cleanup; asserting it here too would close twice.
}
