// database_test.go: Unit tests for Database
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import "testing"

func usersTable() Table {
	return Table{
		Name:       "users",
		Columns:    []ColumnDef{{Name: "id", Type: uint32(valueTypeInt), Flags: ColPrimary}, {Name: "email", Type: uint32(valueTypeVarchar)}},
		PrimaryKey: "id",
		NextRowID:  1,
	}
}

func TestDatabase_CreateAndDropTable(t *testing.T) {
	db := NewDatabase()
	db.CreateTable(usersTable())
	if _, ok := db.Table("users"); !ok {
		t.Fatal("expected users table to exist")
	}
	if !db.DropTable("users") {
		t.Error("DropTable should report true for an existing table")
	}
	if db.DropTable("users") {
		t.Error("DropTable should report false for an already-dropped table")
	}
}

func TestDatabase_InsertAssignsRowID(t *testing.T) {
	db := NewDatabase()
	db.CreateTable(usersTable())
	row, err := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.RowID != 1 {
		t.Errorf("expected assigned RowID 1, got %d", row.RowID)
	}
	row2, _ := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("b@example.com")}})
	if row2.RowID != 2 {
		t.Errorf("expected assigned RowID 2, got %d", row2.RowID)
	}
}

func TestDatabase_InsertRejectsMissingTable(t *testing.T) {
	db := NewDatabase()
	if _, err := db.InsertRow("ghost", Row{}); err == nil {
		t.Fatal("expected an error inserting into a nonexistent table")
	}
}

func TestDatabase_UpdateAndDeleteRow(t *testing.T) {
	db := NewDatabase()
	db.CreateTable(usersTable())
	row, _ := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})

	if err := db.UpdateRow("users", row.RowID, Row{Values: []Value{IntValue(0), StringValue("new@example.com")}}); err != nil {
		t.Fatalf("expected UpdateRow to succeed: %v", err)
	}
	rows, _ := db.SelectRows("users", func(r Row) bool { return r.RowID == row.RowID })
	if len(rows) != 1 || rows[0].Values[1].Str != "new@example.com" {
		t.Errorf("unexpected rows after update: %+v", rows)
	}

	if !db.DeleteRow("users", row.RowID) {
		t.Fatal("expected DeleteRow to succeed")
	}
	rows, _ = db.SelectRows("users", nil)
	if len(rows) != 0 {
		t.Errorf("expected no rows after delete, got %+v", rows)
	}
}

func TestDatabase_ForeignKeyValidation(t *testing.T) {
	db := NewDatabase()
	db.CreateTable(usersTable())
	db.CreateTable(Table{
		Name:    "orders",
		Columns: []ColumnDef{{Name: "id", Type: uint32(valueTypeInt), Flags: ColPrimary}, {Name: "user_id", Type: uint32(valueTypeInt)}},
	})
	db.AddForeignKey(ForeignKey{Name: "fk_orders_users", Table: "orders", Column: "user_id", ReferencesTable: "users", ReferencesColumn: "id"})

	if _, err := db.InsertRow("orders", Row{Values: []Value{IntValue(1), IntValue(999)}}); err == nil {
		t.Fatal("expected foreign key violation inserting an order for a nonexistent user")
	}

	user, _ := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})
	if _, err := db.InsertRow("orders", Row{Values: []Value{IntValue(1), IntValue(int64(user.RowID))}}); err != nil {
		t.Errorf("expected insert to succeed once the referenced user exists: %v", err)
	}
}

func TestDatabase_UpdateRowValidatesForeignKeys(t *testing.T) {
	db := NewDatabase()
	db.CreateTable(usersTable())
	db.CreateTable(Table{
		Name:    "orders",
		Columns: []ColumnDef{{Name: "id", Type: uint32(valueTypeInt), Flags: ColPrimary}, {Name: "user_id", Type: uint32(valueTypeInt)}},
	})
	db.AddForeignKey(ForeignKey{Name: "fk_orders_users", Table: "orders", Column: "user_id", ReferencesTable: "users", ReferencesColumn: "id"})

	user, _ := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("a@example.com")}})
	order, _ := db.InsertRow("orders", Row{Values: []Value{IntValue(1), IntValue(int64(user.RowID))}})

	if err := db.UpdateRow("orders", order.RowID, Row{Values: []Value{IntValue(1), IntValue(999)}}); err == nil {
		t.Fatal("expected UpdateRow to reject a foreign key pointing at a nonexistent user")
	}
}

func TestDatabase_InsertAndUpdateEnforceVarcharCap(t *testing.T) {
	db := NewDatabase()
	db.CreateTable(Table{
		Name:    "users",
		Columns: []ColumnDef{{Name: "id", Type: uint32(valueTypeInt), Flags: ColPrimary}, {Name: "email", Type: uint32(valueTypeVarchar), MaxLength: 4}},
	})

	if _, err := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("too-long")}}); err == nil {
		t.Fatal("expected InsertRow to reject a value exceeding max_length")
	}

	row, err := db.InsertRow("users", Row{Values: []Value{IntValue(0), StringValue("ok")}})
	if err != nil {
		t.Fatalf("expected a value within max_length to be accepted: %v", err)
	}

	if err := db.UpdateRow("users", row.RowID, Row{Values: []Value{IntValue(0), StringValue("too-long")}}); err == nil {
		t.Fatal("expected UpdateRow to reject a value exceeding max_length")
	}
}

func TestDatabase_DropTableStripsForeignKeys(t *testing.T) {
	db := NewDatabase()
	db.CreateTable(usersTable())
	db.CreateTable(Table{Name: "orders"})
	db.AddForeignKey(ForeignKey{Name: "fk", Table: "orders", Column: "user_id", ReferencesTable: "users", ReferencesColumn: "id"})

	db.DropTable("users")
	if len(db.ForeignKeys()) != 0 {
		t.Errorf("expected foreign keys naming a dropped table to be removed, got %+v", db.ForeignKeys())
	}
}
