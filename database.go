// database.go: in-memory relational store driven by CachedStore
//
// Database is the external collaborator spec.md §3 scopes generic
// schema/query machinery out of: it holds tables and rows and validates
// foreign keys by point lookup, but does not parse SQL, plan joins, or
// maintain secondary indexes.
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import "sync"

// Database is the in-memory table store. All mutation flows through
// CachedStore, which is responsible for pairing every change here with the
// matching WAL entry and cache invalidation.
type Database struct {
	mu          sync.RWMutex
	tables      map[string]*Table
	foreignKeys map[string]ForeignKey
	open        bool
}

// NewDatabase returns an empty, open Database.
func NewDatabase() *Database {
	return &Database{
		tables:      make(map[string]*Table),
		foreignKeys: make(map[string]ForeignKey),
		open:        true,
	}
}

// CreateTable registers t, replacing any existing table of the same name
// (the WAL replay rule for CreateTable, per spec.md §4.4).
func (d *Database) CreateTable(t Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := t
	d.tables[t.Name] = &cp
}

// DropTable removes a table and any foreign keys naming it on either side.
func (d *Database) DropTable(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[name]; !ok {
		return false
	}
	delete(d.tables, name)
	for k, fk := range d.foreignKeys {
		if fk.Table == name || fk.ReferencesTable == name {
			delete(d.foreignKeys, k)
		}
	}
	return true
}

// Table returns a pointer to the live table, or nil if absent. Callers
// outside this package never see this pointer; CachedStore copies out what
// it caches.
func (d *Database) Table(name string) (*Table, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[name]
	return t, ok
}

// TableNames returns every registered table name, for directory-scan-style
// persistence enumeration.
func (d *Database) TableNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	return names
}

// InsertRow appends row to table, assigning it NextRowID if row.RowID is 0,
// and validates every foreign key on table by point lookup in the
// referenced table (spec.md §3's "point-lookup validation" Non-goal scope:
// no cascade, no trigger).
func (d *Database) InsertRow(table string, row Row) (Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[table]
	if !ok {
		return Row{}, newErr("Database.InsertRow", KindNotFound, errf("table %q does not exist", table))
	}
	if row.RowID == 0 {
		row.RowID = t.NextRowID
	}
	if err := d.validateColumnCapsLocked(t, row); err != nil {
		return Row{}, err
	}
	if err := d.validateForeignKeysLocked(table, row); err != nil {
		return Row{}, err
	}
	t.Rows = append(t.Rows, row)
	if row.RowID >= t.NextRowID {
		t.NextRowID = row.RowID + 1
	}
	return row, nil
}

// validateColumnCapsLocked enforces spec.md §9's resolution of the Varchar
// length open question: a value is capped at put-time, rejected with
// KindInvalidConfig rather than silently truncated.
func (d *Database) validateColumnCapsLocked(t *Table, row Row) error {
	for i, c := range t.Columns {
		if c.MaxLength == 0 || i >= len(row.Values) {
			continue
		}
		v := row.Values[i]
		if v.Type != TypeUtf8 {
			continue
		}
		if uint32(len(v.Str)) > c.MaxLength {
			return newErr("Database.validateColumnCaps", KindInvalidConfig,
				errf("column %q: value length %d exceeds max_length %d", c.Name, len(v.Str), c.MaxLength))
		}
	}
	return nil
}

func (d *Database) validateForeignKeysLocked(table string, row Row) error {
	for _, fk := range d.foreignKeys {
		if fk.Table != table {
			continue
		}
		colIdx := columnIndex(d.tables[table], fk.Column)
		if colIdx < 0 || colIdx >= len(row.Values) {
			continue
		}
		ref, ok := d.tables[fk.ReferencesTable]
		if !ok {
			return newErr("Database.validateForeignKeys", KindInvalidConfig, errf("foreign key %q references missing table %q", fk.Name, fk.ReferencesTable))
		}
		refColIdx := columnIndex(ref, fk.ReferencesColumn)
		if refColIdx < 0 {
			return newErr("Database.validateForeignKeys", KindInvalidConfig, errf("foreign key %q references missing column %q", fk.Name, fk.ReferencesColumn))
		}
		found := rowExistsWithValue(ref, refColIdx, row.Values[colIdx])
		// A key on the referenced table's primary-key column also matches
		// a row whose RowID equals the value.
		if v := row.Values[colIdx]; !found && fk.ReferencesColumn == ref.PrimaryKey && v.Type == TypeInt64 && v.Int >= 0 {
			for _, r := range ref.Rows {
				if r.RowID == uint64(v.Int) {
					found = true
					break
				}
			}
		}
		if !found {
			return newErr("Database.validateForeignKeys", KindInvalidConfig, errf("foreign key %q: no row in %q.%q matches", fk.Name, fk.ReferencesTable, fk.ReferencesColumn))
		}
	}
	return nil
}

func columnIndex(t *Table, name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func rowExistsWithValue(t *Table, colIdx int, v Value) bool {
	for _, r := range t.Rows {
		if colIdx < len(r.Values) && valuesEqual(r.Values[colIdx], v) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TypeInt64:
		return a.Int == b.Int
	case TypeFloat64:
		return a.Flt == b.Flt
	case TypeUtf8:
		return a.Str == b.Str
	case TypeBool:
		return a.Bool == b.Bool
	default:
		return true
	}
}

// UpdateRow replaces the row identified by rowID in table, validating
// column caps and foreign keys exactly as InsertRow does (spec.md §5: FK
// validation applies to inserts and updates alike).
func (d *Database) UpdateRow(table string, rowID uint64, row Row) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[table]
	if !ok {
		return newErr("Database.UpdateRow", KindNotFound, errf("table %q does not exist", table))
	}
	for i := range t.Rows {
		if t.Rows[i].RowID == rowID {
			row.RowID = rowID
			if err := d.validateColumnCapsLocked(t, row); err != nil {
				return err
			}
			if err := d.validateForeignKeysLocked(table, row); err != nil {
				return err
			}
			t.Rows[i] = row
			return nil
		}
	}
	return newErr("Database.UpdateRow", KindNotFound, errf("row %d not found in table %q", rowID, table))
}

// DeleteRow removes the row identified by rowID from table, returning false
// if absent.
func (d *Database) DeleteRow(table string, rowID uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[table]
	if !ok {
		return false
	}
	for i := range t.Rows {
		if t.Rows[i].RowID == rowID {
			t.Rows = append(t.Rows[:i], t.Rows[i+1:]...)
			return true
		}
	}
	return false
}

// SelectRows returns a copy of every row in table for which where returns
// true (where == nil selects all rows).
func (d *Database) SelectRows(table string, where func(Row) bool) ([]Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[table]
	if !ok {
		return nil, newErr("Database.SelectRows", KindNotFound, errf("table %q does not exist", table))
	}
	out := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if where == nil || where(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// AddForeignKey registers fk for point-lookup validation on future inserts.
func (d *Database) AddForeignKey(fk ForeignKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.foreignKeys[fk.Name] = fk
}

// ForeignKeys returns every registered foreign key, for persistence.
func (d *Database) ForeignKeys() []ForeignKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ForeignKey, 0, len(d.foreignKeys))
	for _, fk := range d.foreignKeys {
		out = append(out, fk)
	}
	return out
}

// IsOpen reports whether the database is still open, i.e. Close has not
// been called.
func (d *Database) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.open
}

// Close marks the database closed; CachedStore.Close calls this after it
// has stopped accepting new mutations itself (KindShutdown), so IsOpen is
// mostly useful to other callers embedding Database directly.
func (d *Database) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
}
