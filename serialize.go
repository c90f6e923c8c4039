// serialize.go: binary encode/decode for Value, Row, Table, ForeignKey, the
// WAL entry record, and the database file header.
//
// All multi-byte integers are little-endian. Fixed-width string fields are
// NUL-padded to their declared length and truncated (not NUL-terminated
// beyond the declared length) on encode.
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"
)

const (
	headerMagic     = "FI_RDB_PERSIST\x00\x00"
	headerSize      = 512
	headerVersion   = 1
	walEntryHeader  = 100 // fixed portion before the variable payload
	tableNameField  = 64
	columnDefSize   = 64 + 4 + 4 + 4 + 64 + 64 + 64
	foreignKeySize  = 64*5 + 4
)

// putFixedString writes s into buf[off:off+n], NUL-padding or truncating.
func putFixedString(buf []byte, off, n int, s string) {
	b := []byte(s)
	if len(b) > n {
		b = b[:n]
	}
	copy(buf[off:off+n], b)
}

func getFixedString(buf []byte, off, n int) string {
	b := buf[off : off+n]
	end := 0
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[:end])
}

func fnv1a(data []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(data)
	return h.Sum32()
}

// --- PersistentHeader (§6.1, fixed 512 bytes) -------------------------------

// PersistentHeader is the fixed-size leading record of database.rdb.
type PersistentHeader struct {
	Version         uint32
	CreatedTime     time.Time
	LastCheckpoint  time.Time
	NextPageID      uint64
	TotalPages      uint64
	WalSequence     uint64
	TableCount      uint32
}

// EncodeHeader renders h into a 512-byte buffer with its checksum field
// computed over bytes [0..64), every field that precedes the checksum.
func EncodeHeader(h PersistentHeader) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:16], headerMagic)
	binary.LittleEndian.PutUint32(buf[16:20], h.Version)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(h.CreatedTime.Unix()))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(h.LastCheckpoint.Unix()))
	binary.LittleEndian.PutUint64(buf[36:44], h.NextPageID)
	binary.LittleEndian.PutUint64(buf[44:52], h.TotalPages)
	binary.LittleEndian.PutUint64(buf[52:60], h.WalSequence)
	binary.LittleEndian.PutUint32(buf[60:64], h.TableCount)
	sum := fnv1a(buf[0:64])
	binary.LittleEndian.PutUint32(buf[64:68], sum)
	return buf
}

// DecodeHeader parses a 512-byte header, validating the magic bytes and
// checksum. Both failures return a CacheError of KindCorruption.
func DecodeHeader(buf []byte) (PersistentHeader, error) {
	if len(buf) != headerSize {
		return PersistentHeader{}, newErr("DecodeHeader", KindCorruption, errf("header is %d bytes, want %d", len(buf), headerSize))
	}
	if string(buf[0:16]) != headerMagic {
		return PersistentHeader{}, newErr("DecodeHeader", KindCorruption, errf("bad magic bytes"))
	}
	wantSum := binary.LittleEndian.Uint32(buf[64:68])
	check := make([]byte, 68)
	copy(check, buf[0:68])
	binary.LittleEndian.PutUint32(check[64:68], 0)
	gotSum := fnv1a(check[0:64])
	if gotSum != wantSum {
		return PersistentHeader{}, newErr("DecodeHeader", KindCorruption, errf("header checksum mismatch: got %x want %x", gotSum, wantSum))
	}
	h := PersistentHeader{
		Version:        binary.LittleEndian.Uint32(buf[16:20]),
		CreatedTime:    time.Unix(int64(binary.LittleEndian.Uint64(buf[20:28])), 0).UTC(),
		LastCheckpoint: time.Unix(int64(binary.LittleEndian.Uint64(buf[28:36])), 0).UTC(),
		NextPageID:     binary.LittleEndian.Uint64(buf[36:44]),
		TotalPages:     binary.LittleEndian.Uint64(buf[44:52]),
		WalSequence:    binary.LittleEndian.Uint64(buf[52:60]),
		TableCount:     binary.LittleEndian.Uint32(buf[60:64]),
	}
	return h, nil
}

// --- WalEntryType and WalEntry (§6.2) ---------------------------------------

// WalEntryType enumerates the kinds of operation a WAL record captures.
type WalEntryType uint32

const (
	WalInsert WalEntryType = iota + 1
	WalUpdate
	WalDelete
	WalCreateTable
	WalDropTable
	WalCreateIndex
	WalDropIndex
	WalCheckpoint
	WalCommit
	WalRollback
	WalAddForeignKey
)

// WalEntry is one record of the write-ahead log.
type WalEntry struct {
	Sequence      uint64
	Timestamp     time.Time
	Type          WalEntryType
	TransactionID uint32
	Table         string
	RowID         uint64
	Payload       []byte
}

// EncodeWalEntry renders e into its on-disk record: a 100-byte fixed
// header followed by len(e.Payload) payload bytes.
func EncodeWalEntry(e WalEntry) []byte {
	buf := make([]byte, walEntryHeader+len(e.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], e.Sequence)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Timestamp.Unix()))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(e.Type))
	binary.LittleEndian.PutUint32(buf[20:24], e.TransactionID)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(e.Payload)))
	putFixedString(buf, 28, tableNameField, e.Table)
	binary.LittleEndian.PutUint64(buf[92:100], e.RowID)
	copy(buf[100:], e.Payload)
	return buf
}

// DecodeWalEntry parses one record starting at buf[0]. It returns the
// entry and the total number of bytes consumed (header + payload), so
// callers can advance a read cursor through a log of back-to-back records.
func DecodeWalEntry(buf []byte) (WalEntry, int, error) {
	if len(buf) < walEntryHeader {
		return WalEntry{}, 0, newErr("DecodeWalEntry", KindCorruption, errf("truncated WAL entry header: have %d bytes", len(buf)))
	}
	payloadLen := int(binary.LittleEndian.Uint32(buf[24:28]))
	total := walEntryHeader + payloadLen
	if len(buf) < total {
		return WalEntry{}, 0, newErr("DecodeWalEntry", KindCorruption, errf("truncated WAL entry payload: have %d want %d", len(buf), total))
	}
	e := WalEntry{
		Sequence:      binary.LittleEndian.Uint64(buf[0:8]),
		Timestamp:     time.Unix(int64(binary.LittleEndian.Uint64(buf[8:16])), 0).UTC(),
		Type:          WalEntryType(binary.LittleEndian.Uint32(buf[16:20])),
		TransactionID: binary.LittleEndian.Uint32(buf[20:24]),
		Table:         getFixedString(buf, 28, tableNameField),
		RowID:         binary.LittleEndian.Uint64(buf[92:100]),
	}
	if payloadLen > 0 {
		e.Payload = append([]byte(nil), buf[100:total]...)
	}
	return e, total, nil
}

// --- Value encoding (§6.3) --------------------------------------------------

const (
	valueTypeInt     uint32 = 1
	valueTypeFloat   uint32 = 2
	valueTypeVarchar uint32 = 3
	valueTypeText    uint32 = 4
	valueTypeBool    uint32 = 5
)

// EncodeValue renders v per §6.3: a 4-byte type tag, a 1-byte null flag,
// then the type-specific payload (absent when null).
func EncodeValue(v Value) []byte {
	if v.Null || v.Type == TypeNull {
		buf := make([]byte, 5)
		binary.LittleEndian.PutUint32(buf[0:4], valueTypeVarchar)
		buf[4] = 1
		return buf
	}
	switch v.Type {
	case TypeInt64:
		buf := make([]byte, 13)
		binary.LittleEndian.PutUint32(buf[0:4], valueTypeInt)
		buf[4] = 0
		binary.LittleEndian.PutUint64(buf[5:13], uint64(v.Int))
		return buf
	case TypeFloat64:
		buf := make([]byte, 13)
		binary.LittleEndian.PutUint32(buf[0:4], valueTypeFloat)
		buf[4] = 0
		binary.LittleEndian.PutUint64(buf[5:13], uint64FromFloat(v.Flt))
		return buf
	case TypeBool:
		buf := make([]byte, 6)
		binary.LittleEndian.PutUint32(buf[0:4], valueTypeBool)
		buf[4] = 0
		if v.Bool {
			buf[5] = 1
		}
		return buf
	default: // TypeUtf8
		s := []byte(v.Str)
		buf := make([]byte, 5+len(s)+1)
		binary.LittleEndian.PutUint32(buf[0:4], valueTypeVarchar)
		buf[4] = 0
		copy(buf[5:5+len(s)], s)
		buf[5+len(s)] = 0
		return buf
	}
}

// DecodeValue parses a §6.3 record and returns the Value plus bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 5 {
		return Value{}, 0, newErr("DecodeValue", KindCorruption, errf("truncated value header"))
	}
	typ := binary.LittleEndian.Uint32(buf[0:4])
	isNull := buf[4] != 0
	if isNull {
		return NullValue(), 5, nil
	}
	switch typ {
	case valueTypeInt:
		if len(buf) < 13 {
			return Value{}, 0, newErr("DecodeValue", KindCorruption, errf("truncated int value"))
		}
		return IntValue(int64(binary.LittleEndian.Uint64(buf[5:13]))), 13, nil
	case valueTypeFloat:
		if len(buf) < 13 {
			return Value{}, 0, newErr("DecodeValue", KindCorruption, errf("truncated float value"))
		}
		return FloatValue(floatFromUint64(binary.LittleEndian.Uint64(buf[5:13]))), 13, nil
	case valueTypeBool:
		if len(buf) < 6 {
			return Value{}, 0, newErr("DecodeValue", KindCorruption, errf("truncated bool value"))
		}
		return BoolValue(buf[5] != 0), 6, nil
	case valueTypeVarchar, valueTypeText:
		end := 5
		for end < len(buf) && buf[end] != 0 {
			end++
		}
		if end >= len(buf) {
			return Value{}, 0, newErr("DecodeValue", KindCorruption, errf("unterminated string value"))
		}
		return StringValue(string(buf[5:end])), end + 1, nil
	default:
		return Value{}, 0, newErr("DecodeValue", KindCorruption, errf("unknown value type tag %d", typ))
	}
}

func uint64FromFloat(f float64) uint64 { return math.Float64bits(f) }
func floatFromUint64(u uint64) float64 { return math.Float64frombits(u) }

// --- Row encoding (§6.4) -----------------------------------------------------

// Row is one table row: a stable identifier plus its ordered column values.
type Row struct {
	RowID  uint64
	Values []Value
}

// EncodeRow renders r per §6.4: row_id, value_count, then each value
// prefixed by its own 8-byte encoded length.
func EncodeRow(r Row) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], r.RowID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(r.Values)))
	for _, v := range r.Values {
		enc := EncodeValue(v)
		lenPrefix := make([]byte, 8)
		binary.LittleEndian.PutUint64(lenPrefix, uint64(len(enc)))
		buf = append(buf, lenPrefix...)
		buf = append(buf, enc...)
	}
	return buf
}

// DecodeRow parses a §6.4 record and returns the Row plus bytes consumed.
func DecodeRow(buf []byte) (Row, int, error) {
	if len(buf) < 16 {
		return Row{}, 0, newErr("DecodeRow", KindCorruption, errf("truncated row header"))
	}
	rowID := binary.LittleEndian.Uint64(buf[0:8])
	count := binary.LittleEndian.Uint64(buf[8:16])
	off := 16
	values := make([]Value, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(buf) < off+8 {
			return Row{}, 0, newErr("DecodeRow", KindCorruption, errf("truncated value length prefix"))
		}
		vlen := int(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
		if len(buf) < off+vlen {
			return Row{}, 0, newErr("DecodeRow", KindCorruption, errf("truncated value payload"))
		}
		v, _, err := DecodeValue(buf[off : off+vlen])
		if err != nil {
			return Row{}, 0, err
		}
		values = append(values, v)
		off += vlen
	}
	return Row{RowID: rowID, Values: values}, off, nil
}

// --- Table / ColumnDef encoding (§6.5) --------------------------------------

// ColumnFlag is a bitmask of column attributes.
type ColumnFlag uint32

const (
	ColPrimary ColumnFlag = 1 << iota
	ColUnique
	ColNullable
	ColForeign
)

// ColumnDef describes one table column.
type ColumnDef struct {
	Name          string
	Type          uint32
	MaxLength     uint32
	Flags         ColumnFlag
	Default       string
	ForeignTable  string
	ForeignColumn string
}

// EncodeColumnDef renders c into its fixed-width record. Per DESIGN.md's
// resolution of the spec's own internal inconsistency (it lists fields
// that sum to more bytes than the "192" it separately states), the field
// list is taken as normative and the true fixed width (columnDefSize) is
// used consistently by both encode and decode.
func EncodeColumnDef(c ColumnDef) []byte {
	buf := make([]byte, columnDefSize)
	putFixedString(buf, 0, 64, c.Name)
	binary.LittleEndian.PutUint32(buf[64:68], c.Type)
	binary.LittleEndian.PutUint32(buf[68:72], c.MaxLength)
	binary.LittleEndian.PutUint32(buf[72:76], uint32(c.Flags))
	putFixedString(buf, 76, 64, c.Default)
	putFixedString(buf, 140, 64, c.ForeignTable)
	putFixedString(buf, 204, 64, c.ForeignColumn)
	return buf
}

// DecodeColumnDef parses one fixed-width ColumnDef record.
func DecodeColumnDef(buf []byte) (ColumnDef, error) {
	if len(buf) < columnDefSize {
		return ColumnDef{}, newErr("DecodeColumnDef", KindCorruption, errf("truncated column def"))
	}
	return ColumnDef{
		Name:          getFixedString(buf, 0, 64),
		Type:          binary.LittleEndian.Uint32(buf[64:68]),
		MaxLength:     binary.LittleEndian.Uint32(buf[68:72]),
		Flags:         ColumnFlag(binary.LittleEndian.Uint32(buf[72:76])),
		Default:       getFixedString(buf, 76, 64),
		ForeignTable:  getFixedString(buf, 140, 64),
		ForeignColumn: getFixedString(buf, 204, 64),
	}, nil
}

// Table is one table's schema and resident rows, as stored whole in
// table_<name>.rdb.
type Table struct {
	Name         string
	Columns      []ColumnDef
	Rows         []Row
	PrimaryKey   string
	NextRowID    uint64
}

// EncodeTable renders t per §6.5.
func EncodeTable(t Table) []byte {
	buf := make([]byte, tableNameField)
	putFixedString(buf, 0, tableNameField, t.Name)

	colCount := make([]byte, 8)
	binary.LittleEndian.PutUint64(colCount, uint64(len(t.Columns)))
	buf = append(buf, colCount...)
	for _, c := range t.Columns {
		buf = append(buf, EncodeColumnDef(c)...)
	}

	rowCount := make([]byte, 8)
	binary.LittleEndian.PutUint64(rowCount, uint64(len(t.Rows)))
	buf = append(buf, rowCount...)
	for _, r := range t.Rows {
		enc := EncodeRow(r)
		lenPrefix := make([]byte, 8)
		binary.LittleEndian.PutUint64(lenPrefix, uint64(len(enc)))
		buf = append(buf, lenPrefix...)
		buf = append(buf, enc...)
	}

	pk := make([]byte, tableNameField)
	putFixedString(pk, 0, tableNameField, t.PrimaryKey)
	buf = append(buf, pk...)

	nextID := make([]byte, 8)
	binary.LittleEndian.PutUint64(nextID, t.NextRowID)
	buf = append(buf, nextID...)

	return buf
}

// DecodeTable parses a §6.5 table file image.
func DecodeTable(buf []byte) (Table, error) {
	if len(buf) < tableNameField+8 {
		return Table{}, newErr("DecodeTable", KindCorruption, errf("truncated table header"))
	}
	t := Table{Name: getFixedString(buf, 0, tableNameField)}
	off := tableNameField
	colCount := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	t.Columns = make([]ColumnDef, 0, colCount)
	for i := uint64(0); i < colCount; i++ {
		if len(buf) < off+columnDefSize {
			return Table{}, newErr("DecodeTable", KindCorruption, errf("truncated column %d", i))
		}
		c, err := DecodeColumnDef(buf[off : off+columnDefSize])
		if err != nil {
			return Table{}, err
		}
		t.Columns = append(t.Columns, c)
		off += columnDefSize
	}

	if len(buf) < off+8 {
		return Table{}, newErr("DecodeTable", KindCorruption, errf("truncated row count"))
	}
	rowCount := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	t.Rows = make([]Row, 0, rowCount)
	for i := uint64(0); i < rowCount; i++ {
		if len(buf) < off+8 {
			return Table{}, newErr("DecodeTable", KindCorruption, errf("truncated row length prefix %d", i))
		}
		rlen := int(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
		if len(buf) < off+rlen {
			return Table{}, newErr("DecodeTable", KindCorruption, errf("truncated row payload %d", i))
		}
		r, _, err := DecodeRow(buf[off : off+rlen])
		if err != nil {
			return Table{}, err
		}
		t.Rows = append(t.Rows, r)
		off += rlen
	}

	if len(buf) < off+tableNameField+8 {
		return Table{}, newErr("DecodeTable", KindCorruption, errf("truncated table trailer"))
	}
	t.PrimaryKey = getFixedString(buf, off, tableNameField)
	off += tableNameField
	t.NextRowID = binary.LittleEndian.Uint64(buf[off : off+8])

	return t, nil
}

// --- ForeignKey encoding -----------------------------------------------------

// OnDeleteAction selects what a foreign key constraint does when its
// referenced row is removed. CachedStore enforces only point-lookup
// validation (spec.md's Non-goals exclude cascade execution); the action
// is recorded and surfaced for an external collaborator to enforce.
type OnDeleteAction uint32

const (
	NoAction OnDeleteAction = iota
	Cascade
	SetNull
)

// ForeignKey is one constraint: Column in Table must match ReferencesColumn
// in ReferencesTable.
type ForeignKey struct {
	Name               string
	Table              string
	Column             string
	ReferencesTable    string
	ReferencesColumn   string
	OnDelete           OnDeleteAction
}

// EncodeForeignKey renders fk into its fixed-width record.
func EncodeForeignKey(fk ForeignKey) []byte {
	buf := make([]byte, foreignKeySize)
	putFixedString(buf, 0, 64, fk.Name)
	putFixedString(buf, 64, 64, fk.Table)
	putFixedString(buf, 128, 64, fk.Column)
	putFixedString(buf, 192, 64, fk.ReferencesTable)
	putFixedString(buf, 256, 64, fk.ReferencesColumn)
	binary.LittleEndian.PutUint32(buf[320:324], uint32(fk.OnDelete))
	return buf
}

// DecodeForeignKey parses one fixed-width ForeignKey record.
func DecodeForeignKey(buf []byte) (ForeignKey, error) {
	if len(buf) < foreignKeySize {
		return ForeignKey{}, newErr("DecodeForeignKey", KindCorruption, errf("truncated foreign key record"))
	}
	return ForeignKey{
		Name:             getFixedString(buf, 0, 64),
		Table:            getFixedString(buf, 64, 64),
		Column:           getFixedString(buf, 128, 64),
		ReferencesTable:  getFixedString(buf, 192, 64),
		ReferencesColumn: getFixedString(buf, 256, 64),
		OnDelete:         OnDeleteAction(binary.LittleEndian.Uint32(buf[320:324])),
	}, nil
}

// DecodeForeignKeys parses a concatenated foreign_keys.rdb image.
func DecodeForeignKeys(buf []byte) ([]ForeignKey, error) {
	var out []ForeignKey
	for off := 0; off+foreignKeySize <= len(buf); off += foreignKeySize {
		fk, err := DecodeForeignKey(buf[off : off+foreignKeySize])
		if err != nil {
			return nil, err
		}
		out = append(out, fk)
	}
	return out, nil
}
