// key.go: Key and Value types for the tierdb cache engine
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"fmt"
	"hash/fnv"
)

// KeyTag discriminates the four cacheable entities.
type KeyTag uint8

const (
	KeyTable KeyTag = iota + 1
	KeyRow
	KeyIndex
	KeyQuery
)

func (t KeyTag) String() string {
	switch t {
	case KeyTable:
		return "table"
	case KeyRow:
		return "row"
	case KeyIndex:
		return "index"
	case KeyQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Key is an immutable, structurally-equal, tagged identifier. Two Keys are
// equal iff their tag and fields are equal byte-for-byte. Hash is stable
// across process restarts for the same fields (FNV-1a over the tagged byte
// encoding), which is why it must never be computed with a randomly seeded
// hash such as maphash.
type Key struct {
	Tag   KeyTag
	Table string
	Row   uint64
	Name  string // index name, when Tag == KeyIndex
	Query uint64 // query hash, when Tag == KeyQuery
}

// TableKey builds a Key(Table).
func TableKey(table string) Key { return Key{Tag: KeyTable, Table: table} }

// RowKey builds a Key(Row(table, rowID)).
func RowKey(table string, rowID uint64) Key { return Key{Tag: KeyRow, Table: table, Row: rowID} }

// IndexKey builds a Key(Index(table, name)).
func IndexKey(table, name string) Key { return Key{Tag: KeyIndex, Table: table, Name: name} }

// QueryKey builds a Key(Query(hash)).
func QueryKey(hash uint64) Key { return Key{Tag: KeyQuery, Query: hash} }

// bytes renders a Key into the byte sequence its hash and on-disk identity
// are computed from.
func (k Key) bytes() []byte {
	buf := make([]byte, 0, 1+len(k.Table)+len(k.Name)+16)
	buf = append(buf, byte(k.Tag))
	buf = append(buf, k.Table...)
	buf = append(buf, 0)
	switch k.Tag {
	case KeyRow:
		buf = appendUint64(buf, k.Row)
	case KeyIndex:
		buf = append(buf, k.Name...)
	case KeyQuery:
		buf = appendUint64(buf, k.Query)
	}
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(buf, tmp[:]...)
}

// Hash returns the FNV-1a hash of the key's byte encoding. Stable across
// process restarts for identical field values. CachedStore's query cache
// keys on the caller-supplied query hash, not on this value.
func (k Key) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write(k.bytes())
	return h.Sum64()
}

// Len returns the encoded byte length used for per-entry capacity accounting.
func (k Key) Len() int { return len(k.bytes()) }

func (k Key) String() string {
	switch k.Tag {
	case KeyTable:
		return fmt.Sprintf("table(%s)", k.Table)
	case KeyRow:
		return fmt.Sprintf("row(%s,%d)", k.Table, k.Row)
	case KeyIndex:
		return fmt.Sprintf("index(%s,%s)", k.Table, k.Name)
	case KeyQuery:
		return fmt.Sprintf("query(%d)", k.Query)
	default:
		return "key(?)"
	}
}

// ValueType discriminates the typed variants a Value may hold.
type ValueType uint32

const (
	TypeInt64 ValueType = iota + 1
	TypeFloat64
	TypeUtf8
	TypeBool
	TypeNull
)

// Value is an immutable, typed, opaque byte payload. Once published into a
// cache entry it is never mutated in place; puts always allocate fresh bytes.
type Value struct {
	Type ValueType
	Int  int64
	Flt  float64
	Str  string
	Bool bool
	Null bool
}

// IntValue builds an Int64 Value.
func IntValue(v int64) Value { return Value{Type: TypeInt64, Int: v} }

// FloatValue builds a Float64 Value.
func FloatValue(v float64) Value { return Value{Type: TypeFloat64, Flt: v} }

// StringValue builds a Utf8 Value.
func StringValue(v string) Value { return Value{Type: TypeUtf8, Str: v} }

// BoolValue builds a Bool Value.
func BoolValue(v bool) Value { return Value{Type: TypeBool, Bool: v} }

// NullValue builds a Null Value.
func NullValue() Value { return Value{Type: TypeNull, Null: true} }

// Len returns an estimate of the value's encoded byte length, used for
// per-entry and per-level capacity accounting.
func (v Value) Len() int {
	switch v.Type {
	case TypeInt64:
		return 8
	case TypeFloat64:
		return 8
	case TypeUtf8:
		return len(v.Str)
	case TypeBool:
		return 1
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.Type {
	case TypeInt64:
		return fmt.Sprintf("%d", v.Int)
	case TypeFloat64:
		return fmt.Sprintf("%g", v.Flt)
	case TypeUtf8:
		return v.Str
	case TypeBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return "null"
	}
}
