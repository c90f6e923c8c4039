// store.go: CachedStore — the Database/CacheEngine/PersistenceEngine façade
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"sync"
	"sync/atomic"
	"time"
)

// CachedStore composes a Database, a CacheEngine, and a PersistenceEngine
// into the single entry point spec.md §4.5 describes: every mutation is
// written to the database, appended to the WAL, and reflected in the cache
// before it returns.
type CachedStore struct {
	db      *Database
	engine  *CacheEngine
	persist *PersistenceEngine
	logger  Logger

	queryTTL time.Duration

	queriesMu sync.Mutex
	queries   map[Key]time.Time

	tableKeysMu sync.Mutex
	tableKeys   map[string]map[Key]struct{}

	closed int32 // atomic; set once by Close

	tuneStop chan struct{}
	tuneDone chan struct{}
}

// errIfClosed reports ErrShutdown once Close has run, per spec.md §7: a
// store that has begun shutting down rejects further mutation rather than
// racing its own persistence teardown.
func (s *CachedStore) errIfClosed(op string) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return newErr(op, KindShutdown, errf("store is closed"))
	}
	return nil
}

// NewCachedStore opens persistence (replaying the WAL onto a fresh Database
// if the configured mode carries one), builds the cache tier, and starts the
// auto-tune loop if the engine config enables it.
func NewCachedStore(cfg StoreConfig) (*CachedStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}

	db := NewDatabase()
	persist, err := NewPersistenceEngine(cfg)
	if err != nil {
		return nil, err
	}
	if err := persist.Open(db); err != nil {
		return nil, err
	}

	engine, err := NewCacheEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}

	s := &CachedStore{
		db:       db,
		engine:   engine,
		persist:  persist,
		logger:   logger,
		queryTTL:  cfg.Engine.TuneInterval,
		queries:   make(map[Key]time.Time),
		tableKeys: make(map[string]map[Key]struct{}),
	}

	if cfg.Engine.AutoTuneEnabled && cfg.Engine.TuneInterval > 0 {
		s.startAutoTune(cfg.Engine.TuneInterval)
	}
	return s, nil
}

// CreateTable registers t, appends a CreateTable WAL record, and invalidates
// any stale cache entry for its Table key.
func (s *CachedStore) CreateTable(t Table) error {
	if err := s.errIfClosed("CachedStore.CreateTable"); err != nil {
		return err
	}
	s.db.CreateTable(t)
	if _, err := s.persist.Append(WalEntry{Type: WalCreateTable, Table: t.Name, Payload: EncodeTable(t)}); err != nil {
		return err
	}
	s.engine.Remove(TableKey(t.Name))
	s.invalidateQueries()
	return nil
}

// DropTable removes table, appends a DropTable WAL record, and invalidates
// its Table key, every Row/Index key under it, and every cached query —
// per spec.md §4.5's drop_table invalidation rule.
func (s *CachedStore) DropTable(name string) error {
	if err := s.errIfClosed("CachedStore.DropTable"); err != nil {
		return err
	}
	if !s.db.DropTable(name) {
		return newErr("CachedStore.DropTable", KindNotFound, errf("table %q does not exist", name))
	}
	if _, err := s.persist.Append(WalEntry{Type: WalDropTable, Table: name}); err != nil {
		return err
	}
	s.engine.Remove(TableKey(name))

	s.tableKeysMu.Lock()
	keys := s.tableKeys[name]
	delete(s.tableKeys, name)
	s.tableKeysMu.Unlock()
	for k := range keys {
		s.engine.Remove(k)
	}

	s.invalidateQueries()
	return nil
}

// trackTableKey records that k (a Row or Index key) was cached on behalf of
// table, so DropTable can find and evict it later even though CacheEngine
// itself exposes no prefix-based removal.
func (s *CachedStore) trackTableKey(table string, k Key) {
	s.tableKeysMu.Lock()
	defer s.tableKeysMu.Unlock()
	set, ok := s.tableKeys[table]
	if !ok {
		set = make(map[Key]struct{})
		s.tableKeys[table] = set
	}
	set[k] = struct{}{}
}

// untrackTableKey drops k from table's tracked set, called wherever
// CachedStore itself removes a Row/Index key ahead of any DropTable.
func (s *CachedStore) untrackTableKey(table string, k Key) {
	s.tableKeysMu.Lock()
	defer s.tableKeysMu.Unlock()
	if set, ok := s.tableKeys[table]; ok {
		delete(set, k)
	}
}

// InsertRow pins the table's key for the duration of the write (so a
// concurrent eviction cannot drop schema state mid-mutation), inserts the
// row, appends an Insert WAL record, and invalidates every cached query.
func (s *CachedStore) InsertRow(table string, row Row) (Row, error) {
	if err := s.errIfClosed("CachedStore.InsertRow"); err != nil {
		return Row{}, err
	}
	tk := TableKey(table)
	s.engine.PinKey(tk)
	defer s.engine.UnpinKey(tk)

	inserted, err := s.db.InsertRow(table, row)
	if err != nil {
		return Row{}, err
	}
	if _, err := s.persist.Append(WalEntry{Type: WalInsert, Table: table, RowID: inserted.RowID, Payload: EncodeRow(inserted)}); err != nil {
		return Row{}, err
	}
	s.invalidateQueries()
	return inserted, nil
}

// UpdateRow replaces rowID's row, pinning its Row key across the mutation,
// appending an Update WAL record, and invalidating the row's cache entry
// plus every cached query.
func (s *CachedStore) UpdateRow(table string, rowID uint64, row Row) error {
	if err := s.errIfClosed("CachedStore.UpdateRow"); err != nil {
		return err
	}
	rk := RowKey(table, rowID)
	s.engine.PinKey(rk)
	defer s.engine.UnpinKey(rk)

	if err := s.db.UpdateRow(table, rowID, row); err != nil {
		return err
	}
	row.RowID = rowID
	if _, err := s.persist.Append(WalEntry{Type: WalUpdate, Table: table, RowID: rowID, Payload: EncodeRow(row)}); err != nil {
		return err
	}
	s.engine.Remove(rk)
	s.untrackTableKey(table, rk)
	s.invalidateQueries()
	return nil
}

// DeleteRow removes rowID's row, appends a Delete WAL record, and
// invalidates the row's cache entry plus every cached query.
func (s *CachedStore) DeleteRow(table string, rowID uint64) error {
	if err := s.errIfClosed("CachedStore.DeleteRow"); err != nil {
		return err
	}
	rk := RowKey(table, rowID)
	s.engine.PinKey(rk)
	defer s.engine.UnpinKey(rk)

	if !s.db.DeleteRow(table, rowID) {
		return newErr("CachedStore.DeleteRow", KindNotFound, errf("row %d not found in table %q", rowID, table))
	}
	if _, err := s.persist.Append(WalEntry{Type: WalDelete, Table: table, RowID: rowID}); err != nil {
		return err
	}
	s.engine.Remove(rk)
	s.untrackTableKey(table, rk)
	s.invalidateQueries()
	return nil
}

// GetRow returns one row by id, serving from the cache when resident and
// populating it on a miss.
func (s *CachedStore) GetRow(table string, rowID uint64) (Row, bool, error) {
	if err := s.errIfClosed("CachedStore.GetRow"); err != nil {
		return Row{}, false, err
	}
	rk := RowKey(table, rowID)
	if cached, ok := s.engine.Get(rk); ok {
		row, _, err := DecodeRow(cached)
		if err != nil {
			return Row{}, false, err
		}
		return row, true, nil
	}
	rows, err := s.db.SelectRows(table, func(r Row) bool { return r.RowID == rowID })
	if err != nil {
		return Row{}, false, err
	}
	if len(rows) == 0 {
		return Row{}, false, nil
	}
	row := rows[0]
	_ = s.engine.Put(rk, EncodeRow(row), false)
	s.trackTableKey(table, rk)
	return row, true, nil
}

// SelectRows runs where against table's resident rows, caching the result
// under QueryKey(queryHash) for queryTTL; a cached result older than that
// is recomputed. Passing a non-zero queryHash lets the caller opt into
// caching for a specific, stable predicate; omit it (0) to bypass the
// query cache.
func (s *CachedStore) SelectRows(table string, queryHash uint64, where func(Row) bool) ([]Row, error) {
	if err := s.errIfClosed("CachedStore.SelectRows"); err != nil {
		return nil, err
	}
	if queryHash != 0 {
		qk := QueryKey(queryHash)
		if cached, ok := s.engine.Get(qk); ok {
			s.queriesMu.Lock()
			expiry, tracked := s.queries[qk]
			s.queriesMu.Unlock()
			if tracked && time.Now().Before(expiry) {
				return decodeRows(cached)
			}
		}
	}

	rows, err := s.db.SelectRows(table, where)
	if err != nil {
		return nil, err
	}

	if queryHash != 0 {
		qk := QueryKey(queryHash)
		_ = s.engine.Put(qk, encodeRows(rows), false)
		s.queriesMu.Lock()
		s.queries[qk] = time.Now().Add(s.queryTTL)
		s.queriesMu.Unlock()
	}
	return rows, nil
}

func encodeRows(rows []Row) []byte {
	var buf []byte
	count := make([]byte, 8)
	putUint64(count, uint64(len(rows)))
	buf = append(buf, count...)
	for _, r := range rows {
		enc := EncodeRow(r)
		lenPrefix := make([]byte, 8)
		putUint64(lenPrefix, uint64(len(enc)))
		buf = append(buf, lenPrefix...)
		buf = append(buf, enc...)
	}
	return buf
}

func decodeRows(buf []byte) ([]Row, error) {
	if len(buf) < 8 {
		return nil, newErr("decodeRows", KindCorruption, errf("truncated query cache entry"))
	}
	count := getUint64(buf[0:8])
	off := 8
	rows := make([]Row, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(buf) < off+8 {
			return nil, newErr("decodeRows", KindCorruption, errf("truncated row length prefix"))
		}
		rlen := int(getUint64(buf[off : off+8]))
		off += 8
		if len(buf) < off+rlen {
			return nil, newErr("decodeRows", KindCorruption, errf("truncated row payload"))
		}
		r, _, err := DecodeRow(buf[off : off+rlen])
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
		off += rlen
	}
	return rows, nil
}

func putUint64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func getUint64(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v
}

// invalidateQueries discards every query-cache key this store has issued —
// the "any write drops all Query(_) entries" rule of spec.md §4.5, since a
// cached query result cannot in general be proven unaffected by an arbitrary
// mutation elsewhere in the table.
func (s *CachedStore) invalidateQueries() {
	s.queriesMu.Lock()
	keys := make([]Key, 0, len(s.queries))
	for k := range s.queries {
		keys = append(keys, k)
	}
	s.queries = make(map[Key]time.Time)
	s.queriesMu.Unlock()
	for _, k := range keys {
		s.engine.Remove(k)
	}
}

// AddForeignKey registers fk against the underlying Database so future
// inserts and updates validate it, appends an AddForeignKey WAL record so
// the constraint survives a crash ahead of the next checkpoint, and
// invalidates cached queries since a newly enforced constraint can change
// which rows a previously cached predicate would now reject.
func (s *CachedStore) AddForeignKey(fk ForeignKey) error {
	if err := s.errIfClosed("CachedStore.AddForeignKey"); err != nil {
		return err
	}
	s.db.AddForeignKey(fk)
	if _, err := s.persist.Append(WalEntry{Type: WalAddForeignKey, Table: fk.Table, Payload: EncodeForeignKey(fk)}); err != nil {
		return err
	}
	s.invalidateQueries()
	return nil
}

// Checkpoint forces a persistence checkpoint: save every table and foreign
// key, then truncate the WAL.
func (s *CachedStore) Checkpoint() error {
	if err := s.errIfClosed("CachedStore.Checkpoint"); err != nil {
		return err
	}
	return s.persist.Checkpoint(s.db)
}

// Stats returns the cache engine's current counters.
func (s *CachedStore) Stats() EngineStats {
	return s.engine.Stats()
}

// Close stops the auto-tune loop, marks the store closed (rejecting any
// further mutation or lookup with KindShutdown), and closes persistence,
// saving and checkpointing per the configured mode. Calling Close more than
// once is safe; only the first call touches persistence.
func (s *CachedStore) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.stopAutoTune()
	err := s.persist.Close(s.db)
	s.db.Close()
	return err
}
