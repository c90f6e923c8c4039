// persistence.go: crash-recoverable persistence for a Database
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	dataFileName   = "database.rdb"
	walFileName    = "wal.log"
	fkFileName     = "foreign_keys.rdb"
	tableFilePfx   = "table_"
	tableFileSfx   = ".rdb"
	defaultMaxWAL  = 16 << 20
)

// PersistenceEngine owns the data directory, header, WAL, and page cache
// for one Database, per spec.md §4.4.
type PersistenceEngine struct {
	mu sync.Mutex // guards save/open/load and the header

	dataDir    string
	mode       PersistenceMode
	header     PersistentHeader
	dataFile   *os.File
	wal        *walFile
	pageCache  *PageCache
	logger     Logger

	checkpointMu       sync.Mutex
	checkpointInFlight int32

	nextPageID uint64
}

// NewPersistenceEngine opens (creating if absent) the persistence layer
// described by cfg.
func NewPersistenceEngine(cfg StoreConfig) (*PersistenceEngine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	pe := &PersistenceEngine{
		dataDir: cfg.DataDir,
		mode:    cfg.Mode,
		logger:  logger,
	}
	if cfg.Mode == MemoryOnly {
		return pe, nil
	}
	if err := pe.init(cfg.PageCacheEntries); err != nil {
		return nil, err
	}
	return pe, nil
}

func (pe *PersistenceEngine) init(pageCacheEntries int) error {
	if err := os.MkdirAll(pe.dataDir, 0700); err != nil {
		return newErr("PersistenceEngine.init", KindIO, err)
	}

	dataPath := filepath.Join(pe.dataDir, dataFileName)
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return newErr("PersistenceEngine.init", KindIO, err)
	}
	pe.dataFile = f

	info, err := f.Stat()
	if err != nil {
		return newErr("PersistenceEngine.init", KindIO, err)
	}
	if info.Size() == 0 {
		pe.header = PersistentHeader{
			Version:     headerVersion,
			CreatedTime: time.Now(),
			NextPageID:  1,
		}
		if _, err := f.WriteAt(EncodeHeader(pe.header), 0); err != nil {
			return newErr("PersistenceEngine.init", KindIO, err)
		}
	} else {
		buf := make([]byte, headerSize)
		if _, err := f.ReadAt(buf, 0); err != nil {
			return newErr("PersistenceEngine.init", KindIO, err)
		}
		h, err := DecodeHeader(buf)
		if err != nil {
			return err
		}
		pe.header = h
	}
	pe.nextPageID = pe.header.NextPageID
	if pe.nextPageID == 0 {
		pe.nextPageID = 1
	}

	if pageCacheEntries <= 0 {
		pageCacheEntries = 4096
	}
	pc, err := NewPageCache(pageCacheEntries, pe)
	if err != nil {
		return err
	}
	pe.pageCache = pc

	if pe.mode == WalOnly || pe.mode == Full {
		w, err := openWALFile(filepath.Join(pe.dataDir, walFileName), defaultMaxWAL)
		if err != nil {
			return err
		}
		pe.wal = w
	}
	return nil
}

// readPage satisfies pageSource: pages live after the fixed header, each
// 32+pageSize bytes (encodePage's on-disk image).
func (pe *PersistenceEngine) readPage(id uint64) (*Page, error) {
	off := int64(headerSize) + int64(id-1)*int64(32+pageSize)
	buf := make([]byte, 32+pageSize)
	if _, err := pe.dataFile.ReadAt(buf, off); err != nil {
		return nil, newErr("PersistenceEngine.readPage", KindIO, err)
	}
	return decodePage(buf)
}

// AllocatePage reserves the next page id and returns a zeroed Page for it.
func (pe *PersistenceEngine) AllocatePage() *Page {
	id := atomic.AddUint64(&pe.nextPageID, 1) - 1
	return &Page{ID: id, Version: 1, LastModified: time.Now()}
}

// WritePage persists p through the page cache and to its slot in
// database.rdb.
func (pe *PersistenceEngine) WritePage(p *Page) error {
	off := int64(headerSize) + int64(p.ID-1)*int64(32+pageSize)
	p.LastModified = time.Now()
	if _, err := pe.dataFile.WriteAt(encodePage(p), off); err != nil {
		return newErr("PersistenceEngine.WritePage", KindIO, err)
	}
	pe.pageCache.Put(p)
	return nil
}

// ReadPage returns a page through the cache, reading through to disk on miss.
func (pe *PersistenceEngine) ReadPage(id uint64) (*Page, error) {
	return pe.pageCache.Get(id)
}

// Open loads header, tables, foreign keys, and (if the mode carries a WAL)
// replays it into db, per spec.md §4.4.
func (pe *PersistenceEngine) Open(db *Database) error {
	if pe.mode == MemoryOnly {
		return nil
	}
	pe.mu.Lock()
	defer pe.mu.Unlock()

	entries, err := os.ReadDir(pe.dataDir)
	if err != nil {
		return newErr("PersistenceEngine.Open", KindIO, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), tableFilePfx) && strings.HasSuffix(e.Name(), tableFileSfx) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		buf, err := os.ReadFile(filepath.Join(pe.dataDir, name))
		if err != nil {
			return newErr("PersistenceEngine.Open", KindIO, err)
		}
		t, err := DecodeTable(buf)
		if err != nil {
			return err
		}
		db.CreateTable(t)
	}

	fkPath := filepath.Join(pe.dataDir, fkFileName)
	if buf, err := os.ReadFile(fkPath); err == nil {
		fks, err := DecodeForeignKeys(buf)
		if err != nil {
			return err
		}
		for _, fk := range fks {
			db.AddForeignKey(fk)
		}
	}

	if pe.wal == nil {
		return nil
	}
	return pe.wal.replay(func(e WalEntry) error {
		return pe.applyWalEntry(db, e)
	})
}

// applyWalEntry replays one record per the idempotent rules of spec.md §4.4.
func (pe *PersistenceEngine) applyWalEntry(db *Database, e WalEntry) error {
	switch e.Type {
	case WalInsert:
		row, _, err := DecodeRow(e.Payload)
		if err != nil {
			pe.logger.Warn("wal replay: skipping corrupt insert", "table", e.Table, "row_id", e.RowID)
			return nil
		}
		if _, ok := db.Table(e.Table); ok {
			_, _ = db.InsertRow(e.Table, row)
		}
	case WalUpdate:
		row, _, err := DecodeRow(e.Payload)
		if err != nil {
			return nil
		}
		db.UpdateRow(e.Table, e.RowID, row)
	case WalDelete:
		db.DeleteRow(e.Table, e.RowID)
	case WalCreateTable:
		t, err := DecodeTable(e.Payload)
		if err != nil {
			return nil
		}
		db.CreateTable(t)
	case WalDropTable:
		db.DropTable(e.Table)
	case WalAddForeignKey:
		fk, err := DecodeForeignKey(e.Payload)
		if err != nil {
			pe.logger.Warn("wal replay: skipping corrupt foreign key", "table", e.Table)
			return nil
		}
		db.AddForeignKey(fk)
	case WalCheckpoint, WalCommit, WalRollback, WalCreateIndex, WalDropIndex:
		// No database-visible effect to replay.
	}
	return nil
}

// Append writes entry to the WAL and returns its assigned sequence number.
// A no-op (sequence 0) when the configured mode carries no WAL.
func (pe *PersistenceEngine) Append(entry WalEntry) (uint64, error) {
	if pe.wal == nil {
		return 0, nil
	}
	return pe.wal.append(entry)
}

// Save rewrites the header and every table/foreign-key file, per spec.md
// §4.4: header last, so a crash mid-save never points the header at
// partially written tables.
func (pe *PersistenceEngine) Save(db *Database) error {
	if pe.mode == MemoryOnly {
		return nil
	}
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.saveLocked(db)
}

func (pe *PersistenceEngine) saveLocked(db *Database) error {
	names := db.TableNames()
	sort.Strings(names)
	for _, name := range names {
		t, ok := db.Table(name)
		if !ok {
			continue
		}
		path := filepath.Join(pe.dataDir, tableFilePfx+name+tableFileSfx)
		if err := os.WriteFile(path, EncodeTable(*t), 0600); err != nil {
			return newErr("PersistenceEngine.Save", KindIO, err)
		}
	}

	var fkBuf []byte
	for _, fk := range db.ForeignKeys() {
		fkBuf = append(fkBuf, EncodeForeignKey(fk)...)
	}
	if err := os.WriteFile(filepath.Join(pe.dataDir, fkFileName), fkBuf, 0600); err != nil {
		return newErr("PersistenceEngine.Save", KindIO, err)
	}

	pe.header.TableCount = uint32(len(names))
	pe.header.NextPageID = atomic.LoadUint64(&pe.nextPageID)
	if pe.wal != nil {
		pe.header.WalSequence = pe.wal.currentSequence()
	}
	if _, err := pe.dataFile.WriteAt(EncodeHeader(pe.header), 0); err != nil {
		return newErr("PersistenceEngine.Save", KindIO, err)
	}
	if err := pe.dataFile.Sync(); err != nil {
		return newErr("PersistenceEngine.Save", KindIO, err)
	}
	return nil
}

// Checkpoint saves db then truncates the WAL, rejecting concurrent
// checkpoints with KindBusy rather than blocking.
func (pe *PersistenceEngine) Checkpoint(db *Database) error {
	if pe.mode == MemoryOnly {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&pe.checkpointInFlight, 0, 1) {
		return newErr("PersistenceEngine.Checkpoint", KindBusy, errf("checkpoint already in progress"))
	}
	defer atomic.StoreInt32(&pe.checkpointInFlight, 0)

	pe.checkpointMu.Lock()
	defer pe.checkpointMu.Unlock()

	pe.mu.Lock()
	if err := pe.saveLocked(db); err != nil {
		pe.mu.Unlock()
		return err
	}
	pe.header.LastCheckpoint = time.Now()
	_, err := pe.dataFile.WriteAt(EncodeHeader(pe.header), 0)
	pe.mu.Unlock()
	if err != nil {
		return newErr("PersistenceEngine.Checkpoint", KindIO, err)
	}

	if pe.wal != nil {
		if err := pe.wal.truncate(); err != nil {
			return err
		}
	}
	return nil
}

// Close saves, and for modes that checkpoint, checkpoints, before releasing
// file handles.
func (pe *PersistenceEngine) Close(db *Database) error {
	if pe.mode == MemoryOnly {
		return nil
	}
	if err := pe.Save(db); err != nil {
		return err
	}
	if pe.mode == CheckpointOnly || pe.mode == Full {
		if err := pe.Checkpoint(db); err != nil {
			return err
		}
	}
	if pe.pageCache != nil {
		pe.pageCache.Close()
	}
	if pe.wal != nil {
		if err := pe.wal.close(); err != nil {
			return err
		}
	}
	if pe.dataFile != nil {
		if err := pe.dataFile.Close(); err != nil {
			return newErr("PersistenceEngine.Close", KindIO, err)
		}
	}
	return nil
}

// TableReport summarizes one table for InspectDataDir.
type TableReport struct {
	Name     string
	RowCount int
}

// DataDirReport is the structured result InspectDataDir and tierdb-debug
// inspect render.
type DataDirReport struct {
	HeaderPresent  bool
	HeaderVersion  uint32
	Tables         []TableReport
	WALPresent     bool
	WALEntryCount  int
	LastCheckpoint time.Time
}

// InspectDataDir reads a data directory's header, table files, and WAL
// without constructing a full PersistenceEngine — used by tierdb-debug.
func InspectDataDir(dir string) (DataDirReport, error) {
	var report DataDirReport

	dataPath := filepath.Join(dir, dataFileName)
	if buf, err := os.ReadFile(dataPath); err == nil && len(buf) >= headerSize {
		h, err := DecodeHeader(buf[:headerSize])
		if err != nil {
			return report, err
		}
		report.HeaderPresent = true
		report.HeaderVersion = h.Version
		report.LastCheckpoint = h.LastCheckpoint
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, newErr("InspectDataDir", KindIO, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tableFilePfx) || !strings.HasSuffix(e.Name(), tableFileSfx) {
			continue
		}
		buf, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		t, err := DecodeTable(buf)
		if err != nil {
			continue
		}
		report.Tables = append(report.Tables, TableReport{Name: t.Name, RowCount: len(t.Rows)})
	}

	walPath := filepath.Join(dir, walFileName)
	if buf, err := os.ReadFile(walPath); err == nil {
		report.WALPresent = true
		off := 0
		for off < len(buf) {
			_, n, err := DecodeWalEntry(buf[off:])
			if err != nil {
				break
			}
			off += n
			report.WALEntryCount++
		}
	}

	return report, nil
}
