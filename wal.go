// wal.go: append-only write-ahead log
//
// Grounded on the append/checkpoint/recover shape of tinySQL's pager.go
// (OpenWALFile/AppendRecord/Checkpoint/recovery-on-open), adapted to
// tierdb's fixed WalEntry record (§6.2) instead of tinySQL's page-image
// records. spec.md describes the WAL region as "memory-mapped"; no pack
// example carries an mmap dependency (the standard library has none
// either), so replay reads go through os.File.ReadAt instead. append
// returns once the record is written to the file with WriteAt; it does
// not fsync. Replay runs from the start of the file. See DESIGN.md.
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import (
	"os"
	"sync"
)

// walFile is the append-only WAL: a bounded region of a file, read through
// the os.File handle for both replay and append.
type walFile struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	offset   int64
	sequence uint64
	maxSize  int64
}

func openWALFile(path string, maxSize int64) (*walFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, newErr("openWALFile", KindIO, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, newErr("openWALFile", KindIO, err)
	}
	w := &walFile{
		path:     path,
		file:     f,
		offset:   info.Size(),
		sequence: 1,
		maxSize:  maxSize,
	}
	return w, nil
}

// append writes one WalEntry at the current offset, assigning it the next
// sequence number, and returns that sequence number.
func (w *walFile) append(e WalEntry) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e.Sequence = w.sequence
	encoded := EncodeWalEntry(e)
	if w.offset+int64(len(encoded)) > w.maxSize {
		return 0, newErr("walFile.append", KindIO, errf("wal full: offset %d + %d exceeds max_wal_size %d", w.offset, len(encoded), w.maxSize))
	}
	buf := getBuffer()
	buf.Write(encoded)
	n, err := w.file.WriteAt(buf.Bytes(), w.offset)
	putBuffer(buf)
	if err != nil {
		return 0, newErr("walFile.append", KindIO, err)
	}
	w.offset += int64(n)
	w.sequence++
	return e.Sequence, nil
}

// replay reads every complete record from the start of the file, in
// sequence order, invoking fn for each. It stops at the first Checkpoint
// entry, the first truncated trailing record (a partially-written entry
// from a crash mid-append), or EOF, per spec.md §4.4.
func (w *walFile) replay(fn func(WalEntry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.offset == 0 {
		return nil
	}
	buf := make([]byte, w.offset)
	if _, err := w.file.ReadAt(buf, 0); err != nil {
		return newErr("walFile.replay", KindIO, err)
	}

	off := 0
	for off < len(buf) {
		entry, n, err := DecodeWalEntry(buf[off:])
		if err != nil {
			// Truncated trailing record: the crash happened mid-append.
			// Stop replay here rather than failing the whole open.
			break
		}
		off += n
		if entry.Type == WalCheckpoint {
			break
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// truncate resets the WAL to empty, sets the sequence counter back to 1,
// and appends a single Checkpoint marker — the post-checkpoint state
// spec.md §8 scenario 6 inspects.
func (w *walFile) truncate() error {
	w.mu.Lock()
	if err := w.file.Truncate(0); err != nil {
		w.mu.Unlock()
		return newErr("walFile.truncate", KindIO, err)
	}
	w.offset = 0
	w.sequence = 1
	w.mu.Unlock()

	seq, err := w.append(WalEntry{Type: WalCheckpoint})
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.sequence = seq + 1
	w.mu.Unlock()
	return nil
}

func (w *walFile) sync() error {
	if err := w.file.Sync(); err != nil {
		return newErr("walFile.sync", KindIO, err)
	}
	return nil
}

func (w *walFile) currentSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sequence
}

func (w *walFile) size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

func (w *walFile) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Close(); err != nil {
		return newErr("walFile.close", KindIO, err)
	}
	return nil
}
