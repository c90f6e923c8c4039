// pagecache_test.go: Unit tests for Page encode/decode and PageCache
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package tierdb

import "testing"

func TestPage_EncodeDecodeRoundTrip(t *testing.T) {
	p := &Page{ID: 3, Version: 1, DataLen: 5}
	copy(p.Data[:], []byte("hello"))

	buf := encodePage(p)
	got, err := decodePage(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 3 || string(got.Data[:5]) != "hello" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestPage_DecodeDetectsChecksumMismatch(t *testing.T) {
	p := &Page{ID: 1}
	buf := encodePage(p)
	buf[40] ^= 0xFF // flip a byte in the data region the checksum covers
	if _, err := decodePage(buf); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

type fakePageSource struct {
	pages map[uint64]*Page
	reads int
}

func (f *fakePageSource) readPage(id uint64) (*Page, error) {
	f.reads++
	p, ok := f.pages[id]
	if !ok {
		return nil, newErr("fakePageSource.readPage", KindNotFound, errf("page %d not found", id))
	}
	return p, nil
}

func TestPageCache_ReadThroughAndHit(t *testing.T) {
	src := &fakePageSource{pages: map[uint64]*Page{1: {ID: 1}}}
	pc, err := NewPageCache(16, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pc.Close()

	if _, err := pc.Get(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := pc.Get(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.reads != 1 {
		t.Errorf("expected exactly one read-through to the source, got %d", src.reads)
	}
}

func TestPageCache_PutThenGetServesFromCache(t *testing.T) {
	src := &fakePageSource{pages: map[uint64]*Page{}}
	pc, err := NewPageCache(16, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pc.Close()

	pc.Put(&Page{ID: 5})
	if _, err := pc.Get(5); err != nil {
		t.Fatalf("unexpected error serving a Put page from cache: %v", err)
	}
	if src.reads != 0 {
		t.Errorf("expected no read-through for a page already Put, got %d reads", src.reads)
	}
}
