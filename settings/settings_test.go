// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package settings

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type pair struct {
	A uint8
	B uint16
}

func (p pair) MarshalBinary() ([]byte, error) {
	return []byte{p.A, byte(p.B), byte(p.B >> 8)}, nil
}

func (p *pair) UnmarshalBinary(b []byte) error {
	if len(b) != 3 {
		return errors.New("pair: bad size")
	}
	p.A = b[0]
	p.B = uint16(b[1]) | uint16(b[2])<<8
	return nil
}

func pairCodec() Codec[pair] {
	return NewBinaryCodec[pair](3)
}

func TestRecordRoundTrip(t *testing.T) {
	for _, m := range []Marker{CRC16Marker, ZeroMarker} {
		t.Run(m.String(), func(t *testing.T) {
			store := NewMemStore(2*DefaultSectorSize, 0)
			r := NewRecord(store, DefaultSectorSize, pairCodec(), &Opts{Marker: m})
			r.Set(pair{A: 1, B: 0xbeef})
			if err := r.Save(); err != nil {
				t.Fatal(err)
			}
			raw := make([]byte, r.Size())
			if err := store.ReadAt(DefaultSectorSize, raw); err != nil {
				t.Fatal(err)
			}
			want := []byte{0x01, 0xef, 0xbe, 0, 0}
			if m == CRC16Marker {
				want[3], want[4] = 0x4b, 0x55
			}
			if !bytes.Equal(raw, want) {
				t.Fatalf("stored %x, expected %x", raw, want)
			}

			r2 := NewRecord(store, DefaultSectorSize, pairCodec(), &Opts{Marker: m})
			if err := r2.Load(); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(r.Get(), r2.Get()); diff != "" {
				t.Fatalf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordErased(t *testing.T) {
	for _, m := range []Marker{CRC16Marker, ZeroMarker} {
		store := NewMemStore(DefaultSectorSize, 0)
		r := NewRecord(store, 0, pairCodec(), &Opts{Marker: m})
		r.Set(pair{A: 7})
		if err := r.Load(); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("%s: expected ErrIntegrity, got %v", m, err)
		}
		if r.Get().A != 7 {
			t.Fatalf("%s: Load() must not change the value on failure", m)
		}
	}
}

func TestRecordCorrupted(t *testing.T) {
	store := NewMemStore(DefaultSectorSize, 0)
	r := NewRecord(store, 0, pairCodec(), nil)
	r.Set(pair{A: 0xff, B: 0xffff})
	if err := r.Save(); err != nil {
		t.Fatal(err)
	}
	// Flip a bit of the value, as a failing flash cell would.
	if err := store.WriteAt(1, []byte{0xfe}); err != nil {
		t.Fatal(err)
	}
	if err := r.Load(); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}

	// The legacy marker does not detect it.
	z := NewRecord(store, 0, pairCodec(), &Opts{Marker: ZeroMarker})
	z.Set(pair{A: 0xff, B: 0xffff})
	if err := z.Save(); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteAt(1, []byte{0xfe}); err != nil {
		t.Fatal(err)
	}
	if err := z.Load(); err != nil {
		t.Fatal(err)
	}
	if z.Get().B != 0xfffe {
		t.Fatalf("Get()=%#v", z.Get())
	}
}

func TestRecordSaveErasesSectors(t *testing.T) {
	data := []struct {
		size    int
		sectors int
	}{
		{10, 1},
		{62, 1},
		{64, 2},
		{100, 2},
	}
	for _, line := range data {
		store := &countingStore{MemStore: NewMemStore(1024, 64)}
		r := NewRecord(store, 128, Codec[[]byte](rawCodec(line.size-2)), nil)
		r.Set(make([]byte, line.size-2))
		if err := r.Save(); err != nil {
			t.Fatal(err)
		}
		if store.sectors != line.sectors {
			t.Errorf("size %d: erased %d sectors, expected %d", line.size, store.sectors, line.sectors)
		}
	}
}

func TestRecordSaveNotAtomic(t *testing.T) {
	store := NewMemStore(DefaultSectorSize, 0)
	r := NewRecord(store, 0, pairCodec(), nil)
	r.Set(pair{A: 1, B: 2})
	if err := r.Save(); err != nil {
		t.Fatal(err)
	}
	store.FailWrites = true
	r.Set(pair{A: 3, B: 4})
	if err := r.Save(); err == nil {
		t.Fatal("expected error")
	}
	// The previous record was erased and nothing replaced it.
	store.FailWrites = false
	if err := NewRecord(store, 0, pairCodec(), nil).Load(); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestArrayCodec(t *testing.T) {
	c := &ArrayCodec[pair]{Elem: pairCodec(), Len: 2}
	if c.Size() != 6 {
		t.Fatalf("Size()=%d", c.Size())
	}
	v := []pair{{1, 2}, {3, 0x405}}
	b, err := c.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{1, 2, 0, 3, 5, 4}; !bytes.Equal(b, want) {
		t.Fatalf("Marshal()=%x, expected %x", b, want)
	}
	got, err := c.Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Fatalf("Unmarshal() mismatch (-want +got):\n%s", diff)
	}
	if _, err := c.Marshal(v[:1]); err == nil {
		t.Fatal("expected error on short slice")
	}
	if _, err := c.Unmarshal(b[:5]); err == nil {
		t.Fatal("expected error on short input")
	}
}

func TestMemStore(t *testing.T) {
	m := NewMemStore(256, 64)
	if err := m.WriteAt(70, []byte{0x0f}); err != nil {
		t.Fatal(err)
	}
	// Programming can only clear bits.
	if err := m.WriteAt(70, []byte{0xf1}); err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 1)
	if err := m.ReadAt(70, b); err != nil {
		t.Fatal(err)
	}
	if b[0] != 0x01 {
		t.Fatalf("read 0x%02x", b[0])
	}
	if err := m.Erase(100, 1); err != nil {
		t.Fatal(err)
	}
	if err := m.ReadAt(70, b); err != nil {
		t.Fatal(err)
	}
	if b[0] != 0xff {
		t.Fatalf("read 0x%02x after erase", b[0])
	}
	if m.Erases() != 1 || m.Writes() != 2 {
		t.Fatalf("erases=%d writes=%d", m.Erases(), m.Writes())
	}
	if err := m.Erase(192, 2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := m.ReadAt(255, make([]byte, 2)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	s, err := OpenFileStore(path, 2*DefaultSectorSize, 0)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRecord(s, DefaultSectorSize, pairCodec(), nil)
	r.Set(pair{A: 9, B: 1000})
	if err := r.Save(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenFileStore(path, 2*DefaultSectorSize, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	r2 := NewRecord(s, DefaultSectorSize, pairCodec(), nil)
	if err := r2.Load(); err != nil {
		t.Fatal(err)
	}
	if r2.Get() != (pair{A: 9, B: 1000}) {
		t.Fatalf("Get()=%#v", r2.Get())
	}
	if err := NewRecord(s, 0, pairCodec(), nil).Load(); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

type rawCodec int

func (c rawCodec) Size() int                          { return int(c) }
func (c rawCodec) Marshal(v []byte) ([]byte, error)   { return append([]byte(nil), v...), nil }
func (c rawCodec) Unmarshal(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

type countingStore struct {
	*MemStore
	sectors int
}

func (c *countingStore) Erase(addr uint32, sectors int) error {
	c.sectors = sectors
	return c.MemStore.Erase(addr, sectors)
}
