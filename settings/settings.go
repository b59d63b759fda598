// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package settings

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/actuators/common"
)

// ErrIntegrity is returned by Load when the stored record has no valid
// marker.
var ErrIntegrity = errors.New("settings: invalid record")

// Store is sector-erased nonvolatile memory.
type Store interface {
	// Erase sets the given number of sectors to 0xFF, starting at the sector
	// holding addr.
	Erase(addr uint32, sectors int) error
	// WriteAt programs b at addr. The memory must have been erased.
	WriteAt(addr uint32, b []byte) error
	// ReadAt fills b from addr.
	ReadAt(addr uint32, b []byte) error
	// SectorSize returns the size of the erase unit in bytes.
	SectorSize() int
}

// Codec encodes a value of type T to a fixed number of bytes.
type Codec[T any] interface {
	Size() int
	Marshal(v T) ([]byte, error)
	Unmarshal(b []byte) (T, error)
}

// Marker selects how a record is validated.
type Marker int

const (
	// CRC16Marker stores the CRC-16 of the encoded value.
	CRC16Marker Marker = iota
	// ZeroMarker stores a zero marker, compatible with early firmwares.
	ZeroMarker
)

func (m Marker) String() string {
	switch m {
	case CRC16Marker:
		return "crc16"
	case ZeroMarker:
		return "zero"
	}
	return fmt.Sprintf("Marker(%d)", int(m))
}

// Opts holds the options of a Record.
type Opts struct {
	Marker Marker
}

// Record is a value of type T persisted at a fixed address.
type Record[T any] struct {
	store  Store
	addr   uint32
	codec  Codec[T]
	marker Marker
	data   T
}

// NewRecord returns a record stored at addr. It holds the zero value of T
// until Load or Set is called.
func NewRecord[T any](store Store, addr uint32, codec Codec[T], opts *Opts) *Record[T] {
	r := &Record[T]{store: store, addr: addr, codec: codec}
	if opts != nil {
		r.marker = opts.Marker
	}
	return r
}

// Size returns the number of bytes used in the store, marker included.
func (r *Record[T]) Size() int {
	return r.codec.Size() + 2
}

// Addr returns the address of the record in the store.
func (r *Record[T]) Addr() uint32 {
	return r.addr
}

// Get returns the value.
func (r *Record[T]) Get() T {
	return r.data
}

// Set changes the value. It is not persisted until Save is called.
func (r *Record[T]) Set(v T) {
	r.data = v
}

// Load reads the record from the store. The value is left unchanged unless
// a valid record is found.
func (r *Record[T]) Load() error {
	b := make([]byte, r.Size())
	if err := r.store.ReadAt(r.addr, b); err != nil {
		return fmt.Errorf("settings: load at 0x%06x: %w", r.addr, err)
	}
	n := r.codec.Size()
	got := binary.LittleEndian.Uint16(b[n:])
	if want := r.markerOf(b[:n]); got != want {
		return fmt.Errorf("%w at 0x%06x: marker 0x%04x, expected 0x%04x", ErrIntegrity, r.addr, got, want)
	}
	v, err := r.codec.Unmarshal(b[:n])
	if err != nil {
		return fmt.Errorf("%w at 0x%06x: %w", ErrIntegrity, r.addr, err)
	}
	r.data = v
	return nil
}

// Save erases the sectors holding the record and writes it.
func (r *Record[T]) Save() error {
	data, err := r.codec.Marshal(r.data)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if len(data) != r.codec.Size() {
		return fmt.Errorf("settings: encoded %d bytes, expected %d", len(data), r.codec.Size())
	}
	b := binary.LittleEndian.AppendUint16(data, r.markerOf(data))
	if err := r.store.Erase(r.addr, len(b)/r.store.SectorSize()+1); err != nil {
		return fmt.Errorf("settings: erase at 0x%06x: %w", r.addr, err)
	}
	if err := r.store.WriteAt(r.addr, b); err != nil {
		return fmt.Errorf("settings: write at 0x%06x: %w", r.addr, err)
	}
	return nil
}

func (r *Record[T]) markerOf(data []byte) uint16 {
	if r.marker == ZeroMarker {
		return 0
	}
	return common.CRC16(data)
}

// BinaryCodec encodes values implementing encoding.BinaryMarshaler.
type BinaryCodec[T encoding.BinaryMarshaler, PT interface {
	*T
	encoding.BinaryUnmarshaler
}] struct {
	N int
}

// NewBinaryCodec returns a codec for T whose encoding is size bytes long.
func NewBinaryCodec[T encoding.BinaryMarshaler, PT interface {
	*T
	encoding.BinaryUnmarshaler
}](size int) *BinaryCodec[T, PT] {
	return &BinaryCodec[T, PT]{N: size}
}

// Size implements Codec.
func (c *BinaryCodec[T, PT]) Size() int {
	return c.N
}

// Marshal implements Codec.
func (c *BinaryCodec[T, PT]) Marshal(v T) ([]byte, error) {
	return v.MarshalBinary()
}

// Unmarshal implements Codec.
func (c *BinaryCodec[T, PT]) Unmarshal(b []byte) (T, error) {
	var v T
	err := PT(&v).UnmarshalBinary(b)
	return v, err
}

// ArrayCodec encodes a slice of exactly Len elements back to back.
type ArrayCodec[T any] struct {
	Elem Codec[T]
	Len  int
}

// Size implements Codec.
func (c *ArrayCodec[T]) Size() int {
	return c.Elem.Size() * c.Len
}

// Marshal implements Codec.
func (c *ArrayCodec[T]) Marshal(v []T) ([]byte, error) {
	if len(v) != c.Len {
		return nil, fmt.Errorf("settings: %d elements, expected %d", len(v), c.Len)
	}
	out := make([]byte, 0, c.Size())
	for i := range v {
		b, err := c.Elem.Marshal(v[i])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// Unmarshal implements Codec.
func (c *ArrayCodec[T]) Unmarshal(b []byte) ([]T, error) {
	if len(b) != c.Size() {
		return nil, fmt.Errorf("settings: %d bytes, expected %d", len(b), c.Size())
	}
	n := c.Elem.Size()
	out := make([]T, c.Len)
	for i := range out {
		v, err := c.Elem.Unmarshal(b[i*n : (i+1)*n])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
