// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrOutOfRange is returned for an access past the end of a store.
var ErrOutOfRange = errors.New("settings: access out of range")

// DefaultSectorSize is the erase unit of the W25Q flash family.
const DefaultSectorSize = 4096

// MemStore is a Store in memory. It programs bits the way NOR flash does:
// a write can only clear bits, so writing without erasing first corrupts the
// data.
type MemStore struct {
	mu         sync.Mutex
	data       []byte
	sectorSize int
	erases     int
	writes     int
	// FailWrites makes WriteAt fail, to simulate a power loss after an erase.
	FailWrites bool
}

// NewMemStore returns an erased store of size bytes.
func NewMemStore(size, sectorSize int) *MemStore {
	if sectorSize <= 0 {
		sectorSize = DefaultSectorSize
	}
	return &MemStore{data: bytes.Repeat([]byte{0xFF}, size), sectorSize: sectorSize}
}

// Erase implements Store.
func (m *MemStore) Erase(addr uint32, sectors int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := int(addr) / m.sectorSize * m.sectorSize
	end := start + sectors*m.sectorSize
	if end > len(m.data) {
		return fmt.Errorf("%w: erase 0x%06x-0x%06x", ErrOutOfRange, start, end)
	}
	for i := start; i < end; i++ {
		m.data[i] = 0xFF
	}
	m.erases++
	return nil
}

// WriteAt implements Store.
func (m *MemStore) WriteAt(addr uint32, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errors.New("settings: simulated write failure")
	}
	if int(addr)+len(b) > len(m.data) {
		return fmt.Errorf("%w: write %d bytes at 0x%06x", ErrOutOfRange, len(b), addr)
	}
	for i, v := range b {
		m.data[int(addr)+i] &= v
	}
	m.writes++
	return nil
}

// ReadAt implements Store.
func (m *MemStore) ReadAt(addr uint32, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(addr)+len(b) > len(m.data) {
		return fmt.Errorf("%w: read %d bytes at 0x%06x", ErrOutOfRange, len(b), addr)
	}
	copy(b, m.data[addr:])
	return nil
}

// SectorSize implements Store.
func (m *MemStore) SectorSize() int {
	return m.sectorSize
}

// Erases returns the number of successful Erase calls.
func (m *MemStore) Erases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.erases
}

// Writes returns the number of successful WriteAt calls.
func (m *MemStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FileStore is a Store backed by a file, for running without the flash chip.
type FileStore struct {
	mu         sync.Mutex
	f          *os.File
	size       int
	sectorSize int
}

// OpenFileStore opens or creates the file at path. A new or short file is
// extended to size bytes of erased memory.
func OpenFileStore(path string, size, sectorSize int) (*FileStore, error) {
	if sectorSize <= 0 {
		sectorSize = DefaultSectorSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("settings: %w", err)
	}
	if n := int(fi.Size()); n < size {
		if _, err := f.WriteAt(bytes.Repeat([]byte{0xFF}, size-n), int64(n)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("settings: %w", err)
		}
	}
	return &FileStore{f: f, size: size, sectorSize: sectorSize}, nil
}

// Erase implements Store.
func (s *FileStore) Erase(addr uint32, sectors int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := int(addr) / s.sectorSize * s.sectorSize
	n := sectors * s.sectorSize
	if start+n > s.size {
		return fmt.Errorf("%w: erase 0x%06x-0x%06x", ErrOutOfRange, start, start+n)
	}
	if _, err := s.f.WriteAt(bytes.Repeat([]byte{0xFF}, n), int64(start)); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}

// WriteAt implements Store.
func (s *FileStore) WriteAt(addr uint32, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(addr)+len(b) > s.size {
		return fmt.Errorf("%w: write %d bytes at 0x%06x", ErrOutOfRange, len(b), addr)
	}
	if _, err := s.f.WriteAt(b, int64(addr)); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return s.f.Sync()
}

// ReadAt implements Store.
func (s *FileStore) ReadAt(addr uint32, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(addr)+len(b) > s.size {
		return fmt.Errorf("%w: read %d bytes at 0x%06x", ErrOutOfRange, len(b), addr)
	}
	if _, err := s.f.ReadAt(b, int64(addr)); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}

// SectorSize implements Store.
func (s *FileStore) SectorSize() int {
	return s.sectorSize
}

// Close closes the file.
func (s *FileStore) Close() error {
	return s.f.Close()
}
