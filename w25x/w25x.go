// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w25x drives the Winbond W25Qxx family of SPI NOR flash memories.
//
// Dev implements the Store interface of package settings: memory is erased
// by 4KiB sectors to 0xFF and programmed by pages of up to 256 bytes.
//
// # Datasheet
//
// https://www.winbond.com/resource-files/w25q32jv%20revg%2003272018%20plus.pdf
package w25x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Commands.
const (
	cmdWriteEnable  byte = 0x06
	cmdReadStatus   byte = 0x05
	cmdReadData     byte = 0x03
	cmdPageProgram  byte = 0x02
	cmdSectorErase  byte = 0x20
	cmdChipErase    byte = 0xC7
	cmdPowerDown    byte = 0xB9
	cmdReleasePower byte = 0xAB
	cmdJEDECID      byte = 0x9F
)

const (
	statusBusy = 0x01
)

const (
	// PageSize is the largest program operation.
	PageSize = 256
	// SectorSize is the smallest erase operation.
	SectorSize = 4096
	// readChunk bounds the data of a single read transaction.
	readChunk = 256
)

// WinbondID is the JEDEC manufacturer ID of Winbond.
const WinbondID = 0xEF

var (
	// ErrTimeout is returned when the chip stays busy past its deadline.
	ErrTimeout = errors.New("w25x: timeout waiting for the chip")
	// ErrOutOfRange is returned for an access past the end of the memory.
	ErrOutOfRange = errors.New("w25x: address out of range")
	// ErrUnknownChip is returned by New when the JEDEC ID is not recognized.
	ErrUnknownChip = errors.New("w25x: unknown chip")
)

// Opts holds the options of a Dev.
type Opts struct {
	// Frequency defaults to 10MHz.
	Frequency physic.Frequency
	// EraseTimeout defaults to 400ms, the maximum sector erase time.
	EraseTimeout time.Duration
	// ProgramTimeout defaults to 3ms, the maximum page program time.
	ProgramTimeout time.Duration
	// PollInterval defaults to 100µs.
	PollInterval time.Duration
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Frequency:      10 * physic.MegaHertz,
	EraseTimeout:   400 * time.Millisecond,
	ProgramTimeout: 3 * time.Millisecond,
	PollInterval:   100 * time.Microsecond,
}

// Dev is a handle to a W25Qxx flash.
type Dev struct {
	mu   sync.Mutex
	c    spi.Conn
	opts Opts
	id   uint32
	size int
}

// New reads the JEDEC ID of the chip on p and returns a handle to it.
//
// The capacity is derived from the ID.
func New(p spi.Port, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
		if o.Frequency == 0 {
			o.Frequency = DefaultOpts.Frequency
		}
		if o.EraseTimeout == 0 {
			o.EraseTimeout = DefaultOpts.EraseTimeout
		}
		if o.ProgramTimeout == 0 {
			o.ProgramTimeout = DefaultOpts.ProgramTimeout
		}
		if o.PollInterval == 0 {
			o.PollInterval = DefaultOpts.PollInterval
		}
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	c, err := p.Connect(o.Frequency, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("w25x: %w", err)
	}
	d := &Dev{c: c, opts: o}
	if err := d.releasePowerDown(); err != nil {
		return nil, err
	}
	if d.id, err = d.readJEDECID(); err != nil {
		return nil, err
	}
	// The capacity byte is log2 of the size in bytes.
	capacity := d.id & 0xFF
	if d.id>>16 != WinbondID || capacity < 0x10 || capacity > 0x19 {
		return nil, fmt.Errorf("%w: JEDEC ID 0x%06x", ErrUnknownChip, d.id)
	}
	d.size = 1 << capacity
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("W25X{id:0x%06x, size:%d}", d.id, d.size)
}

// JEDECID returns the manufacturer, memory type and capacity bytes.
func (d *Dev) JEDECID() uint32 {
	return d.id
}

// Size returns the capacity in bytes.
func (d *Dev) Size() int {
	return d.size
}

// SectorSize implements settings.Store.
func (d *Dev) SectorSize() int {
	return SectorSize
}

// ReadAt implements settings.Store.
func (d *Dev) ReadAt(addr uint32, b []byte) error {
	if err := d.check(addr, len(b)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(b) > 0 {
		n := min(len(b), readChunk)
		w := make([]byte, 4+n)
		setCommand(w, cmdReadData, addr)
		r := make([]byte, len(w))
		if err := d.c.Tx(w, r); err != nil {
			return fmt.Errorf("w25x: read at 0x%06x: %w", addr, err)
		}
		copy(b, r[4:])
		b = b[n:]
		addr += uint32(n)
	}
	return nil
}

// WriteAt implements settings.Store. Writes are split on page boundaries.
func (d *Dev) WriteAt(addr uint32, b []byte) error {
	if err := d.check(addr, len(b)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(b) > 0 {
		n := min(len(b), PageSize-int(addr%PageSize))
		if err := d.writeEnable(); err != nil {
			return err
		}
		w := make([]byte, 4+n)
		setCommand(w, cmdPageProgram, addr)
		copy(w[4:], b[:n])
		if err := d.c.Tx(w, nil); err != nil {
			return fmt.Errorf("w25x: program at 0x%06x: %w", addr, err)
		}
		if err := d.wait(d.opts.ProgramTimeout); err != nil {
			return err
		}
		b = b[n:]
		addr += uint32(n)
	}
	return nil
}

// Erase implements settings.Store.
func (d *Dev) Erase(addr uint32, sectors int) error {
	addr -= addr % SectorSize
	if err := d.check(addr, sectors*SectorSize); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < sectors; i++ {
		if err := d.writeEnable(); err != nil {
			return err
		}
		w := make([]byte, 4)
		setCommand(w, cmdSectorErase, addr)
		if err := d.c.Tx(w, nil); err != nil {
			return fmt.Errorf("w25x: erase at 0x%06x: %w", addr, err)
		}
		if err := d.wait(d.opts.EraseTimeout); err != nil {
			return err
		}
		addr += SectorSize
	}
	return nil
}

// EraseChip erases the whole memory. It takes tens of seconds on large
// chips.
func (d *Dev) EraseChip(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeEnable(); err != nil {
		return err
	}
	if err := d.c.Tx([]byte{cmdChipErase}, nil); err != nil {
		return fmt.Errorf("w25x: %w", err)
	}
	return d.wait(timeout)
}

// Halt puts the chip in power down mode. Any access wakes it up first.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.c.Tx([]byte{cmdPowerDown}, nil); err != nil {
		return fmt.Errorf("w25x: %w", err)
	}
	return nil
}

func (d *Dev) check(addr uint32, n int) error {
	if int(addr)+n > d.size {
		return fmt.Errorf("%w: %d bytes at 0x%06x", ErrOutOfRange, n, addr)
	}
	return nil
}

func (d *Dev) releasePowerDown() error {
	if err := d.c.Tx([]byte{cmdReleasePower}, nil); err != nil {
		return fmt.Errorf("w25x: %w", err)
	}
	// tRES1 is 3µs.
	d.opts.Sleep(3 * time.Microsecond)
	return nil
}

func (d *Dev) readJEDECID() (uint32, error) {
	r := make([]byte, 4)
	if err := d.c.Tx([]byte{cmdJEDECID, 0, 0, 0}, r); err != nil {
		return 0, fmt.Errorf("w25x: %w", err)
	}
	return uint32(r[1])<<16 | uint32(r[2])<<8 | uint32(r[3]), nil
}

func (d *Dev) writeEnable() error {
	if err := d.c.Tx([]byte{cmdWriteEnable}, nil); err != nil {
		return fmt.Errorf("w25x: %w", err)
	}
	return nil
}

func (d *Dev) status() (byte, error) {
	r := make([]byte, 2)
	if err := d.c.Tx([]byte{cmdReadStatus, 0}, r); err != nil {
		return 0, fmt.Errorf("w25x: %w", err)
	}
	return r[1], nil
}

// wait polls the status register until the chip is idle.
func (d *Dev) wait(timeout time.Duration) error {
	for elapsed := time.Duration(0); ; elapsed += d.opts.PollInterval {
		s, err := d.status()
		if err != nil {
			return err
		}
		if s&statusBusy == 0 {
			return nil
		}
		if elapsed >= timeout {
			return ErrTimeout
		}
		d.opts.Sleep(d.opts.PollInterval)
	}
}

func setCommand(w []byte, cmd byte, addr uint32) {
	w[0] = cmd
	w[1] = byte(addr >> 16)
	w[2] = byte(addr >> 8)
	w[3] = byte(addr)
}
