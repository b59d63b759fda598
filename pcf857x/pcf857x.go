// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pcf857x provides a port-level driver for the TI/NXP PCF857X I²C I/O
// expander. The PCF8574 exposes 8 and the PCF8575 16 "quasi-bidirectional"
// pins.
//
// The actuator board uses one PCF8574 per pair of actuators: the low nibble
// carries the four limit switch inputs and the high nibble drives the four
// direction relays. This driver therefore works on the whole port at once
// rather than per pin.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/pcf8574.pdf
//
// # Notes
//
// Before a pin can be read as an input a High must have been written to it. If
// nothing pulls it down it reads High, otherwise Low. Writing Low activates an
// open drain to ground.
//
// This chip doesn't implement a register architecture. You write 8 or 16 bits
// out, and that sets the corresponding pins, or you read 8/16 bits and get the
// state of the pins.
package pcf857x

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
)

// Variant represents the actual chip model.
type Variant string

const (
	PCF8574 Variant = "PCF8574"
	PCF8575 Variant = "PCF8575"

	DefaultAddress uint16 = 0x20
)

// ErrInvalidVariant is returned by New for an unknown chip model.
var ErrInvalidVariant = errors.New("pcf857x: invalid variant")

// Dev is a handle to a PCF857x port.
type Dev struct {
	chipType Variant
	width    int

	mu    sync.Mutex
	d     *i2c.Dev
	value uint16
}

// New returns a handle to the expander at address. No I/O is done; use Probe
// to check the device is present.
func New(bus i2c.Bus, address uint16, chip Variant) (*Dev, error) {
	dev := &Dev{d: &i2c.Dev{Bus: bus, Addr: address}, chipType: chip}
	switch chip {
	case PCF8574:
		dev.width = 8
	case PCF8575:
		dev.width = 16
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, chip)
	}
	return dev, nil
}

// Probe checks that the device acknowledges a read of its port.
func (dev *Dev) Probe() error {
	_, err := dev.Read()
	return err
}

// Read returns the current level of all pins.
func (dev *Dev) Read() (uint16, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	r := make([]byte, dev.width/8)
	if err := dev.d.Tx(nil, r); err != nil {
		return 0, fmt.Errorf("pcf857x: %w", err)
	}
	result := uint16(r[0])
	if len(r) > 1 {
		result |= uint16(r[1]) << 8
	}
	return result, nil
}

// Write sets all pins. Pins that are used as inputs must be written High.
func (dev *Dev) Write(value uint16) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	w := make([]byte, dev.width/8)
	for ix := range w {
		w[ix] = byte(value >> (ix * 8))
	}
	if err := dev.d.Tx(w, nil); err != nil {
		return fmt.Errorf("pcf857x: %w", err)
	}
	dev.value = value
	return nil
}

// Latched returns the last value successfully written by this handle.
func (dev *Dev) Latched() uint16 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.value
}

// Addr returns the I²C address of the device.
func (dev *Dev) Addr() uint16 {
	return dev.d.Addr
}

func (dev *Dev) String() string {
	return fmt.Sprintf("%s_%x", dev.chipType, dev.d.Addr)
}
