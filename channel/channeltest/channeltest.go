// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package channeltest simulates the devices of an actuator board on an
// i2c.Bus: PCF8574 expanders and INA219 sensors.
//
// Unlike i2ctest.Playback, the simulated devices keep state, so a test (or a
// dry run of the daemon) can poll channels in a loop without scripting every
// transaction.
package channeltest

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Expander simulates a PCF8574 used by one or two channels.
//
// Inputs holds the level driven by the limit switches on the low nibble. A
// pin reads High only when both the switch and the latch leave it High.
type Expander struct {
	Inputs uint8
	Latch  uint8
	// Writes lists every value written to the port.
	Writes []uint8
	// Missing makes the device stop acknowledging.
	Missing bool
}

func (e *Expander) port() uint8 {
	return e.Latch&0xf0 | e.Latch&e.Inputs&0x0f
}

// Sensor simulates an INA219 with raw register values.
type Sensor struct {
	Config       uint16
	ShuntVoltage uint16
	BusVoltage   uint16
	Missing      bool
}

// Set programs the registers to read back voltage v and current i through a
// shunt of resistance r.
func (s *Sensor) Set(v physic.ElectricPotential, i physic.ElectricCurrent, r physic.ElectricResistance) {
	s.BusVoltage = uint16(v/(4*physic.MilliVolt)) << 3
	shunt := int64(i) * int64(r) / int64(physic.Ohm)
	s.ShuntVoltage = uint16(int16(shunt / int64(10*physic.MicroVolt)))
}

// Board is an i2c.Bus with simulated devices attached.
type Board struct {
	mu        sync.Mutex
	expanders map[uint16]*Expander
	sensors   map[uint16]*Sensor
	count     int
}

// NewBoard returns a bus with no device attached.
func NewBoard() *Board {
	return &Board{expanders: map[uint16]*Expander{}, sensors: map[uint16]*Sensor{}}
}

// AddExpander attaches an expander at addr in its power-on state, with no
// limit switch asserted.
func (b *Board) AddExpander(addr uint16) *Expander {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := &Expander{Inputs: 0xff, Latch: 0xff}
	b.expanders[addr] = e
	return e
}

// AddSensor attaches a sensor at addr reading 0V and 0A.
func (b *Board) AddSensor(addr uint16) *Sensor {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Sensor{Config: 0x399f}
	b.sensors[addr] = s
	return s
}

// Count returns the number of transactions attempted on the bus.
func (b *Board) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Board) String() string {
	return "channeltest"
}

// Tx implements i2c.Bus.
func (b *Board) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	if e, ok := b.expanders[addr]; ok && !e.Missing {
		switch {
		case len(w) == 1 && len(r) == 0:
			e.Latch = w[0]
			e.Writes = append(e.Writes, w[0])
			return nil
		case len(w) == 0 && len(r) == 1:
			r[0] = e.port()
			return nil
		}
		return fmt.Errorf("channeltest: unexpected transaction w=%d r=%d to expander 0x%02x", len(w), len(r), addr)
	}
	if s, ok := b.sensors[addr]; ok && !s.Missing {
		if len(w) == 0 {
			// Bus scan.
			clear(r)
			return nil
		}
		if len(w) == 1 && len(r) == 2 {
			var v uint16
			switch w[0] {
			case 0x00:
				v = s.Config
			case 0x01:
				v = s.ShuntVoltage
			case 0x02:
				v = s.BusVoltage
			default:
				return fmt.Errorf("channeltest: register 0x%02x not simulated", w[0])
			}
			r[0] = byte(v >> 8)
			r[1] = byte(v)
			return nil
		}
		return fmt.Errorf("channeltest: unexpected transaction w=%d r=%d to sensor 0x%02x", len(w), len(r), addr)
	}
	return fmt.Errorf("channeltest: no device at 0x%02x", addr)
}

// SetSpeed implements i2c.Bus.
func (b *Board) SetSpeed(f physic.Frequency) error {
	return nil
}

var _ i2c.Bus = &Board{}
