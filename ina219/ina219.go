// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina219

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	regConfig       uint8 = 0x00 // CONFIGURATION REGISTER (R/W)
	regShuntVoltage uint8 = 0x01 // SHUNT VOLTAGE REGISTER (R)
	regBusVoltage   uint8 = 0x02 // BUS VOLTAGE REGISTER (R)

	// DefaultAddress is the address with A0 and A1 tied to ground.
	DefaultAddress uint16 = 0x40

	// DefaultSenseResistor is the shunt fitted on the actuator board.
	DefaultSenseResistor physic.ElectricResistance = 50 * physic.MilliOhm

	shuntLSB physic.ElectricPotential = 10 * physic.MicroVolt
	busLSB   physic.ElectricPotential = 4 * physic.MilliVolt
)

// ErrInvalidResistor is returned when the sense resistor is not positive.
var ErrInvalidResistor = errors.New("ina219: sense resistor must be positive")

// Opts holds the configuration options.
type Opts struct {
	Address       uint16
	SenseResistor physic.ElectricResistance
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Address:       DefaultAddress,
	SenseResistor: DefaultSenseResistor,
}

// PowerMonitor represents measured values from the INA219.
type PowerMonitor struct {
	Voltage physic.ElectricPotential
	Current physic.ElectricCurrent
}

func (p PowerMonitor) String() string {
	return fmt.Sprintf("%s %s", p.Voltage, p.Current)
}

// Dev is a handle to an INA219 sensor.
type Dev struct {
	mu    sync.Mutex
	c     *i2c.Dev
	shunt physic.ElectricResistance
}

// New returns a handle to the sensor. No I/O is done; use Probe to check the
// device is present.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.SenseResistor <= 0 {
		return nil, ErrInvalidResistor
	}
	addr := opts.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	return &Dev{c: &i2c.Dev{Bus: bus, Addr: addr}, shunt: opts.SenseResistor}, nil
}

// Probe checks that the device acknowledges a read of its configuration
// register.
func (d *Dev) Probe() error {
	_, err := d.readRegister(regConfig)
	return err
}

// BusVoltage reads the bus voltage, with a 4mV resolution.
func (d *Dev) BusVoltage() (physic.ElectricPotential, error) {
	raw, err := d.readRegister(regBusVoltage)
	if err != nil {
		return 0, err
	}
	// Bits 3..15 hold the reading, bits 0..2 are status flags.
	return physic.ElectricPotential(raw>>3) * busLSB, nil
}

// Current reads the shunt voltage and converts it to the current through the
// sense resistor. Negative values mean current flows from IN- to IN+.
func (d *Dev) Current() (physic.ElectricCurrent, error) {
	raw, err := d.readRegister(regShuntVoltage)
	if err != nil {
		return 0, err
	}
	shunt := physic.ElectricPotential(int16(raw)) * shuntLSB
	// nV * Ohm / nOhm = nA.
	return physic.ElectricCurrent(int64(shunt) * int64(physic.Ohm) / int64(d.shunt)), nil
}

// Sense reads the bus voltage and the current.
func (d *Dev) Sense() (PowerMonitor, error) {
	var p PowerMonitor
	var err error
	if p.Voltage, err = d.BusVoltage(); err != nil {
		return PowerMonitor{}, err
	}
	if p.Current, err = d.Current(); err != nil {
		return PowerMonitor{}, err
	}
	return p, nil
}

// Addr returns the I²C address of the device.
func (d *Dev) Addr() uint16 {
	return d.c.Addr
}

func (d *Dev) String() string {
	return fmt.Sprintf("INA219_%x", d.c.Addr)
}

func (d *Dev) readRegister(reg uint8) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := make([]byte, 2)
	if err := d.c.Tx([]byte{reg}, b); err != nil {
		return 0, fmt.Errorf("ina219: %w", err)
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}
