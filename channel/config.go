// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package channel

import (
	"encoding/binary"
	"fmt"

	"github.com/GermanBionicSystems/actuators/ina219"
	"periph.io/x/conn/v3/physic"
)

// ConfigSize is the size of an encoded Config.
const ConfigSize = 14

// Bits of the flag byte of an encoded Config.
const (
	flagEnable = 1 << iota
	flagBridge
	flagInverseMotor
	flagInverseUp
	flagInverseDown
	flagInversePair
	flagRudder
)

// Config is the persisted configuration of one actuator channel.
//
// Voltage limits are in 0.1V units and current limits in 0.1A units.
type Config struct {
	Enabled           bool
	Bridge            bool
	InverseMotor      bool
	InverseUpSwitch   bool
	InverseDownSwitch bool
	// InverseSwitchPair swaps which physical input is the up switch.
	InverseSwitchPair bool
	// Rudder selects the rudder command input instead of the gear one.
	Rudder bool

	SensorAddr uint8
	// SensorCalibration is the shunt resistance in 0.01 Ohm units. Zero
	// selects the 50mOhm shunt fitted on the board.
	SensorCalibration uint16
	ExpanderAddr      uint8
	// ExpanderChannel is the half of the shared expander register used by
	// this channel, 0 or 1.
	ExpanderChannel uint8

	MaxVoltage uint16
	MinVoltage uint16
	MaxCurrent uint16
	MinCurrent uint16
}

// Validate checks the invariants of the configuration.
func (c *Config) Validate() error {
	if c.ExpanderChannel > 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSubChannel, c.ExpanderChannel)
	}
	return nil
}

// SenseResistor returns the shunt resistance selected by SensorCalibration.
func (c *Config) SenseResistor() physic.ElectricResistance {
	if c.SensorCalibration == 0 {
		return ina219.DefaultSenseResistor
	}
	return physic.ElectricResistance(c.SensorCalibration) * 10 * physic.MilliOhm
}

// MarshalBinary encodes the configuration in the little endian layout shared
// with the host tool.
func (c Config) MarshalBinary() ([]byte, error) {
	b := make([]byte, ConfigSize)
	flags := byte(0)
	for _, f := range []struct {
		set bool
		bit byte
	}{
		{c.Enabled, flagEnable},
		{c.Bridge, flagBridge},
		{c.InverseMotor, flagInverseMotor},
		{c.InverseUpSwitch, flagInverseUp},
		{c.InverseDownSwitch, flagInverseDown},
		{c.InverseSwitchPair, flagInversePair},
		{c.Rudder, flagRudder},
	} {
		if f.set {
			flags |= f.bit
		}
	}
	b[0] = flags
	b[1] = c.SensorAddr
	binary.LittleEndian.PutUint16(b[2:], c.SensorCalibration)
	b[4] = c.ExpanderAddr
	b[5] = c.ExpanderChannel
	binary.LittleEndian.PutUint16(b[6:], c.MaxVoltage)
	binary.LittleEndian.PutUint16(b[8:], c.MinVoltage)
	binary.LittleEndian.PutUint16(b[10:], c.MaxCurrent)
	binary.LittleEndian.PutUint16(b[12:], c.MinCurrent)
	return b, nil
}

// UnmarshalBinary decodes a configuration encoded by MarshalBinary. It does
// not validate it.
func (c *Config) UnmarshalBinary(b []byte) error {
	if len(b) != ConfigSize {
		return fmt.Errorf("channel: config is %d bytes, expected %d", len(b), ConfigSize)
	}
	flags := b[0]
	*c = Config{
		Enabled:           flags&flagEnable != 0,
		Bridge:            flags&flagBridge != 0,
		InverseMotor:      flags&flagInverseMotor != 0,
		InverseUpSwitch:   flags&flagInverseUp != 0,
		InverseDownSwitch: flags&flagInverseDown != 0,
		InverseSwitchPair: flags&flagInversePair != 0,
		Rudder:            flags&flagRudder != 0,
		SensorAddr:        b[1],
		SensorCalibration: binary.LittleEndian.Uint16(b[2:]),
		ExpanderAddr:      b[4],
		ExpanderChannel:   b[5],
		MaxVoltage:        binary.LittleEndian.Uint16(b[6:]),
		MinVoltage:        binary.LittleEndian.Uint16(b[8:]),
		MaxCurrent:        binary.LittleEndian.Uint16(b[10:]),
		MinCurrent:        binary.LittleEndian.Uint16(b[12:]),
	}
	return nil
}
