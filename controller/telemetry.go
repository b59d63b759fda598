// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"encoding/binary"
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/actuators/channel"
)

// TelemetrySize is the size of encoded Telemetry.
const TelemetrySize = 6

// Telemetry is a live sample of one channel.
type Telemetry struct {
	Voltage physic.ElectricPotential
	Current physic.ElectricCurrent
	State   channel.State
	// Up and Down are the limit switches, polarity applied.
	Up, Down bool
}

func (t Telemetry) String() string {
	return fmt.Sprintf("%s %s %s up=%t down=%t", t.State, t.Voltage, t.Current, t.Up, t.Down)
}

// MarshalBinary encodes the voltage in mV and the current in mA as little
// endian int16, then the state and a switch byte: bit 0 up, bit 1 down.
func (t Telemetry) MarshalBinary() ([]byte, error) {
	b := make([]byte, TelemetrySize)
	binary.LittleEndian.PutUint16(b[0:], uint16(clamp16(int64(t.Voltage/physic.MilliVolt))))
	binary.LittleEndian.PutUint16(b[2:], uint16(clamp16(int64(t.Current/physic.MilliAmpere))))
	b[4] = byte(t.State)
	if t.Up {
		b[5] |= 0x01
	}
	if t.Down {
		b[5] |= 0x02
	}
	return b, nil
}

// UnmarshalBinary decodes telemetry encoded by MarshalBinary.
func (t *Telemetry) UnmarshalBinary(b []byte) error {
	if len(b) != TelemetrySize {
		return fmt.Errorf("controller: telemetry is %d bytes, expected %d", len(b), TelemetrySize)
	}
	*t = Telemetry{
		Voltage: physic.ElectricPotential(int16(binary.LittleEndian.Uint16(b[0:]))) * physic.MilliVolt,
		Current: physic.ElectricCurrent(int16(binary.LittleEndian.Uint16(b[2:]))) * physic.MilliAmpere,
		State:   channel.State(b[4]),
		Up:      b[5]&0x01 != 0,
		Down:    b[5]&0x02 != 0,
	}
	return nil
}

func clamp16(v int64) int16 {
	return int16(max(math.MinInt16, min(math.MaxInt16, v)))
}
