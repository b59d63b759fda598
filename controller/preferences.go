// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"encoding/binary"
	"fmt"

	"github.com/GermanBionicSystems/actuators/statuscolor"
)

// PreferencesSize is the size of encoded Preferences.
const PreferencesSize = 1 + 7*4

// Preferences are the user settings of the status display.
type Preferences struct {
	// Brightness scales every color, 255 is full brightness.
	Brightness uint8
	Palette    statuscolor.Palette
}

// MarshalBinary encodes the brightness followed by each color of the
// palette as a little endian 0x00RRGGBB word.
func (p Preferences) MarshalBinary() ([]byte, error) {
	b := make([]byte, 1, PreferencesSize)
	b[0] = p.Brightness
	for _, c := range p.Palette.Colors() {
		b = binary.LittleEndian.AppendUint32(b, uint32(*c)&0xFFFFFF)
	}
	return b, nil
}

// UnmarshalBinary decodes preferences encoded by MarshalBinary.
func (p *Preferences) UnmarshalBinary(b []byte) error {
	if len(b) != PreferencesSize {
		return fmt.Errorf("controller: preferences are %d bytes, expected %d", len(b), PreferencesSize)
	}
	p.Brightness = b[0]
	for i, c := range p.Palette.Colors() {
		*c = statuscolor.Color(binary.LittleEndian.Uint32(b[1+4*i:]) & 0xFFFFFF)
	}
	return nil
}
