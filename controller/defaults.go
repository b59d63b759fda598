// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/statuscolor"
)

// DefaultChannelCount is the number of channels of the board.
const DefaultChannelCount = 6

// Addresses of the first devices on the board.
const (
	FirstSensorAddr   = 0x40
	LastSensorAddr    = 0x4F
	FirstExpanderAddr = 0x20
	LastExpanderAddr  = 0x27
)

// DefaultPreferences are used until preferences are saved.
var DefaultPreferences = Preferences{
	Brightness: 128,
	Palette: statuscolor.Palette{
		GearUp:         statuscolor.Blue,
		GearDown:       statuscolor.Green,
		RudderUp:       statuscolor.Green,
		RudderDown:     statuscolor.Blue,
		RudderInactive: statuscolor.Yellow,
		Warning:        0xFFA500,
		Error:          statuscolor.Red,
	},
}

// DefaultLimits are the supply and motor limits of a freshly commissioned
// channel: 8V to 26V, up to 5A.
var DefaultLimits = channel.Config{
	MaxVoltage: 260,
	MinVoltage: 80,
	MaxCurrent: 50,
	MinCurrent: 0,
}

// DefaultChannels returns the configuration used until channel settings are
// saved: channel i uses sensor 0x40+i and half i%2 of expander 0x20+i/2.
// The last two channels are rudder trims.
func DefaultChannels(n int) []channel.Config {
	out := make([]channel.Config, n)
	for i := range out {
		out[i] = WithLimits(channel.Config{
			Enabled:         true,
			Rudder:          i >= 4,
			SensorAddr:      uint8(FirstSensorAddr + i),
			ExpanderAddr:    uint8(FirstExpanderAddr + i/2),
			ExpanderChannel: uint8(i % 2),
		}, DefaultLimits)
	}
	return out
}

// WithLimits returns cfg with the voltage and current limits of limits.
func WithLimits(cfg, limits channel.Config) channel.Config {
	cfg.MaxVoltage = limits.MaxVoltage
	cfg.MinVoltage = limits.MinVoltage
	cfg.MaxCurrent = limits.MaxCurrent
	cfg.MinCurrent = limits.MinCurrent
	return cfg
}
