// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package statuscolor maps the state of an actuator channel to the color of
// its status LED.
//
// Everything in this package is a pure function of its arguments, including
// the time, so the displayed pattern is reproducible.
package statuscolor

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/actuators/channel"
)

// BlinkPeriod is the period of the blinking patterns, in milliseconds.
const BlinkPeriod = 500

// WarningPeriod is the period used to alternate a settled color with the
// warning color, in milliseconds.
const WarningPeriod = 2 * BlinkPeriod

// Color is a 24 bits 0xRRGGBB color.
type Color uint32

// Predefined colors.
const (
	Black  Color = 0x000000
	White  Color = 0xFFFFFF
	Red    Color = 0xFF0000
	Green  Color = 0x00FF00
	Blue   Color = 0x0000FF
	Orange Color = 0xFF7F00
	Violet Color = 0x7F00FF
	Yellow Color = 0xFFFF00
)

// RGB returns the components of the color.
func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.NRGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: 0xFF}.RGBA()
}

func (c Color) String() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xFFFFFF)
}

// Parse parses "#rrggbb", "0xrrggbb" or "rrggbb".
func Parse(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "#"), "0x")
	if len(h) != 6 {
		return 0, fmt.Errorf("statuscolor: invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("statuscolor: invalid color %q: %w", s, err)
	}
	return Color(v), nil
}

// Blink returns a during the first half of each period and b during the
// second half.
func Blink(period, t uint32, a, b Color) Color {
	if t%period < period/2 {
		return a
	}
	return b
}

// ScaleBrightness scales each component by brightness/255, truncating.
func ScaleBrightness(c Color, brightness uint8) Color {
	r, g, b := c.RGB()
	r = uint8(uint32(r) * uint32(brightness) / 0xFF)
	g = uint8(uint32(g) * uint32(brightness) / 0xFF)
	b = uint8(uint32(b) * uint32(brightness) / 0xFF)
	return Color(r)<<16 | Color(g)<<8 | Color(b)
}

// WithWarning alternates a settled color with the warning color.
func WithWarning(c, warning Color, t uint32) Color {
	return Blink(WarningPeriod, t, c, warning)
}

// Palette is the color of each displayed condition.
type Palette struct {
	GearUp         Color
	GearDown       Color
	RudderUp       Color
	RudderDown     Color
	RudderInactive Color
	Warning        Color
	Error          Color
}

// Colors returns the palette in its persisted order.
func (p *Palette) Colors() []*Color {
	return []*Color{&p.GearUp, &p.GearDown, &p.RudderUp, &p.RudderDown, &p.RudderInactive, &p.Warning, &p.Error}
}

// Policy computes the color of a channel.
type Policy struct {
	Palette Palette
}

// Color returns the color of a channel in state s at time t in milliseconds.
//
// rudder selects the rudder role. command is the command input of the role
// and opposite the other command input.
//
// A channel settled in the position its command asks for shows a steady
// color. A channel that still has to travel blinks the color of its target
// position.
func (p *Policy) Color(s channel.State, rudder, command, opposite bool, t uint32) Color {
	switch s {
	case channel.Up:
		if p.Settled(s, command, opposite) {
			if !rudder {
				return p.Palette.GearUp
			}
			if opposite {
				return p.Palette.RudderInactive
			}
			return p.Palette.RudderUp
		}
		return p.moving(rudder, command, t)
	case channel.Down:
		if p.Settled(s, command, opposite) {
			if rudder {
				return p.Palette.RudderDown
			}
			return p.Palette.GearDown
		}
		return p.moving(rudder, command, t)
	case channel.Moving:
		return p.moving(rudder, command, t)
	default:
		return Blink(BlinkPeriod, t, p.Palette.Error, Black)
	}
}

// Settled reports whether Color shows a steady color for these inputs.
func (p *Policy) Settled(s channel.State, command, opposite bool) bool {
	return (s == channel.Up && !command) || (s == channel.Down && !opposite)
}

func (p *Policy) moving(rudder, command bool, t uint32) Color {
	c := p.Palette.GearUp
	switch {
	case rudder && command:
		c = p.Palette.RudderDown
	case rudder:
		c = p.Palette.RudderUp
	case command:
		c = p.Palette.GearDown
	}
	return Blink(BlinkPeriod, t, c, Black)
}
