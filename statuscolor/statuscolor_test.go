// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package statuscolor

import (
	"image/color"
	"testing"

	"github.com/GermanBionicSystems/actuators/channel"
)

var palette = Palette{
	GearUp:         Green,
	GearDown:       Red,
	RudderUp:       Blue,
	RudderDown:     Orange,
	RudderInactive: Violet,
	Warning:        Yellow,
	Error:          White,
}

func TestBlink(t *testing.T) {
	data := []struct {
		t    uint32
		want Color
	}{
		{0, Red},
		{249, Red},
		{250, Blue},
		{499, Blue},
		{500, Red},
		{1000250, Blue},
	}
	for _, line := range data {
		if got := Blink(500, line.t, Red, Blue); got != line.want {
			t.Errorf("Blink(500, %d)=%s, expected %s", line.t, got, line.want)
		}
	}
}

func TestScaleBrightness(t *testing.T) {
	for _, c := range []Color{Black, White, Red, Orange, Violet, 0x123456, 0x010203} {
		if got := ScaleBrightness(c, 255); got != c {
			t.Errorf("ScaleBrightness(%s, 255)=%s", c, got)
		}
		if got := ScaleBrightness(c, 0); got != Black {
			t.Errorf("ScaleBrightness(%s, 0)=%s", c, got)
		}
	}
	// 0x7F*0x80/0xFF = 63.7 truncated.
	if got := ScaleBrightness(0xFF7F01, 0x80); got != 0x803F00 {
		t.Errorf("ScaleBrightness()=%s", got)
	}
}

func TestColor(t *testing.T) {
	r, g, b := Orange.RGB()
	if r != 0xFF || g != 0x7F || b != 0 {
		t.Fatalf("RGB()=%d,%d,%d", r, g, b)
	}
	if got := color.NRGBAModel.Convert(Orange).(color.NRGBA); got != (color.NRGBA{0xFF, 0x7F, 0, 0xFF}) {
		t.Fatalf("RGBA()=%v", got)
	}
	if s := Orange.String(); s != "#ff7f00" {
		t.Fatalf("String()=%q", s)
	}
}

func TestParse(t *testing.T) {
	for _, s := range []string{"#ff7f00", "0xFF7F00", "ff7f00"} {
		c, err := Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		if c != Orange {
			t.Errorf("Parse(%q)=%s", s, c)
		}
	}
	for _, s := range []string{"", "#fff", "zz7f00"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error", s)
		}
	}
}

func TestPolicy(t *testing.T) {
	p := Policy{Palette: palette}
	data := []struct {
		name              string
		state             channel.State
		rudder            bool
		command, opposite bool
		on, off           Color
	}{
		{"gear up settled", channel.Up, false, false, false, Green, Green},
		{"gear up commanded down", channel.Up, false, true, false, Red, Black},
		{"gear down settled", channel.Down, false, false, false, Red, Red},
		{"gear down opposite active", channel.Down, false, false, true, Green, Black},
		{"gear moving down", channel.Moving, false, true, false, Red, Black},
		{"gear moving up", channel.Moving, false, false, false, Green, Black},
		{"rudder up released", channel.Up, true, false, false, Blue, Blue},
		{"rudder up inactive", channel.Up, true, false, true, Violet, Violet},
		{"rudder up held", channel.Up, true, true, false, Orange, Black},
		{"rudder down", channel.Down, true, true, false, Orange, Orange},
		{"rudder moving held", channel.Moving, true, true, true, Orange, Black},
		{"rudder moving released", channel.Moving, true, false, true, Blue, Black},
		{"error", channel.Error, false, false, false, White, Black},
		{"rudder error", channel.Error, true, true, true, White, Black},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			if got := p.Color(line.state, line.rudder, line.command, line.opposite, 0); got != line.on {
				t.Errorf("t=0: %s, expected %s", got, line.on)
			}
			if got := p.Color(line.state, line.rudder, line.command, line.opposite, 250); got != line.off {
				t.Errorf("t=250: %s, expected %s", got, line.off)
			}
		})
	}
}

func TestWithWarning(t *testing.T) {
	if c := WithWarning(Green, Yellow, 0); c != Green {
		t.Fatal(c)
	}
	if c := WithWarning(Green, Yellow, 500); c != Yellow {
		t.Fatal(c)
	}
}

func TestPaletteColors(t *testing.T) {
	p := palette
	c := p.Colors()
	if len(c) != 7 || *c[0] != Green || *c[6] != White {
		t.Fatalf("Colors()=%v", c)
	}
	*c[1] = Black
	if p.GearDown != Black {
		t.Fatal("Colors() must alias the palette")
	}
}

func TestSettled(t *testing.T) {
	p := Policy{Palette: palette}
	data := []struct {
		s                 channel.State
		command, opposite bool
		want              bool
	}{
		{channel.Up, false, true, true},
		{channel.Up, true, false, false},
		{channel.Down, true, false, true},
		{channel.Down, false, true, false},
		{channel.Moving, false, false, false},
		{channel.Error, false, false, false},
	}
	for i, line := range data {
		if got := p.Settled(line.s, line.command, line.opposite); got != line.want {
			t.Errorf("#%d: Settled(%s, %t, %t)=%t", i, line.s, line.command, line.opposite, got)
		}
	}
}
