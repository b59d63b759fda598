// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package statuspanel renders the status of the actuator channels as text on
// a small monochrome panel, for maintenance.
package statuspanel

import (
	"fmt"
	"image"
	"image/color"
	"slices"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/display"

	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/controller"
)

// Opts holds the options of a Panel.
type Opts struct {
	// Size is the font size in points. Defaults to 9, which fits six
	// channels on a 64 pixels high panel.
	Size float64
}

// Panel shows the channels status on a display.
type Panel struct {
	d     display.Drawer
	face  font.Face
	lines []string
	img   image.Image
}

// New returns a panel drawing on d.
func New(d display.Drawer, opts *Opts) (*Panel, error) {
	size := 9.0
	if opts != nil && opts.Size > 0 {
		size = opts.Size
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("statuspanel: %w", err)
	}
	face := truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingFull})
	return &Panel{d: d, face: face}, nil
}

// Show draws the status. Nothing is sent to the display when the text did
// not change.
func (p *Panel) Show(st []controller.Status) error {
	lines := Lines(st)
	if p.img != nil && slices.Equal(lines, p.lines) {
		return nil
	}
	img := Render(lines, p.d.Bounds(), p.face)
	if err := p.d.Draw(p.d.Bounds(), img, image.Point{}); err != nil {
		return fmt.Errorf("statuspanel: %w", err)
	}
	p.lines = lines
	p.img = img
	return nil
}

// Image returns the last image drawn, or nil.
func (p *Panel) Image() image.Image {
	return p.img
}

// Halt turns the display off.
func (p *Panel) Halt() error {
	return p.d.Halt()
}

// Lines returns one line of text per channel: name, role, state and the
// abbreviated faults and warnings.
func Lines(st []controller.Status) []string {
	out := make([]string, 0, len(st))
	for _, s := range st {
		if !s.Enabled {
			out = append(out, s.Name+" off")
			continue
		}
		role := "gear"
		if s.Rudder {
			role = "rudr"
		}
		l := fmt.Sprintf("%s %s %s", s.Name, role, s.State)
		if flags := abbrev(s.Faults, s.Warnings); flags != "" {
			l += " " + flags
		}
		out = append(out, l)
	}
	return out
}

var (
	faultNames   = []string{"INA", "PCF", "RLY"}
	warningNames = []string{"HiZ", "LoZ", "LoV", "HiV"}
)

func abbrev(f channel.Faults, w channel.Warnings) string {
	var out []string
	for i, n := range faultNames {
		if f&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	for i, n := range warningNames {
		if w&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return strings.Join(out, " ")
}

// Render draws lines in white on black, evenly spaced over r.
func Render(lines []string, r image.Rectangle, face font.Face) image.Image {
	dc := gg.NewContext(r.Dx(), r.Dy())
	dc.SetColor(color.Black)
	dc.Clear()
	if len(lines) == 0 {
		return dc.Image()
	}
	dc.SetColor(color.White)
	dc.SetFontFace(face)
	step := float64(r.Dy()) / float64(len(lines))
	for i, l := range lines {
		dc.DrawStringAnchored(l, 1, step*(float64(i)+0.5), 0, 0.5)
	}
	return dc.Image()
}
