// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package screen1d emulates the status LED strip on a terminal using ANSI
// color codes.
//
// It accepts the same stream of RGB triplets as the ws2812 driver, so the
// controller can run on a development machine with the strip replaced by
// one line of the console.
package screen1d

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// ErrLength is returned by Write for a buffer that is not a whole number of
// pixels or is larger than the strip.
var ErrLength = errors.New("screen1d: invalid RGB stream length")

// Opts represents the options available for this display.
type Opts struct {
	// X is the number of LEDs.
	X int
	// Palette defaults to ansi256.Default.
	Palette *ansi256.Palette
	// W defaults to a colorable stdout.
	W io.Writer
	// Labels are printed before each LED, usually the channel names.
	Labels []string
}

// Dev is a LED strip emulator that outputs to the console.
type Dev struct {
	w       io.Writer
	l       int
	palette ansi256.Palette
	labels  []string

	pixels []byte
	buf    bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Dev{
		w:       w,
		l:       opts.X,
		palette: *p,
		labels:  opts.Labels,
		pixels:  make([]byte, 3*opts.X),
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("Screen1D{%d}", d.l)
}

// Halt implements conn.Resource.
//
// It resets the terminal colors and moves to the next line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Write accepts a stream of raw RGB pixels and redraws the line. LEDs past
// the end of pixels are turned off.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 || len(pixels) > len(d.pixels) {
		return 0, fmt.Errorf("%w: %d bytes for %d LEDs", ErrLength, len(pixels), d.l)
	}
	n := copy(d.pixels, pixels)
	clear(d.pixels[n:])
	if err := d.refresh(); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: d.l, Y: 1}}
}

// Draw implements display.Drawer. Only the first row of src is used.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	for x := r.Min.X; x < r.Max.X; x++ {
		c := color.NRGBAModel.Convert(src.At(sp.X+x-r.Min.X, sp.Y)).(color.NRGBA)
		d.pixels[3*x] = c.R
		d.pixels[3*x+1] = c.G
		d.pixels[3*x+2] = c.B
	}
	return d.refresh()
}

func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < d.l; i++ {
		if i < len(d.labels) {
			_, _ = d.buf.WriteString(d.labels[i])
		}
		c := color.NRGBA{d.pixels[3*i], d.pixels[3*i+1], d.pixels[3*i+2], 255}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
		_, _ = d.buf.WriteString("\033[0m ")
	}
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ display.Drawer = &Dev{}
var _ io.Writer = &Dev{}
