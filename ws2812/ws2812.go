// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ws2812 drives a strip of WS2812 addressable LEDs through the MOSI
// line of a SPI port.
//
// Each data bit is sent as 3 SPI bits at 2.4MHz, 110 for a one and 100 for a
// zero, which meets the 0.4µs/0.85µs timings of the LED. The frame ends with
// a low period that latches the colors.
//
// # Datasheet
//
// https://cdn-shop.adafruit.com/datasheets/WS2812.pdf
package ws2812

import (
	"errors"
	"fmt"
	"image/color"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Frequency is the SPI clock giving 416ns per encoded bit.
const Frequency = 2400 * physic.KiloHertz

// latchBytes of low output is over the 50µs reset time at Frequency.
const latchBytes = 18

// encoded maps a byte to its 24 bits SPI representation.
var encoded [256][3]byte

func init() {
	for v := 0; v < 256; v++ {
		var bits uint32
		for i := 7; i >= 0; i-- {
			bits <<= 3
			if v&(1<<i) != 0 {
				bits |= 0b110
			} else {
				bits |= 0b100
			}
		}
		encoded[v] = [3]byte{byte(bits >> 16), byte(bits >> 8), byte(bits)}
	}
}

// ErrLength is returned by Write for a buffer that is not a whole number of
// pixels or is larger than the strip.
var ErrLength = errors.New("ws2812: invalid buffer length")

// Opts holds the options of a Dev.
type Opts struct {
	// NumPixels is the number of LEDs on the strip.
	NumPixels int
}

// Dev is a handle to a LED strip.
type Dev struct {
	mu     sync.Mutex
	c      spi.Conn
	pixels int
	buf    []byte
}

// New returns a handle to a strip connected to p.
func New(p spi.Port, opts *Opts) (*Dev, error) {
	if opts == nil || opts.NumPixels <= 0 {
		return nil, errors.New("ws2812: NumPixels is required")
	}
	c, err := p.Connect(Frequency, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("ws2812: %w", err)
	}
	return &Dev{c: c, pixels: opts.NumPixels, buf: make([]byte, opts.NumPixels*9+latchBytes)}, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("WS2812{%d}", d.pixels)
}

// NumPixels returns the length of the strip.
func (d *Dev) NumPixels() int {
	return d.pixels
}

// Write sends RGB triplets, starting at the first LED, and latches them.
// LEDs past the end of p are turned off.
func (d *Dev) Write(p []byte) (int, error) {
	if len(p)%3 != 0 || len(p) > d.pixels*3 {
		return 0, fmt.Errorf("%w: %d bytes for %d pixels", ErrLength, len(p), d.pixels)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < d.pixels; i++ {
		var r, g, b byte
		if 3*i < len(p) {
			r, g, b = p[3*i], p[3*i+1], p[3*i+2]
		}
		o := d.buf[9*i:]
		// The LED expects green first.
		copy(o[0:3], encoded[g][:])
		copy(o[3:6], encoded[r][:])
		copy(o[6:9], encoded[b][:])
	}
	if err := d.c.Tx(d.buf, nil); err != nil {
		return 0, fmt.Errorf("ws2812: %w", err)
	}
	return len(p), nil
}

// SetColors sends one color per LED.
func (d *Dev) SetColors(colors []color.Color) error {
	p := make([]byte, 0, 3*len(colors))
	for _, c := range colors {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		p = append(p, n.R, n.G, n.B)
	}
	_, err := d.Write(p)
	return err
}

// Halt turns all the LEDs off.
func (d *Dev) Halt() error {
	_, err := d.Write(nil)
	return err
}
