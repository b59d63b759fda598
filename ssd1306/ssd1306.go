// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1306

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/i2c"
)

const (
	cmdChargePump      = 0x8D
	cmdComScanDec      = 0xC8
	cmdComScanInc      = 0xC0
	cmdDeactScroll     = 0x2E
	cmdDisplayAllOnRes = 0xA4
	cmdDisplayOff      = 0xAE
	cmdDisplayOn       = 0xAF
	cmdInvert          = 0xA7
	cmdMemoryMode      = 0x20
	cmdNormal          = 0xA6
	cmdPageStart       = 0xB0
	cmdSegRemap        = 0xA0
	cmdSegRemapFlip    = 0xA1
	cmdSetComPins      = 0xDA
	cmdSetContrast     = 0x81
	cmdSetClockDiv     = 0xD5
	cmdSetOffset       = 0xD3
	cmdSetHighColumn   = 0x10
	cmdSetLowColumn    = 0x00
	cmdSetMultiplex    = 0xA8
	cmdSetPrecharge    = 0xD9
	cmdSetStartLine    = 0x40
	cmdSetVComDetect   = 0xDB
)

// Control bytes prefixing every I²C write.
const (
	i2cCmd  = 0x00
	i2cData = 0x40
)

// Opts holds the options of the panel.
type Opts struct {
	W int
	H int
	// Addr is the I²C address, 0x3C or 0x3D.
	Addr uint16
	// Flipped rotates the picture by 180°.
	Flipped bool
	// Threshold is the luminance from which a pixel is lit.
	Threshold uint8
}

// DefaultOpts is the 128x64 panel of the maintenance display.
var DefaultOpts = Opts{W: 128, H: 64, Addr: 0x3C, Threshold: 0x80}

// Dev is an open handle to the panel.
type Dev struct {
	d         *i2c.Dev
	rect      image.Rectangle
	threshold uint8
	// buffer holds the GDDRAM content: one byte per column for each band of
	// 8 rows, LSB on top.
	buffer []byte
	next   []byte
	halted bool
}

// NewI2C initializes the panel and clears it.
func NewI2C(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Addr == 0 {
		o.Addr = DefaultOpts.Addr
	}
	if o.Threshold == 0 {
		o.Threshold = DefaultOpts.Threshold
	}
	if o.W < 8 || o.W > 128 || o.W&7 != 0 {
		return nil, fmt.Errorf("ssd1306: invalid width %d", o.W)
	}
	if o.H < 8 || o.H > 64 || o.H&7 != 0 {
		return nil, fmt.Errorf("ssd1306: invalid height %d", o.H)
	}
	d := &Dev{
		d:         &i2c.Dev{Bus: bus, Addr: o.Addr},
		rect:      image.Rect(0, 0, o.W, o.H),
		threshold: o.Threshold,
		buffer:    make([]byte, o.W*o.H/8),
		next:      make([]byte, o.W*o.H/8),
	}
	if err := d.sendCommand(initCmd(&o)); err != nil {
		return nil, err
	}
	// The RAM content is undefined at power on.
	for page := 0; page < o.H/8; page++ {
		if err := d.sendPage(page, 0, o.W); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func initCmd(o *Opts) []byte {
	seg, com := byte(cmdSegRemapFlip), byte(cmdComScanDec)
	if o.Flipped {
		seg, com = cmdSegRemap, cmdComScanInc
	}
	// Alternative COM pin layout, used by the 64 rows panels.
	pins := byte(0x12)
	if o.H == 32 {
		pins = 0x02
	}
	return []byte{
		cmdDisplayOff,
		cmdSetOffset, 0x00,
		cmdSetStartLine,
		seg,
		com,
		cmdSetComPins, pins,
		cmdSetContrast, 0xFF,
		cmdDisplayAllOnRes,
		cmdNormal,
		cmdSetClockDiv, 0xF0,
		cmdChargePump, 0x14,
		cmdSetPrecharge, 0xF1,
		cmdSetVComDetect, 0x40,
		cmdDeactScroll,
		cmdSetMultiplex, byte(o.H - 1),
		// Page addressing mode.
		cmdMemoryMode, 0x02,
		cmdDisplayOn,
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("ssd1306.Dev{%s, %s}", d.d, d.rect.Max)
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.GrayModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw implements display.Drawer. Pixels outside r keep their content.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	copy(d.next, d.buffer)
	w := d.rect.Dx()
	r = r.Intersect(d.rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := y/8*w + x
			bit := byte(1) << uint(y&7)
			g := color.GrayModel.Convert(src.At(sp.X+x-r.Min.X, sp.Y+y-r.Min.Y)).(color.Gray)
			if g.Y >= d.threshold {
				d.next[i] |= bit
			} else {
				d.next[i] &^= bit
			}
		}
	}
	for page := 0; page < d.rect.Dy()/8; page++ {
		row := d.next[page*w : (page+1)*w]
		old := d.buffer[page*w : (page+1)*w]
		if bytes.Equal(row, old) {
			continue
		}
		start, end := 0, w
		for ; row[start] == old[start]; start++ {
		}
		for ; row[end-1] == old[end-1]; end-- {
		}
		copy(old[start:end], row[start:end])
		if err := d.sendPage(page, start, end); err != nil {
			return err
		}
	}
	return nil
}

// Invert swaps lit and unlit pixels.
func (d *Dev) Invert(on bool) error {
	c := byte(cmdNormal)
	if on {
		c = cmdInvert
	}
	return d.sendCommand([]byte{c})
}

// Halt turns the panel off. The next Draw turns it back on.
func (d *Dev) Halt() error {
	if err := d.sendCommand([]byte{cmdDisplayOff}); err != nil {
		return err
	}
	d.halted = true
	return nil
}

// sendPage sends columns [start, end) of a page from the buffer.
func (d *Dev) sendPage(page, start, end int) error {
	err := d.sendCommand([]byte{
		cmdPageStart | byte(page),
		cmdSetLowColumn | byte(start)&0x0F,
		cmdSetHighColumn | byte(start)>>4,
	})
	if err != nil {
		return err
	}
	w := d.rect.Dx()
	return d.d.Tx(append([]byte{i2cData}, d.buffer[page*w+start:page*w+end]...), nil)
}

func (d *Dev) sendCommand(c []byte) error {
	if d.halted {
		c = append([]byte{cmdDisplayOn}, c...)
		d.halted = false
	}
	return d.d.Tx(append([]byte{i2cCmd}, c...), nil)
}

var _ display.Drawer = &Dev{}
