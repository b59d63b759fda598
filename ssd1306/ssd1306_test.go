// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1306

import (
	"image"
	"image/color"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

func initOps(o *Opts) []i2ctest.IO {
	ops := []i2ctest.IO{{Addr: o.Addr, W: append([]byte{i2cCmd}, initCmd(o)...)}}
	for page := 0; page < o.H/8; page++ {
		ops = append(ops,
			i2ctest.IO{Addr: o.Addr, W: []byte{i2cCmd, cmdPageStart | byte(page), 0x00, 0x10}},
			i2ctest.IO{Addr: o.Addr, W: append([]byte{i2cData}, make([]byte, o.W)...)},
		)
	}
	return ops
}

func TestNewI2C_invalidSize(t *testing.T) {
	for _, o := range []Opts{{W: 130, H: 64}, {W: 128, H: 12}, {W: 0, H: 64}} {
		if _, err := NewI2C(&i2ctest.Playback{}, &o); err == nil {
			t.Fatalf("%+v: expected error", o)
		}
	}
}

func TestDraw(t *testing.T) {
	o := DefaultOpts
	ops := initOps(&o)
	ops = append(ops,
		// One pixel lit at (3, 9).
		i2ctest.IO{Addr: 0x3c, W: []byte{i2cCmd, 0xB1, 0x03, 0x10}},
		i2ctest.IO{Addr: 0x3c, W: []byte{i2cData, 0x02}},
		// Halt.
		i2ctest.IO{Addr: 0x3c, W: []byte{i2cCmd, 0xAE}},
		// Pixel cleared, display turned back on.
		i2ctest.IO{Addr: 0x3c, W: []byte{i2cCmd, 0xAF, 0xB1, 0x03, 0x10}},
		i2ctest.IO{Addr: 0x3c, W: []byte{i2cData, 0x00}},
	)
	bus := &i2ctest.Playback{Ops: ops}
	d, err := NewI2C(bus, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.ColorModel() != color.GrayModel || d.Bounds() != image.Rect(0, 0, 128, 64) {
		t.Fatal(d.Bounds())
	}
	img := image.NewGray(d.Bounds())
	img.SetGray(3, 9, color.Gray{Y: 0xFF})
	if err := d.Draw(d.Bounds(), img, image.Point{}); err != nil {
		t.Fatal(err)
	}
	// Unchanged frames are not sent.
	if err := d.Draw(d.Bounds(), img, image.Point{}); err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	img.SetGray(3, 9, color.Gray{Y: 0x7F})
	if err := d.Draw(d.Bounds(), img, image.Point{}); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDraw_subRect(t *testing.T) {
	o := Opts{W: 128, H: 32, Addr: 0x3d}
	ops := initOps(&o)
	ops = append(ops,
		// A 2x2 white square drawn at (10, 7) spans pages 0 and 1.
		i2ctest.IO{Addr: 0x3d, W: []byte{i2cCmd, 0xB0, 0x0A, 0x10}},
		i2ctest.IO{Addr: 0x3d, W: []byte{i2cData, 0x80, 0x80}},
		i2ctest.IO{Addr: 0x3d, W: []byte{i2cCmd, 0xB1, 0x0A, 0x10}},
		i2ctest.IO{Addr: 0x3d, W: []byte{i2cData, 0x01, 0x01}},
	)
	bus := &i2ctest.Playback{Ops: ops}
	d, err := NewI2C(bus, &o)
	if err != nil {
		t.Fatal(err)
	}
	src := image.NewUniform(color.White)
	if err := d.Draw(image.Rect(10, 7, 12, 9), src, image.Point{}); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}
