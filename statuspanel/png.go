// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package statuspanel

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
	"periph.io/x/conn/v3/display"
)

// PNG is a display.Drawer saving every frame to a PNG file. It stands in for
// the panel on a workstation.
type PNG struct {
	Path string
	Rect image.Rectangle
	img  *image.RGBA
}

// NewPNG returns a w x h drawer saving to path.
func NewPNG(path string, w, h int) *PNG {
	r := image.Rect(0, 0, w, h)
	return &PNG{Path: path, Rect: r, img: image.NewRGBA(r)}
}

func (p *PNG) String() string {
	return fmt.Sprintf("PNG{%s, %s}", p.Path, p.Rect.Max)
}

// Halt implements display.Drawer.
func (p *PNG) Halt() error {
	return nil
}

// ColorModel implements display.Drawer.
func (p *PNG) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements display.Drawer.
func (p *PNG) Bounds() image.Rectangle {
	return p.Rect
}

// Draw implements display.Drawer.
func (p *PNG) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	if p.img == nil {
		p.img = image.NewRGBA(p.Rect)
	}
	draw.Draw(p.img, r, src, sp, draw.Src)
	return gg.SavePNG(p.Path, p.img)
}

var _ display.Drawer = &PNG{}
