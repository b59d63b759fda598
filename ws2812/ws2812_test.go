// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ws2812

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/spi/spitest"
)

func TestEncoding(t *testing.T) {
	data := []struct {
		v    byte
		want [3]byte
	}{
		// 100 100 100 100 100 100 100 100
		{0x00, [3]byte{0x92, 0x49, 0x24}},
		// 110 110 110 110 110 110 110 110
		{0xFF, [3]byte{0xDB, 0x6D, 0xB6}},
		// 110 100 100 100 100 100 100 100
		{0x80, [3]byte{0xD2, 0x49, 0x24}},
	}
	for _, line := range data {
		if encoded[line.v] != line.want {
			t.Errorf("encoded[0x%02x]=%x, expected %x", line.v, encoded[line.v], line.want)
		}
	}
}

func frame(grb ...byte) []byte {
	var out []byte
	for _, v := range grb {
		out = append(out, encoded[v][:]...)
	}
	return append(out, make([]byte, latchBytes)...)
}

func TestWrite(t *testing.T) {
	record := &spitest.Record{}
	d, err := New(record, &Opts{NumPixels: 2})
	if err != nil {
		t.Fatal(err)
	}
	if n, err := d.Write([]byte{0xFF, 0x80, 0x00}); err != nil || n != 3 {
		t.Fatalf("Write()=%d, %v", n, err)
	}
	if len(record.Ops) != 1 {
		t.Fatalf("%d transactions", len(record.Ops))
	}
	// Green first, the second pixel is off.
	if want := frame(0x80, 0xFF, 0x00, 0, 0, 0); !bytes.Equal(record.Ops[0].W, want) {
		t.Fatalf("wrote %x\nexpected %x", record.Ops[0].W, want)
	}
}

func TestSetColors(t *testing.T) {
	record := &spitest.Record{}
	d, err := New(record, &Opts{NumPixels: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetColors([]color.Color{color.NRGBA{R: 1, G: 2, B: 3, A: 0xFF}}); err != nil {
		t.Fatal(err)
	}
	if want := frame(2, 1, 3); !bytes.Equal(record.Ops[0].W, want) {
		t.Fatalf("wrote %x\nexpected %x", record.Ops[0].W, want)
	}
}

func TestWriteLength(t *testing.T) {
	pb := &spitest.Playback{Playback: conntest.Playback{}}
	defer pb.Close()
	d, err := New(pb, &Opts{NumPixels: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range []int{2, 6} {
		if _, err := d.Write(make([]byte, l)); !errors.Is(err, ErrLength) {
			t.Errorf("Write(%d bytes): expected ErrLength, got %v", l, err)
		}
	}
	if _, err := New(pb, nil); err == nil {
		t.Fatal("expected error without NumPixels")
	}
}
