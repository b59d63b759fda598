// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina219

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func TestNew(t *testing.T) {
	bus := &i2ctest.Playback{}
	defer bus.Close()
	for _, tc := range []struct {
		name     string
		opts     *Opts
		wantAddr uint16
		wantErr  error
	}{
		{name: "nil opts", opts: nil, wantAddr: DefaultAddress},
		{name: "custom", opts: &Opts{Address: 0x45, SenseResistor: 10 * physic.MilliOhm}, wantAddr: 0x45},
		{name: "zero address", opts: &Opts{SenseResistor: physic.Ohm}, wantAddr: DefaultAddress},
		{name: "no resistor", opts: &Opts{Address: 0x41}, wantErr: ErrInvalidResistor},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := New(bus, tc.opts)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("New() error=%v want %v", err, tc.wantErr)
			}
			if err == nil && d.Addr() != tc.wantAddr {
				t.Errorf("Addr()=0x%x want 0x%x", d.Addr(), tc.wantAddr)
			}
		})
	}
}

func TestSense(t *testing.T) {
	for _, tc := range []struct {
		name  string
		bus   []byte
		shunt []byte
		wantV physic.ElectricPotential
		wantI physic.ElectricCurrent
	}{
		{
			name:  "12V 50mA",
			bus:   []byte{0x5d, 0xc2},
			shunt: []byte{0x00, 0xfa},
			wantV: 12 * physic.Volt,
			wantI: 50 * physic.MilliAmpere,
		},
		{
			name:  "reverse current",
			bus:   []byte{0x5d, 0xc0},
			shunt: []byte{0xff, 0x06},
			wantV: 12 * physic.Volt,
			wantI: -50 * physic.MilliAmpere,
		},
		{
			name:  "idle",
			bus:   []byte{0x00, 0x00},
			shunt: []byte{0x00, 0x00},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bus := &i2ctest.Playback{Ops: []i2ctest.IO{
				{Addr: DefaultAddress, W: []byte{regBusVoltage}, R: tc.bus},
				{Addr: DefaultAddress, W: []byte{regShuntVoltage}, R: tc.shunt},
			}}
			defer bus.Close()
			d, err := New(bus, &DefaultOpts)
			if err != nil {
				t.Fatal(err)
			}
			p, err := d.Sense()
			if err != nil {
				t.Fatal(err)
			}
			if p.Voltage != tc.wantV {
				t.Errorf("Voltage=%s want %s", p.Voltage, tc.wantV)
			}
			if p.Current != tc.wantI {
				t.Errorf("Current=%s want %s", p.Current, tc.wantI)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x44, W: []byte{regConfig}, R: []byte{0x39, 0x9f}},
	}}
	defer bus.Close()
	d, err := New(bus, &Opts{Address: 0x44, SenseResistor: DefaultSenseResistor})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Probe(); err != nil {
		t.Fatal(err)
	}
}

func TestProbeFailure(t *testing.T) {
	d, err := New(&i2ctest.Playback{DontPanic: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Probe(); err == nil {
		t.Error("expected error probing an absent device")
	}
	if _, err := d.Sense(); err == nil {
		t.Error("expected error sensing an absent device")
	}
}
