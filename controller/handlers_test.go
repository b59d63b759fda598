// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/hostproto"
)

func TestHandleVersion(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	got, ok := f.call(t, c, CmdVersion, nil)
	if !ok || len(got) != VersionSize {
		t.Fatalf("%q %t", got, ok)
	}
	if !bytes.HasPrefix(got, []byte(Version+"\x00")) {
		t.Fatalf("%q", got)
	}
}

func TestHandleReset(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	if _, ok := f.call(t, c, CmdReset, nil); !ok {
		t.Fatal("expected a response")
	}
	if f.resets != 1 {
		t.Fatalf("resets=%d", f.resets)
	}
	if err := c.Spin(); err != nil {
		t.Fatal(err)
	}
	if f.resets != 1 {
		t.Fatal("reset must happen once")
	}
}

func TestHandleReset_unsupported(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	o := f.opts()
	o.Reset = nil
	c, err := New(o)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.call(t, c, CmdReset, nil); ok {
		t.Fatal("expected no response")
	}
}

func TestHandleScan(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	for _, line := range []struct {
		addr byte
		want byte
	}{
		{0x20, 1},
		{0x45, 1},
		{0x46, 0},
		{0x27, 0},
	} {
		got, ok := f.call(t, c, CmdScan, []byte{line.addr})
		if !ok || !bytes.Equal(got, []byte{line.want}) {
			t.Fatalf("0x%02x: %v %t", line.addr, got, ok)
		}
	}
	if _, ok := f.call(t, c, CmdScan, nil); ok {
		t.Fatal("expected no response to a short payload")
	}
}

func TestHandlePreferences(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	got, ok := f.call(t, c, CmdPreferences, nil)
	if !ok || !bytes.Equal(got, mustMarshal(t, DefaultPreferences)) {
		t.Fatalf("%x %t", got, ok)
	}

	p := DefaultPreferences
	p.Brightness = 255
	p.Palette.GearUp = 0x123456
	if got, ok := f.call(t, c, CmdSetPreferences, mustMarshal(t, p)); !ok || got[0] != 1 {
		t.Fatalf("%v %t", got, ok)
	}
	if c.Preferences() != p {
		t.Fatalf("%+v", c.Preferences())
	}
	got, ok = f.call(t, c, CmdPreferences, nil)
	if !ok || !bytes.Equal(got, mustMarshal(t, p)) {
		t.Fatalf("%x %t", got, ok)
	}
	if _, ok := f.call(t, c, CmdSetPreferences, []byte{1, 2, 3}); ok {
		t.Fatal("expected no response to a short payload")
	}
}

func TestHandleSetPreferences_storageFailure(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	f.store.FailWrites = true
	if got, ok := f.call(t, c, CmdSetPreferences, mustMarshal(t, DefaultPreferences)); !ok || got[0] != 0 {
		t.Fatalf("%v %t", got, ok)
	}
}

func TestHandleChannel(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	want := append(mustMarshal(t, DefaultChannels(DefaultChannelCount)[3]), 3)
	got, ok := f.call(t, c, CmdChannel, []byte{3})
	if !ok || !bytes.Equal(got, want) {
		t.Fatalf("%x %t", got, ok)
	}
	if _, ok := f.call(t, c, CmdChannel, []byte{DefaultChannelCount}); ok {
		t.Fatal("expected no response to an invalid index")
	}
}

func TestHandleSetChannel(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	cfg := DefaultChannels(DefaultChannelCount)[1]
	cfg.InverseMotor = true
	cfg.MaxCurrent = 30
	if got, ok := f.call(t, c, CmdSetChannel, append([]byte{1}, mustMarshal(t, cfg)...)); !ok || got[0] != 1 {
		t.Fatalf("%v %t", got, ok)
	}
	ch, _ := c.Channel(1)
	if diff := cmp.Diff(cfg, ch.Config()); diff != "" {
		t.Fatalf("applied (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(cfg, c.ChannelConfigs()[1]); diff != "" {
		t.Fatalf("stored (-want +got):\n%s", diff)
	}
}

func TestHandleSetChannel_rejected(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	valid := mustMarshal(t, DefaultChannels(1)[0])
	bad := DefaultChannels(1)[0]
	bad.ExpanderChannel = 2
	data := []struct {
		name    string
		payload []byte
	}{
		{"index", append([]byte{DefaultChannelCount}, valid...)},
		{"index255", append([]byte{255}, valid...)},
		{"sub-channel", append([]byte{0}, mustMarshal(t, bad)...)},
		{"short", valid},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			if _, ok := f.call(t, c, CmdSetChannel, line.payload); ok {
				t.Fatal("expected no response")
			}
			if f.store.Writes() != 0 || f.store.Erases() != 0 {
				t.Fatalf("storage touched: %d writes %d erases", f.store.Writes(), f.store.Erases())
			}
		})
	}
	if diff := cmp.Diff(DefaultChannels(DefaultChannelCount), c.ChannelConfigs()); diff != "" {
		t.Fatalf("channels (-want +got):\n%s", diff)
	}
}

func TestHandleTelemetry(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	f.sensors[0].Set(12*physic.Volt, 1500*physic.MilliAmpere, ina219DefaultShunt)
	f.press(0, true, false)
	got, ok := f.call(t, c, CmdTelemetry, []byte{0})
	if !ok {
		t.Fatal("expected a response")
	}
	var tm Telemetry
	if err := tm.UnmarshalBinary(got); err != nil {
		t.Fatal(err)
	}
	want := Telemetry{Voltage: 12 * physic.Volt, Current: 1500 * physic.MilliAmpere, State: channel.Up, Up: true}
	if tm != want {
		t.Fatalf("%s, expected %s", tm, want)
	}
	if _, ok := f.call(t, c, CmdTelemetry, []byte{DefaultChannelCount}); ok {
		t.Fatal("expected no response to an invalid index")
	}
	f.sensors[0].Missing = true
	if _, ok := f.call(t, c, CmdTelemetry, []byte{0}); ok {
		t.Fatal("expected no response with the sensor lost")
	}
}

func TestHandleRelayTest(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	f.sensors[1].Set(12*physic.Volt, 200*physic.MilliAmpere, ina219DefaultShunt)
	data := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{"pass", []byte{0x40, 0x20, 0}, []byte{1}},
		{"current", []byte{0x41, 0x20, 1}, []byte{0}},
		{"no expander", []byte{0x40, 0x27, 0}, []byte{0}},
		{"no sensor", []byte{0x4f, 0x20, 0}, []byte{0}},
		{"sub-channel", []byte{0x40, 0x20, 2}, nil},
		{"short", []byte{0x40}, nil},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			got, ok := f.call(t, c, CmdRelayTest, line.payload)
			if ok != (line.want != nil) || !bytes.Equal(got, line.want) {
				t.Fatalf("%v %t", got, ok)
			}
		})
	}
}

func TestHandleUnknown(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	if _, ok := f.call(t, c, 'z', nil); ok {
		t.Fatal("expected no response")
	}
	f.host.in = append(f.host.in, "not base64!")
	if err := c.Spin(); err != nil {
		t.Fatal(err)
	}
	if len(f.host.out) != 0 {
		t.Fatalf("%q", f.host.out)
	}
}

// direct is a Caller running the commands on a controller.
type direct struct {
	c *Controller
}

func (d direct) Call(cmd byte, payload []byte) ([]byte, error) {
	r, err := d.c.Dispatcher().Handle(hostproto.Frame{Cmd: cmd, Payload: payload})
	return r.Payload, err
}

func TestClient(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	c := f.boot(t)
	cl := NewClient(direct{c})

	v, err := cl.Version()
	if err != nil || v != Version {
		t.Fatalf("%q %v", v, err)
	}
	if ok, err := cl.Scan(0x21); err != nil || !ok {
		t.Fatalf("%t %v", ok, err)
	}
	p, err := cl.Preferences()
	if err != nil || p != DefaultPreferences {
		t.Fatalf("%+v %v", p, err)
	}
	p.Brightness = 1
	if ok, err := cl.SetPreferences(p); err != nil || !ok {
		t.Fatalf("%t %v", ok, err)
	}
	cfg, err := cl.ChannelConfig(4)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultChannels(DefaultChannelCount)[4], cfg); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	cfg.Bridge = true
	if ok, err := cl.SetChannelConfig(4, cfg); err != nil || !ok {
		t.Fatalf("%t %v", ok, err)
	}
	if _, err := cl.ChannelConfig(DefaultChannelCount); !errors.Is(err, ErrChannelIndex) {
		t.Fatalf("expected index error, got %v", err)
	}
	tm, err := cl.Telemetry(2)
	if err != nil || tm.Voltage != 12*physic.Volt || tm.State != channel.Moving {
		t.Fatalf("%s %v", tm, err)
	}
	if ok, err := cl.RelayTest(0x42, 0x21, 0); err != nil || !ok {
		t.Fatalf("%t %v", ok, err)
	}
	if err := cl.Reset(); err != nil {
		t.Fatal(err)
	}
}

func TestDetect(t *testing.T) {
	f := newFixture()
	f.confirm = nil
	// A third expander with no sensor left for it.
	f.sensors[4].Missing = true
	f.sensors[5].Missing = true
	c, err := New(f.opts())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Boot(); !errors.Is(err, channel.ErrSensorUnreachable) {
		t.Fatalf("expected unreachable sensors, got %v", err)
	}
	old := c.ChannelConfigs()
	cl := NewClient(direct{c})

	var steps []string
	found, err := cl.Detect(DefaultChannelCount, func(s string) { steps = append(steps, s) })
	if err != nil {
		t.Fatal(err)
	}
	var want []channel.Config
	for i := 0; i < 4; i++ {
		want = append(want, WithLimits(channel.Config{
			Enabled:         true,
			SensorAddr:      uint8(FirstSensorAddr + i),
			ExpanderAddr:    uint8(FirstExpanderAddr + i/2),
			ExpanderChannel: uint8(i % 2),
		}, DefaultLimits))
	}
	if diff := cmp.Diff(want, found); diff != "" {
		t.Fatalf("found (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(old, c.ChannelConfigs()); diff != "" {
		t.Fatalf("settings not restored (-want +got):\n%s", diff)
	}
	if len(steps) == 0 || steps[len(steps)-1] != "restoring channel settings" {
		t.Fatalf("%q", steps)
	}
}
