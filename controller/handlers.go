// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/hostproto"
)

// Host commands.
const (
	CmdVersion        = 'v'
	CmdReset          = 'r'
	CmdScan           = 's'
	CmdPreferences    = 'u'
	CmdSetPreferences = 'U'
	CmdChannel        = 'c'
	CmdSetChannel     = 'C'
	CmdTelemetry      = 'm'
	CmdRelayTest      = 't'
)

func (c *Controller) registerHandlers() error {
	for _, h := range []struct {
		cmd byte
		fn  hostproto.Handler
	}{
		{CmdVersion, c.handleVersion},
		{CmdReset, c.handleReset},
		{CmdScan, c.handleScan},
		{CmdPreferences, c.handlePreferences},
		{CmdSetPreferences, c.handleSetPreferences},
		{CmdChannel, c.handleChannel},
		{CmdSetChannel, c.handleSetChannel},
		{CmdTelemetry, c.handleTelemetry},
		{CmdRelayTest, c.handleRelayTest},
	} {
		if err := c.dispatch.Register(h.cmd, h.fn); err != nil {
			return err
		}
	}
	return nil
}

func checkLen(in []byte, n int) error {
	if len(in) != n {
		return fmt.Errorf("payload of %d bytes, expected %d", len(in), n)
	}
	return nil
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

func (c *Controller) index(b byte) (*channel.Controller, error) {
	return c.Channel(int(b))
}

func (c *Controller) handleVersion(in []byte) ([]byte, error) {
	out := make([]byte, VersionSize)
	copy(out[:VersionSize-1], Version)
	return out, nil
}

func (c *Controller) handleReset(in []byte) ([]byte, error) {
	if c.opts.Reset == nil {
		return nil, errors.New("reset not supported")
	}
	c.opts.Logger.Printf("controller: reset requested")
	c.reset = true
	return nil, nil
}

func (c *Controller) handleScan(in []byte) ([]byte, error) {
	if err := checkLen(in, 1); err != nil {
		return nil, err
	}
	d := i2c.Dev{Bus: c.opts.Bus, Addr: uint16(in[0])}
	err := d.Tx(nil, make([]byte, 1))
	return boolByte(err == nil), nil
}

func (c *Controller) handlePreferences(in []byte) ([]byte, error) {
	return c.prefs.Get().MarshalBinary()
}

func (c *Controller) handleSetPreferences(in []byte) ([]byte, error) {
	var p Preferences
	if err := p.UnmarshalBinary(in); err != nil {
		return nil, err
	}
	c.prefs.Set(p)
	c.policy.Palette = p.Palette
	if err := c.prefs.Save(); err != nil {
		c.opts.Logger.Printf("controller: %v", err)
		return boolByte(false), nil
	}
	return boolByte(true), nil
}

func (c *Controller) handleChannel(in []byte) ([]byte, error) {
	if err := checkLen(in, 1); err != nil {
		return nil, err
	}
	if _, err := c.index(in[0]); err != nil {
		return nil, err
	}
	b, err := c.configs.Get()[in[0]].MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(b, in[0]), nil
}

func (c *Controller) handleSetChannel(in []byte) ([]byte, error) {
	if err := checkLen(in, 1+channel.ConfigSize); err != nil {
		return nil, err
	}
	i := in[0]
	if _, err := c.index(i); err != nil {
		return nil, err
	}
	var cfg channel.Config
	if err := cfg.UnmarshalBinary(in[1:]); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	configs := c.ChannelConfigs()
	configs[i] = cfg
	c.configs.Set(configs)
	ok := true
	if err := c.configs.Save(); err != nil {
		c.opts.Logger.Printf("controller: %v", err)
		ok = false
	}
	if err := c.apply(); err != nil {
		c.opts.Logger.Printf("controller: %v", err)
	}
	return boolByte(ok), nil
}

func (c *Controller) handleTelemetry(in []byte) ([]byte, error) {
	if err := checkLen(in, 1); err != nil {
		return nil, err
	}
	ch, err := c.index(in[0])
	if err != nil {
		return nil, err
	}
	p, err := ch.PowerStatus()
	if err != nil {
		return nil, err
	}
	t := Telemetry{Voltage: p.Voltage, Current: p.Current, State: ch.State()}
	t.Up, t.Down, _ = ch.Switches()
	return t.MarshalBinary()
}

// handleRelayTest runs the relay test on devices that are not part of the
// configuration yet, to commission a channel.
func (c *Controller) handleRelayTest(in []byte) ([]byte, error) {
	if err := checkLen(in, 3); err != nil {
		return nil, err
	}
	cfg := WithLimits(channel.Config{
		Enabled:         true,
		SensorAddr:      in[0],
		ExpanderAddr:    in[1],
		ExpanderChannel: in[2],
	}, DefaultLimits)
	ch := channel.New(c.opts.Bus, &channel.Opts{Name: "test", Sleep: c.opts.Sleep, Logger: c.opts.Logger})
	if err := ch.SetConfig(cfg); err != nil {
		if errors.Is(err, channel.ErrInvalidSubChannel) {
			return nil, err
		}
		return boolByte(false), nil
	}
	return boolByte(ch.RelaysTest() == nil), nil
}
