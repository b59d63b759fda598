// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"bytes"
	"fmt"

	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/hostproto"
)

// Caller sends one command and returns the response payload.
// *hostproto.Client implements it.
type Caller interface {
	Call(cmd byte, payload []byte) ([]byte, error)
}

// Client is the typed host side of the commands served by a Controller.
type Client struct {
	c Caller
}

// NewClient returns a client sending its commands through c.
func NewClient(c Caller) *Client {
	return &Client{c: c}
}

func (c *Client) call(cmd byte, in []byte, size int) ([]byte, error) {
	out, err := c.c.Call(cmd, in)
	if err != nil {
		return nil, err
	}
	if size >= 0 && len(out) != size {
		return nil, fmt.Errorf("%w: %q response of %d bytes, expected %d", hostproto.ErrMalformed, cmd, len(out), size)
	}
	return out, nil
}

func (c *Client) callBool(cmd byte, in []byte) (bool, error) {
	out, err := c.call(cmd, in, 1)
	if err != nil {
		return false, err
	}
	return out[0] != 0, nil
}

// Version returns the firmware version string.
func (c *Client) Version() (string, error) {
	out, err := c.call(CmdVersion, nil, -1)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(out, 0); i >= 0 {
		out = out[:i]
	}
	return string(out), nil
}

// Reset restarts the controller.
func (c *Client) Reset() error {
	_, err := c.call(CmdReset, nil, -1)
	return err
}

// Scan reports whether a device acknowledges at addr on the I²C bus.
func (c *Client) Scan(addr uint8) (bool, error) {
	return c.callBool(CmdScan, []byte{addr})
}

// Preferences returns the display preferences.
func (c *Client) Preferences() (Preferences, error) {
	var p Preferences
	out, err := c.call(CmdPreferences, nil, PreferencesSize)
	if err != nil {
		return p, err
	}
	err = p.UnmarshalBinary(out)
	return p, err
}

// SetPreferences stores the display preferences. It returns false if they
// could not be saved.
func (c *Client) SetPreferences(p Preferences) (bool, error) {
	b, err := p.MarshalBinary()
	if err != nil {
		return false, err
	}
	return c.callBool(CmdSetPreferences, b)
}

// ChannelConfig returns the configuration of channel i.
func (c *Client) ChannelConfig(i int) (channel.Config, error) {
	var cfg channel.Config
	out, err := c.call(CmdChannel, []byte{byte(i)}, channel.ConfigSize+1)
	if err != nil {
		return cfg, err
	}
	err = cfg.UnmarshalBinary(out[:channel.ConfigSize])
	return cfg, err
}

// SetChannelConfig stores and applies the configuration of channel i. It
// returns false if it could not be saved.
func (c *Client) SetChannelConfig(i int, cfg channel.Config) (bool, error) {
	b, err := cfg.MarshalBinary()
	if err != nil {
		return false, err
	}
	return c.callBool(CmdSetChannel, append([]byte{byte(i)}, b...))
}

// Telemetry returns a live sample of channel i.
func (c *Client) Telemetry(i int) (Telemetry, error) {
	var t Telemetry
	out, err := c.call(CmdTelemetry, []byte{byte(i)}, TelemetrySize)
	if err != nil {
		return t, err
	}
	err = t.UnmarshalBinary(out)
	return t, err
}

// RelayTest runs the relay test on the given devices, configured or not.
func (c *Client) RelayTest(sensor, expander, sub uint8) (bool, error) {
	return c.callBool(CmdRelayTest, []byte{sensor, expander, sub})
}
