// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/GermanBionicSystems/actuators/channel"
)

// Detect finds which sensor is wired to each expander half of a board with
// n channels and returns a configuration per pairing found, with the
// default limits.
//
// Every channel is disabled while the relays are tested so no motor moves,
// then the previous configurations are restored. progress, if not nil, is
// called at each step.
func (c *Client) Detect(n int, progress func(string)) (found []channel.Config, err error) {
	if progress == nil {
		progress = func(string) {}
	}
	progress("scanning current sensors")
	sensors, err := c.scan(FirstSensorAddr, LastSensorAddr)
	if err != nil {
		return nil, err
	}
	progress("scanning IO expanders")
	expanders, err := c.scan(FirstExpanderAddr, LastExpanderAddr)
	if err != nil {
		return nil, err
	}

	progress("saving channel settings")
	old := make([]channel.Config, n)
	for i := range old {
		if old[i], err = c.ChannelConfig(i); err != nil {
			return nil, err
		}
	}
	defer func() {
		progress("restoring channel settings")
		for i, cfg := range old {
			if ok, rerr := c.SetChannelConfig(i, cfg); rerr != nil || !ok {
				err = multierr.Append(err, fmt.Errorf("controller: restoring channel %d: ok=%t %w", i, ok, rerr))
			}
		}
	}()
	progress("disabling channels")
	for i := range old {
		if _, err := c.SetChannelConfig(i, channel.Config{}); err != nil {
			return nil, err
		}
	}

	progress("testing relays")
	for _, e := range expanders {
		for sub := uint8(0); sub < 2; sub++ {
			for j, s := range sensors {
				ok, err := c.RelayTest(s, e, sub)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				found = append(found, WithLimits(channel.Config{
					Enabled:         true,
					SensorAddr:      s,
					ExpanderAddr:    e,
					ExpanderChannel: sub,
				}, DefaultLimits))
				sensors = append(sensors[:j], sensors[j+1:]...)
				break
			}
		}
	}
	return found, nil
}

func (c *Client) scan(first, last uint8) ([]uint8, error) {
	var out []uint8
	for a := first; a <= last; a++ {
		ok, err := c.Scan(a)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, nil
}
