// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"fmt"
	"time"

	"github.com/GermanBionicSystems/actuators/statuscolor"
)

// calibrate shows each calibration level on the whole strip until Confirm
// is pressed. The confirmed level is saved as the brightness; without
// confirmation the brightness is left unchanged.
func (c *Controller) calibrate() error {
	if c.opts.Confirm == nil || len(c.opts.CalibrationLevels) == 0 {
		return nil
	}
	for _, level := range c.opts.CalibrationLevels {
		c.fill(statuscolor.ScaleBrightness(statuscolor.White, level))
		if err := c.flush(); err != nil {
			return err
		}
		if !c.waitConfirm(c.opts.CalibrationStep) {
			continue
		}
		p := c.prefs.Get()
		p.Brightness = level
		c.prefs.Set(p)
		c.opts.Logger.Printf("controller: brightness set to %d", level)
		if err := c.prefs.Save(); err != nil {
			return fmt.Errorf("controller: saving brightness: %w", err)
		}
		return nil
	}
	return nil
}

// diagnostics cycles the strip through the palette, at full brightness so
// every LED segment can be checked. Each color is shown until Confirm is
// pressed or DiagnosticStep elapses.
func (c *Controller) diagnostics() error {
	colors := []statuscolor.Color{statuscolor.Red, statuscolor.Green, statuscolor.Blue, statuscolor.White}
	for _, col := range c.policy.Palette.Colors() {
		colors = append(colors, *col)
	}
	for _, col := range colors {
		c.fill(col)
		if err := c.flush(); err != nil {
			return err
		}
		c.waitConfirm(c.opts.DiagnosticStep)
	}
	return nil
}

// waitConfirm polls Confirm for up to d and reports whether it was pressed.
func (c *Controller) waitConfirm(d time.Duration) bool {
	for elapsed := time.Duration(0); elapsed < d; elapsed += confirmPoll {
		if active(c.opts.Confirm, false) {
			return true
		}
		c.opts.Sleep(confirmPoll)
	}
	return active(c.opts.Confirm, false)
}
