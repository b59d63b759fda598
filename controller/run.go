// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Run calls Spin every period until ctx is canceled, then stops the motors.
// Spin errors are logged, not returned.
func (c *Controller) Run(ctx context.Context, period time.Duration) error {
	t := time.NewTicker(period)
	defer t.Stop()
	var last string
	for {
		if err := c.Spin(); err != nil {
			if s := err.Error(); s != last {
				c.opts.Logger.Printf("controller: %v", err)
				last = s
			}
		} else {
			last = ""
		}
		select {
		case <-ctx.Done():
			return multierr.Append(ctx.Err(), c.Close())
		case <-t.C:
		}
	}
}
