// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ina219 controls a Texas Instruments INA219 bidirectional current and
// bus voltage monitor over an i2c bus.
//
// Current is derived from the shunt voltage register and the sense resistor
// value, so the device calibration register is left at its power-on value.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/ina219.pdf
package ina219
