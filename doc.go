// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package actuators is a container for the actuator board firmware and its
// host tooling.
//
// The board runs up to six motor channels, each made of an INA219 current
// sensor and half of a PCF8574 expander, and shows their state on a WS2812
// strip. See package controller for the control loop, package channel for a
// single channel and package hostproto for the serial link to the host.
//
// The binaries are cmd/actuatord, which runs the controller on a Linux host,
// and cmd/actuatorctl, the host side tool.
package actuators
