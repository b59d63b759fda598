// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ssd1306 drives the monochrome OLED panel of the actuator board
// maintenance display over I²C.
//
// Draw accepts any image and thresholds its luminance. Only the pages that
// changed since the previous Draw are sent, since a full 128x64 frame takes
// about 100ms on a 100kHz bus.
//
// # Datasheet
//
// https://cdn-shop.adafruit.com/datasheets/SSD1306.pdf
package ssd1306
