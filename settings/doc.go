// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package settings persists fixed-size records in sector-erased nonvolatile
// memory, like a SPI NOR flash.
//
// A record is stored at a fixed address as its encoded value followed by a
// 16 bits little endian integrity marker. By default the marker is the
// CRC-16/MCRF4XX of the encoded value. ZeroMarker selects the legacy format
// where the marker is always zero; it only tells a written record from
// erased memory and does not detect corruption.
//
// Saving is not atomic. Save erases the sectors holding the record before
// writing it; if the write fails or power is lost in between, the stored
// record is gone and the next Load returns ErrIntegrity. Callers must be
// ready to fall back to defaults.
package settings
