// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the CRC-16 that guards persisted records and host frames.
package common

// CRC16 calculates the CRC-16/MCRF4XX (reflected CCITT polynomial, initial
// value 0xffff, no final xor) of the byte slice parameter. It is the same
// checksum Klipper uses on its serial frames.
func CRC16(bytes []byte) uint16 {
	crc := uint16(0xffff)
	for _, val := range bytes {
		val ^= byte(crc & 0xff)
		val ^= val << 4
		v := uint16(val)
		crc = (v<<8 | crc>>8) ^ (v >> 4) ^ (v << 3)
	}
	return crc
}
