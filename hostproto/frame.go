// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hostproto implements the line protocol spoken between the
// controller and the host tool over a serial link.
//
// Each line is the standard base64 encoding of a frame:
//
//	| cmd | len | payload (len bytes) | crc16 big endian |
//
// The CRC is the CRC-16/MCRF4XX of cmd, len and payload. A request with a
// zero CRC field is accepted without verification, as sent by early host
// tools. Responses always carry the CRC.
//
// Lines starting with LogPrefix are log output interleaved by the controller
// and are skipped by the Client.
package hostproto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/GermanBionicSystems/actuators/common"
)

// MaxPayload is the largest payload a frame can carry.
const MaxPayload = 255

// LogPrefix starts the log lines sharing the link with frames.
const LogPrefix = "LOG:"

var (
	// ErrMalformed is returned for a line that does not decode to a frame.
	ErrMalformed = errors.New("hostproto: malformed frame")
	// ErrChecksum is returned for a frame with a wrong non-zero CRC.
	ErrChecksum = errors.New("hostproto: checksum mismatch")
)

// Frame is a decoded command or response.
type Frame struct {
	Cmd     byte
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("%c[%x]", f.Cmd, f.Payload)
}

// Encode returns the base64 line for f, without line terminator.
func Encode(f Frame) (string, error) {
	if len(f.Payload) > MaxPayload {
		return "", fmt.Errorf("hostproto: payload of %d bytes", len(f.Payload))
	}
	b := make([]byte, 0, len(f.Payload)+4)
	b = append(b, f.Cmd, byte(len(f.Payload)))
	b = append(b, f.Payload...)
	crc := common.CRC16(b)
	b = append(b, byte(crc>>8), byte(crc))
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode parses a line. Surrounding white space is ignored.
func Decode(line string) (Frame, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(b) < 4 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	n := int(b[1])
	if len(b) != n+4 {
		return Frame{}, fmt.Errorf("%w: length field %d for %d bytes", ErrMalformed, n, len(b))
	}
	crc := uint16(b[n+2])<<8 | uint16(b[n+3])
	if crc != 0 {
		if want := common.CRC16(b[:n+2]); crc != want {
			return Frame{}, fmt.Errorf("%w: 0x%04x, expected 0x%04x", ErrChecksum, crc, want)
		}
	}
	return Frame{Cmd: b[0], Payload: bytes.Clone(b[2 : n+2])}, nil
}
