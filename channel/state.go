// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package channel

import "strings"

// State is the operating state derived from the two limit switches.
type State uint8

const (
	Up State = iota
	Down
	Moving
	// Error is reported when both switches are asserted or the channel
	// cannot be read.
	Error
)

func (s State) String() string {
	switch s {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Moving:
		return "Moving"
	case Error:
		return "Error"
	}
	return "State(?)"
}

// stateOf maps the asserted limit switches to a State.
func stateOf(up, down bool) State {
	switch {
	case up && !down:
		return Up
	case !up && down:
		return Down
	case !up && !down:
		return Moving
	}
	return Error
}

// Faults is the set of communication and hardware faults of a channel.
type Faults uint8

const (
	SensorUnreachable Faults = 1 << iota
	ExpanderUnreachable
	// RelayFault is latched by a failed relay test until the channel is
	// configured again.
	RelayFault
)

// Has reports whether all the faults in f are set.
func (f Faults) Has(x Faults) bool {
	return f&x == x
}

func (f Faults) String() string {
	return flagString(uint8(f), []string{"SensorUnreachable", "ExpanderUnreachable", "RelayFault"})
}

// Warnings is the set of diagnostic warnings of a channel. Warnings stay set
// until the channel is configured again.
type Warnings uint8

const (
	HighImpedance Warnings = 1 << iota
	LowImpedance
	LowVoltage
	HighVoltage
)

// Has reports whether all the warnings in w are set.
func (w Warnings) Has(x Warnings) bool {
	return w&x == x
}

func (w Warnings) String() string {
	return flagString(uint8(w), []string{"HighImpedance", "LowImpedance", "LowVoltage", "HighVoltage"})
}

func flagString(v uint8, names []string) string {
	if v == 0 {
		return "0"
	}
	var out []string
	for i, n := range names {
		if v&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return strings.Join(out, "|")
}
