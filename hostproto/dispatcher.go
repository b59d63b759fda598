// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hostproto

import (
	"errors"
	"fmt"
	"io"
	"log"
)

var (
	// ErrDuplicate is returned when registering a command twice.
	ErrDuplicate = errors.New("hostproto: command already registered")
	// ErrUnknownCommand is returned for a frame with no registered handler.
	ErrUnknownCommand = errors.New("hostproto: unknown command")
)

// Handler processes the payload of a command and returns the payload of the
// response. Returning an error aborts the response.
type Handler func(in []byte) ([]byte, error)

// Dispatcher routes frames to one handler per command byte.
type Dispatcher struct {
	handlers map[byte]Handler
	logger   *log.Logger
}

// NewDispatcher returns an empty dispatcher. A nil logger discards the logs.
func NewDispatcher(logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{handlers: map[byte]Handler{}, logger: logger}
}

// Register adds the handler of cmd.
func (d *Dispatcher) Register(cmd byte, h Handler) error {
	if _, ok := d.handlers[cmd]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, cmd)
	}
	d.handlers[cmd] = h
	return nil
}

// Handle runs the handler of f and returns the response frame.
func (d *Dispatcher) Handle(f Frame) (Frame, error) {
	h, ok := d.handlers[f.Cmd]
	if !ok {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownCommand, f.Cmd)
	}
	out, err := h(f.Payload)
	if err != nil {
		return Frame{}, fmt.Errorf("hostproto: command %q: %w", f.Cmd, err)
	}
	return Frame{Cmd: f.Cmd, Payload: out}, nil
}

// Process decodes line, runs its handler and returns the encoded response.
// An error means no response must be sent.
func (d *Dispatcher) Process(line string) (string, error) {
	f, err := Decode(line)
	if err != nil {
		d.logger.Printf("hostproto: dropping %q: %v", line, err)
		return "", err
	}
	out, err := d.Handle(f)
	if err != nil {
		d.logger.Printf("%v", err)
		return "", err
	}
	return Encode(out)
}
