// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hostproto

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Port is the controller end of the link.
type Port interface {
	// Poll returns the next received line without blocking.
	Poll() (string, bool)
	// WriteLine sends a line followed by a line terminator.
	WriteLine(line string) error
}

// Stream is a Port over a byte stream, like a serial port opened in
// blocking mode. Lines are read in the background.
//
// Stream is also an io.Writer so the logs can share the link; writes are
// serialized with WriteLine.
type Stream struct {
	mu    sync.Mutex
	w     io.Writer
	lines chan string
	done  chan struct{}
	once  sync.Once
	err   error
}

// NewStream starts reading lines from rw. Up to depth lines are buffered
// until polled; the reader blocks once the buffer is full.
func NewStream(rw io.ReadWriter, depth int) *Stream {
	if depth <= 0 {
		depth = 1
	}
	s := &Stream{w: rw, lines: make(chan string, depth), done: make(chan struct{})}
	go s.read(rw)
	return s
}

func (s *Stream) read(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	s.mu.Lock()
	s.err = scanner.Err()
	s.mu.Unlock()
}

// Poll implements Port.
func (s *Stream) Poll() (string, bool) {
	select {
	case l := <-s.lines:
		return l, true
	default:
		return "", false
	}
}

// WriteLine implements Port.
func (s *Stream) WriteLine(line string) error {
	_, err := s.Write([]byte(line + "\n"))
	return err
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Err returns the error that stopped the reader, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivering lines. It does not close the underlying stream.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
