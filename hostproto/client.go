// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hostproto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// ErrTimeout is returned by Call when no response arrives.
var ErrTimeout = errors.New("hostproto: no response")

// maxIdleReads bounds the empty reads, each lasting the read timeout of the
// port, waited for a response.
const maxIdleReads = 3

// Client is the host end of the link.
//
// The underlying stream must return from Read after a timeout, as a serial
// port opened with a read timeout does, for Call to give up on a missing
// response.
type Client struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	logger *log.Logger
}

// NewClient returns a client on rw. Log lines received from the controller
// are forwarded to logger; a nil logger discards them.
func NewClient(rw io.ReadWriter, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{w: rw, r: bufio.NewReader(rw), logger: logger}
}

// Call sends a command and waits for its response payload.
func (c *Client) Call(cmd byte, payload []byte) ([]byte, error) {
	line, err := Encode(Frame{Cmd: cmd, Payload: payload})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		return nil, fmt.Errorf("hostproto: %w", err)
	}
	for {
		l, err := c.readLine()
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", cmd, err)
		}
		if strings.HasPrefix(l, LogPrefix) {
			c.logger.Print(strings.TrimSpace(strings.TrimPrefix(l, LogPrefix)))
			continue
		}
		f, err := Decode(l)
		if err != nil {
			return nil, err
		}
		if f.Cmd != cmd {
			return nil, fmt.Errorf("%w: response to %q for command %q", ErrMalformed, f.Cmd, cmd)
		}
		return f.Payload, nil
	}
}

func (c *Client) readLine() (string, error) {
	var b strings.Builder
	for idle := 0; ; {
		s, err := c.r.ReadString('\n')
		b.WriteString(s)
		if err == nil {
			if l := strings.TrimSpace(b.String()); l != "" {
				return l, nil
			}
			b.Reset()
			continue
		}
		if err != io.EOF {
			return "", err
		}
		if s == "" {
			if idle++; idle >= maxIdleReads {
				return "", ErrTimeout
			}
		}
	}
}
