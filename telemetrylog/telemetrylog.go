// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetrylog records channel telemetry polled by the host tool in
// a SQLite database.
package telemetrylog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	_ "modernc.org/sqlite"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/controller"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS telemetry (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    channel INTEGER NOT NULL,
    voltage_mv INTEGER NOT NULL,
    current_ma INTEGER NOT NULL,
    state INTEGER NOT NULL,
    up INTEGER NOT NULL,
    down INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS telemetry_channel ON telemetry (channel, timestamp);`

const timeFormat = "2006-01-02 15:04:05.000"

// Sample is one telemetry reading of a channel.
type Sample struct {
	Time    time.Time
	Channel int
	controller.Telemetry
}

// Recorder appends samples to a database.
type Recorder struct {
	db     *sql.DB
	insert *sql.Stmt
	logger *log.Logger
}

// Open opens or creates the database at path. A nil logger discards the
// logs.
func Open(path string, logger *log.Logger) (*Recorder, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetrylog: %w", err)
	}
	// The driver serializes writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetrylog: creating table in %s: %w", path, err)
	}
	insert, err := db.Prepare("INSERT INTO telemetry(timestamp, channel, voltage_mv, current_ma, state, up, down) VALUES(?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetrylog: %w", err)
	}
	logger.Printf("telemetrylog: recording to %s", path)
	return &Recorder{db: db, insert: insert, logger: logger}, nil
}

// Record appends s.
func (r *Recorder) Record(ctx context.Context, s Sample) error {
	_, err := r.insert.ExecContext(ctx,
		s.Time.UTC().Format(timeFormat),
		s.Channel,
		int64(s.Voltage/physic.MilliVolt),
		int64(s.Current/physic.MilliAmpere),
		int(s.State),
		s.Up,
		s.Down,
	)
	if err != nil {
		return fmt.Errorf("telemetrylog: %w", err)
	}
	return nil
}

// Run records the samples received until samples is closed or ctx is
// canceled. Failed inserts are logged and dropped.
func (r *Recorder) Run(ctx context.Context, samples <-chan Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			if err := r.Record(ctx, s); err != nil {
				r.logger.Printf("%v", err)
			}
		}
	}
}

// Samples returns the samples of channel ch recorded at or after since, in
// chronological order.
func (r *Recorder) Samples(ctx context.Context, ch int, since time.Time) ([]Sample, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT timestamp, voltage_mv, current_ma, state, up, down FROM telemetry WHERE channel = ? AND timestamp >= ? ORDER BY timestamp, id",
		ch, since.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("telemetrylog: %w", err)
	}
	defer rows.Close()
	var out []Sample
	for rows.Next() {
		var ts string
		var mv, ma int64
		var state int
		s := Sample{Channel: ch}
		if err := rows.Scan(&ts, &mv, &ma, &state, &s.Up, &s.Down); err != nil {
			return nil, fmt.Errorf("telemetrylog: %w", err)
		}
		if s.Time, err = time.Parse(timeFormat, ts); err != nil {
			return nil, fmt.Errorf("telemetrylog: %w", err)
		}
		s.Voltage = physic.ElectricPotential(mv) * physic.MilliVolt
		s.Current = physic.ElectricCurrent(ma) * physic.MilliAmpere
		s.State = channel.State(state)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Recorder) Close() error {
	r.insert.Close()
	return r.db.Close()
}
