// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"

	"github.com/GermanBionicSystems/actuators/controller"
)

// config is the daemon configuration. It is loaded from the YAML file passed
// with -config, then the flags given on the command line override it.
type config struct {
	Fake       bool          `yaml:"fake"`
	I2C        string        `yaml:"i2c"`
	Strip      string        `yaml:"strip"`
	Flash      string        `yaml:"flash"`
	Store      string        `yaml:"store"`
	Serial     string        `yaml:"serial"`
	Baud       int           `yaml:"baud"`
	Gear       string        `yaml:"gear"`
	Rudder     string        `yaml:"rudder"`
	Bypass     string        `yaml:"bypass"`
	Confirm    string        `yaml:"confirm"`
	Channels   int           `yaml:"channels"`
	Period     time.Duration `yaml:"period"`
	ZeroMarker bool          `yaml:"zeroMarker"`
	OLED       bool          `yaml:"oled"`
	PanelPNG   string        `yaml:"panelPng"`
	Verbose    bool          `yaml:"verbose"`

	CalibrationLevels []uint8       `yaml:"calibrationLevels"`
	CalibrationStep   time.Duration `yaml:"calibrationStep"`
	DiagnosticStep    time.Duration `yaml:"diagnosticStep"`

	Log logConfig `yaml:"log"`
}

// logConfig enables a rotated log file.
type logConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

func defaultConfig() *config {
	return &config{
		Store:             "actuators.bin",
		Baud:              115200,
		Gear:              "GPIO17",
		Rudder:            "GPIO27",
		Bypass:            "GPIO22",
		Confirm:           "GPIO23",
		Channels:          controller.DefaultChannelCount,
		Period:            20 * time.Millisecond,
		CalibrationLevels: []uint8{32, 64, 128, 192, 255},
		CalibrationStep:   2 * time.Second,
		DiagnosticStep:    time.Second,
		Log:               logConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// parseFlags returns the configuration from the defaults, the file named by
// -config and args, in increasing priority.
func parseFlags(fs *flag.FlagSet, args []string) (*config, error) {
	c := defaultConfig()
	path := fs.String("config", "", "YAML configuration file")
	fs.BoolVar(&c.Fake, "fake", c.Fake, "simulate the board and show the LED strip on the terminal")
	fs.StringVar(&c.I2C, "i2c", c.I2C, "I²C bus of the channels")
	fs.StringVar(&c.Strip, "strip", c.Strip, "SPI port of the LED strip; the terminal is used if empty")
	fs.StringVar(&c.Flash, "flash", c.Flash, "SPI port of the settings flash")
	fs.StringVar(&c.Store, "store", c.Store, "settings file, used when -flash is empty")
	fs.StringVar(&c.Serial, "serial", c.Serial, "serial port of the host link")
	fs.IntVar(&c.Baud, "baud", c.Baud, "baud rate of the host link")
	fs.StringVar(&c.Gear, "gear", c.Gear, "landing gear command input")
	fs.StringVar(&c.Rudder, "rudder", c.Rudder, "rudder trim command input")
	fs.StringVar(&c.Bypass, "bypass", c.Bypass, "bypass input, normal operation when Low")
	fs.StringVar(&c.Confirm, "confirm", c.Confirm, "confirmation push button")
	fs.IntVar(&c.Channels, "channels", c.Channels, "number of channels")
	fs.DurationVar(&c.Period, "period", c.Period, "control loop period")
	fs.BoolVar(&c.ZeroMarker, "zero-marker", c.ZeroMarker, "read and write settings without CRC")
	fs.BoolVar(&c.OLED, "oled", c.OLED, "show the status on a SSD1306 panel on the I²C bus")
	fs.StringVar(&c.PanelPNG, "panel-png", c.PanelPNG, "render the status panel to this PNG file")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "log to stderr")
	fs.StringVar(&c.Log.File, "log-file", c.Log.File, "also log to this file, rotated by size")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *path == "" {
		return c, c.validate()
	}
	b, err := os.ReadFile(*path)
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(b, c); err != nil {
		return nil, fmt.Errorf("%s: %w", *path, err)
	}
	// Parse again so the flags given explicitly win over the file.
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c, c.validate()
}

func (c *config) validate() error {
	if c.Channels <= 0 || c.Channels > 255 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	if c.Period <= 0 {
		return fmt.Errorf("invalid period %s", c.Period)
	}
	if len(c.CalibrationLevels) == 0 {
		return fmt.Errorf("at least one calibration level is required")
	}
	return nil
}

// logFile returns the rotated log file, or nil when disabled.
func (c *config) logFile() io.WriteCloser {
	if c.Log.File == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   true,
	}
}
