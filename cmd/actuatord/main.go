// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// actuatord runs the actuator board controller.
//
// The logs are sent to stderr and, prefixed with "LOG: ", on the host serial
// link. With -fake the channels are simulated and the LED strip is shown on
// the terminal, so the daemon runs on a workstation.
//
// The settings can be read from a YAML file with -config, see actuatord.yaml;
// flags override the file. -log-file adds a log file rotated by size.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/actuators/channel/channeltest"
	"github.com/GermanBionicSystems/actuators/controller"
	"github.com/GermanBionicSystems/actuators/hostproto"
	"github.com/GermanBionicSystems/actuators/screen1d"
	"github.com/GermanBionicSystems/actuators/settings"
	"github.com/GermanBionicSystems/actuators/ssd1306"
	"github.com/GermanBionicSystems/actuators/statuspanel"
	"github.com/GermanBionicSystems/actuators/w25x"
	"github.com/GermanBionicSystems/actuators/ws2812"
)

// exitReset is the exit status requesting the supervisor to restart the
// daemon, after a reset command.
const exitReset = 3

var errReset = errors.New("reset requested")

func mainImpl() error {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	var logOut []io.Writer
	if cfg.Verbose {
		logOut = append(logOut, os.Stderr)
	}
	if f := cfg.logFile(); f != nil {
		defer f.Close()
		logOut = append(logOut, f)
	}
	var stream *hostproto.Stream
	if cfg.Serial != "" {
		// No read timeout: the stream reads lines in the background.
		port, err := serial.OpenPort(&serial.Config{Name: cfg.Serial, Baud: cfg.Baud})
		if err != nil {
			return fmt.Errorf("failed to open serial port %s: %w", cfg.Serial, err)
		}
		stream = hostproto.NewStream(port, 8)
		defer stream.Close()
		logOut = append(logOut, stream)
	}
	logger := log.New(io.MultiWriter(logOut...), hostproto.LogPrefix+" ", 0)

	if _, err := host.Init(); err != nil && !cfg.Fake {
		return err
	}

	opts := controller.Opts{
		Channels:          cfg.Channels,
		CalibrationLevels: cfg.CalibrationLevels,
		CalibrationStep:   cfg.CalibrationStep,
		DiagnosticStep:    cfg.DiagnosticStep,
		Logger:            logger,
	}
	if cfg.ZeroMarker {
		opts.Marker = settings.ZeroMarker
	}
	if stream != nil {
		opts.Host = stream
	}

	bus, closeBus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer closeBus()
	opts.Bus = bus

	if err := openPins(cfg, &opts); err != nil {
		return err
	}
	closeStore, err := openStore(cfg, &opts)
	if err != nil {
		return err
	}
	defer closeStore()
	closeStrip, err := openStrip(cfg, &opts)
	if err != nil {
		return err
	}
	defer closeStrip()
	if err := openPanel(cfg, bus, &opts, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var reset bool
	opts.Reset = func() error {
		reset = true
		stop()
		return nil
	}

	ctrl, err := controller.New(&opts)
	if err != nil {
		return err
	}
	if err := ctrl.Boot(); err != nil {
		logger.Printf("boot: %v", err)
	}
	logger.Printf("%s started with %d channels", controller.Version, ctrl.NumChannels())
	if err := ctrl.Run(ctx, cfg.Period); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if reset {
		return errReset
	}
	return nil
}

func openBus(cfg *config) (i2c.Bus, func(), error) {
	if cfg.Fake {
		b := channeltest.NewBoard()
		for i, c := range controller.DefaultChannels(cfg.Channels) {
			if i%2 == 0 {
				b.AddExpander(uint16(c.ExpanderAddr))
			}
			b.AddSensor(uint16(c.SensorAddr)).Set(12*physic.Volt, 0, 50*physic.MilliOhm)
		}
		return b, func() {}, nil
	}
	b, err := i2creg.Open(cfg.I2C)
	if err != nil {
		return nil, nil, err
	}
	return b, func() { b.Close() }, nil
}

func openPins(cfg *config, opts *controller.Opts) error {
	if cfg.Fake {
		// Normal operation, no command, no confirmation.
		opts.Bypass = &gpiotest.Pin{N: "BYPASS", L: gpio.Low}
		opts.GearCommand = &gpiotest.Pin{N: "GEAR", L: gpio.High}
		opts.RudderCommand = &gpiotest.Pin{N: "RUDDER", L: gpio.High}
		return nil
	}
	for _, p := range []struct {
		name string
		dst  *gpio.PinIn
	}{
		{cfg.Gear, &opts.GearCommand},
		{cfg.Rudder, &opts.RudderCommand},
		{cfg.Bypass, &opts.Bypass},
		{cfg.Confirm, &opts.Confirm},
	} {
		if p.name == "" {
			continue
		}
		pin := gpioreg.ByName(p.name)
		if pin == nil {
			return fmt.Errorf("failed to find pin %s", p.name)
		}
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = pin
	}
	return nil
}

func openStore(cfg *config, opts *controller.Opts) (func(), error) {
	if cfg.Flash == "" || cfg.Fake {
		s, err := settings.OpenFileStore(cfg.Store, 2*settings.DefaultSectorSize, settings.DefaultSectorSize)
		if err != nil {
			return nil, err
		}
		opts.Store = s
		return func() { s.Close() }, nil
	}
	p, err := spireg.Open(cfg.Flash)
	if err != nil {
		return nil, err
	}
	d, err := w25x.New(p, nil)
	if err != nil {
		p.Close()
		return nil, err
	}
	opts.Logger.Printf("settings on %s", d)
	opts.Store = d
	return func() { p.Close() }, nil
}

func openStrip(cfg *config, opts *controller.Opts) (func(), error) {
	if cfg.Strip == "" || cfg.Fake {
		labels := make([]string, cfg.Channels)
		for i := range labels {
			labels[i] = fmt.Sprintf("CH%d", i+1)
		}
		d := screen1d.New(&screen1d.Opts{X: cfg.Channels, Labels: labels})
		opts.Strip = d
		return func() { d.Halt() }, nil
	}
	p, err := spireg.Open(cfg.Strip)
	if err != nil {
		return nil, err
	}
	d, err := ws2812.New(p, &ws2812.Opts{NumPixels: cfg.Channels})
	if err != nil {
		p.Close()
		return nil, err
	}
	opts.Strip = d
	return func() { d.Halt(); p.Close() }, nil
}

func openPanel(cfg *config, bus i2c.Bus, opts *controller.Opts, logger *log.Logger) error {
	var panel *statuspanel.Panel
	var err error
	switch {
	case cfg.PanelPNG != "":
		panel, err = statuspanel.New(statuspanel.NewPNG(cfg.PanelPNG, 128, 64), nil)
	case cfg.OLED && !cfg.Fake:
		var d *ssd1306.Dev
		if d, err = ssd1306.NewI2C(bus, nil); err == nil {
			panel, err = statuspanel.New(d, nil)
		}
	default:
		return nil
	}
	if err != nil {
		return err
	}
	var last string
	opts.OnStatus = func(st []controller.Status) {
		s := ""
		if err := panel.Show(st); err != nil {
			s = err.Error()
		}
		if s != last && s != "" {
			logger.Printf("%s", s)
		}
		last = s
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		if errors.Is(err, errReset) {
			os.Exit(exitReset)
		}
		fmt.Fprintf(os.Stderr, "actuatord: %s.\n", err)
		os.Exit(1)
	}
}
