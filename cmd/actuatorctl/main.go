// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// actuatorctl configures and monitors an actuator board over its serial
// link.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tarm/serial"

	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/controller"
	"github.com/GermanBionicSystems/actuators/hostproto"
	"github.com/GermanBionicSystems/actuators/monitor"
	"github.com/GermanBionicSystems/actuators/statuscolor"
	"github.com/GermanBionicSystems/actuators/telemetrylog"
)

const usage = `usage: actuatorctl [flags] <command> [args]

commands:
  version                      print the firmware version
  reset                        restart the controller
  scan [addr...]               list the I²C devices answering
  prefs                        print the display preferences
  set-prefs [flags]            change the display preferences
  channel <i>                  print the settings of channel i
  set-channel <i> [flags]      change the settings of channel i
  telemetry <i>                print a live sample of channel i
  relay-test <ina> <pcf> <sub> test the relays of unconfigured devices
  detect [-apply]              find the channels wired on the board
  monitor [-record db]         show the telemetry of all the channels

flags:
`

type app struct {
	client   *controller.Client
	channels int
	logger   *log.Logger
}

func mainImpl() error {
	port := flag.String("serial", "/dev/ttyUSB0", "serial port of the board")
	baud := flag.Int("baud", 115200, "baud rate")
	timeout := flag.Duration("timeout", 500*time.Millisecond, "read timeout of the serial port")
	channels := flag.Int("channels", controller.DefaultChannelCount, "number of channels of the board")
	verbose := flag.Bool("v", false, "print the board logs")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	logger := log.New(os.Stderr, "", 0)
	boardLog := log.New(io.Discard, "", 0)
	if *verbose {
		boardLog = log.New(os.Stderr, "board: ", 0)
	}
	p, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud, ReadTimeout: *timeout})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", *port, err)
	}
	defer p.Close()
	a := &app{
		client:   controller.NewClient(hostproto.NewClient(p, boardLog)),
		channels: *channels,
		logger:   logger,
	}
	return a.run(flag.Arg(0), flag.Args()[1:])
}

func (a *app) run(cmd string, args []string) error {
	switch cmd {
	case "version":
		v, err := a.client.Version()
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	case "reset":
		return a.client.Reset()
	case "scan":
		return a.scan(args)
	case "prefs":
		p, err := a.client.Preferences()
		if err != nil {
			return err
		}
		printPreferences(p)
		return nil
	case "set-prefs":
		return a.setPreferences(args)
	case "channel":
		i, err := a.index(args)
		if err != nil {
			return err
		}
		cfg, err := a.client.ChannelConfig(i)
		if err != nil {
			return err
		}
		printConfig(i, cfg)
		return nil
	case "set-channel":
		return a.setChannel(args)
	case "telemetry":
		i, err := a.index(args)
		if err != nil {
			return err
		}
		t, err := a.client.Telemetry(i)
		if err != nil {
			return err
		}
		fmt.Printf("CH%d: %s\n", i+1, t)
		return nil
	case "relay-test":
		return a.relayTest(args)
	case "detect":
		return a.detect(args)
	case "monitor":
		return a.monitor(args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) index(args []string) (int, error) {
	if len(args) < 1 {
		return 0, errors.New("missing channel index")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 0 || i >= a.channels {
		return 0, fmt.Errorf("invalid channel index %q", args[0])
	}
	return i, nil
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return uint8(v), nil
}

func (a *app) scan(args []string) error {
	var addrs []uint8
	for _, s := range args {
		v, err := parseByte(s)
		if err != nil {
			return err
		}
		addrs = append(addrs, v)
	}
	if len(addrs) == 0 {
		for v := uint8(0x08); v < 0x78; v++ {
			addrs = append(addrs, v)
		}
	}
	for _, addr := range addrs {
		ok, err := a.client.Scan(addr)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("0x%02x\n", addr)
		}
	}
	return nil
}

// colorFlag is a flag.Value setting a color.
type colorFlag struct {
	c *statuscolor.Color
}

func (f colorFlag) String() string {
	if f.c == nil {
		return ""
	}
	return f.c.String()
}

func (f colorFlag) Set(s string) error {
	c, err := statuscolor.Parse(s)
	if err != nil {
		return err
	}
	*f.c = c
	return nil
}

func printPreferences(p controller.Preferences) {
	fmt.Printf("brightness:      %d\n", p.Brightness)
	for i, c := range p.Palette.Colors() {
		fmt.Printf("%-16s %s\n", paletteNames[i]+":", c)
	}
}

var paletteNames = []string{"gear-up", "gear-down", "rudder-up", "rudder-down", "rudder-inactive", "warning", "error"}

func (a *app) setPreferences(args []string) error {
	p, err := a.client.Preferences()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("set-prefs", flag.ContinueOnError)
	brightness := fs.Uint("brightness", uint(p.Brightness), "brightness, 0 to 255")
	for i, c := range p.Palette.Colors() {
		fs.Var(colorFlag{c}, paletteNames[i], "color, as #rrggbb")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *brightness > 255 {
		return fmt.Errorf("invalid brightness %d", *brightness)
	}
	p.Brightness = uint8(*brightness)
	ok, err := a.client.SetPreferences(p)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("the board failed to save the preferences")
	}
	printPreferences(p)
	return nil
}

func printConfig(i int, c channel.Config) {
	fmt.Printf("CH%d: enabled=%t rudder=%t bridge=%t\n", i+1, c.Enabled, c.Rudder, c.Bridge)
	fmt.Printf("  sensor=0x%02x calibration=%d (%s)\n", c.SensorAddr, c.SensorCalibration, c.SenseResistor())
	fmt.Printf("  expander=0x%02x sub=%d\n", c.ExpanderAddr, c.ExpanderChannel)
	fmt.Printf("  inverse motor=%t up=%t down=%t pair=%t\n", c.InverseMotor, c.InverseUpSwitch, c.InverseDownSwitch, c.InverseSwitchPair)
	fmt.Printf("  voltage %d..%d (0.1V) current %d..%d (0.1A)\n", c.MinVoltage, c.MaxVoltage, c.MinCurrent, c.MaxCurrent)
}

// byteFlag is a flag.Value accepting decimal or 0x prefixed bytes.
type byteFlag struct {
	v *uint8
}

func (f byteFlag) String() string {
	if f.v == nil {
		return ""
	}
	return fmt.Sprintf("0x%02x", *f.v)
}

func (f byteFlag) Set(s string) error {
	v, err := parseByte(s)
	if err != nil {
		return err
	}
	*f.v = v
	return nil
}

// uint16Flag is a flag.Value for the 16 bits settings.
type uint16Flag struct {
	v *uint16
}

func (f uint16Flag) String() string {
	if f.v == nil {
		return ""
	}
	return strconv.Itoa(int(*f.v))
}

func (f uint16Flag) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid value %q", s)
	}
	*f.v = uint16(v)
	return nil
}

func (a *app) setChannel(args []string) error {
	i, err := a.index(args)
	if err != nil {
		return err
	}
	c, err := a.client.ChannelConfig(i)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("set-channel", flag.ContinueOnError)
	fs.BoolVar(&c.Enabled, "enable", c.Enabled, "enable the channel")
	fs.BoolVar(&c.Rudder, "rudder", c.Rudder, "follow the rudder trim command")
	fs.BoolVar(&c.Bridge, "bridge", c.Bridge, "bridge mode")
	fs.BoolVar(&c.InverseMotor, "inverse-motor", c.InverseMotor, "swap the motor direction")
	fs.BoolVar(&c.InverseUpSwitch, "inverse-up", c.InverseUpSwitch, "invert the up switch")
	fs.BoolVar(&c.InverseDownSwitch, "inverse-down", c.InverseDownSwitch, "invert the down switch")
	fs.BoolVar(&c.InverseSwitchPair, "inverse-pair", c.InverseSwitchPair, "swap the up and down switches")
	fs.Var(byteFlag{&c.SensorAddr}, "sensor", "current sensor address")
	fs.Var(uint16Flag{&c.SensorCalibration}, "calibration", "shunt resistance in 0.01 Ohm, 0 for the board shunt")
	fs.Var(byteFlag{&c.ExpanderAddr}, "expander", "IO expander address")
	fs.Var(byteFlag{&c.ExpanderChannel}, "sub", "half of the IO expander, 0 or 1")
	fs.Var(uint16Flag{&c.MaxVoltage}, "vmax", "maximum supply voltage in 0.1V")
	fs.Var(uint16Flag{&c.MinVoltage}, "vmin", "minimum supply voltage in 0.1V")
	fs.Var(uint16Flag{&c.MaxCurrent}, "imax", "maximum motor current in 0.1A")
	fs.Var(uint16Flag{&c.MinCurrent}, "imin", "minimum motor current in 0.1A")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	ok, err := a.client.SetChannelConfig(i, c)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("the board failed to save the settings")
	}
	printConfig(i, c)
	return nil
}

func (a *app) relayTest(args []string) error {
	if len(args) != 3 {
		return errors.New("relay-test needs the sensor and expander addresses and the sub-channel")
	}
	var v [3]uint8
	for i, s := range args {
		var err error
		if v[i], err = parseByte(s); err != nil {
			return err
		}
	}
	ok, err := a.client.RelayTest(v[0], v[1], v[2])
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("relay test failed")
	}
	fmt.Println("relay test passed")
	return nil
}

func (a *app) detect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "save the channels found, in order")
	if err := fs.Parse(args); err != nil {
		return err
	}
	found, err := a.client.Detect(a.channels, func(s string) { a.logger.Printf("%s...", s) })
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return errors.New("no channel detected")
	}
	for i, c := range found {
		printConfig(i, c)
	}
	if !*apply {
		return nil
	}
	if len(found) > a.channels {
		return fmt.Errorf("%d channels found, the board has %d", len(found), a.channels)
	}
	for i, c := range found {
		ok, err := a.client.SetChannelConfig(i, c)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("the board failed to save channel %d", i)
		}
	}
	return nil
}

func (a *app) monitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	record := fs.String("record", "", "record the telemetry in this SQLite database")
	period := fs.Duration("period", 500*time.Millisecond, "polling period")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts := &monitor.Opts{Channels: a.channels, Period: *period, Title: "actuatorctl"}
	if *record != "" {
		r, err := telemetrylog.Open(*record, a.logger)
		if err != nil {
			return err
		}
		defer r.Close()
		samples := make(chan telemetrylog.Sample, 64)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			r.Run(ctx, samples)
			close(done)
		}()
		defer func() {
			close(samples)
			<-done
			cancel()
		}()
		opts.Record = samples
	}
	_, err := tea.NewProgram(monitor.New(a.client, opts), tea.WithAltScreen()).Run()
	return err
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "actuatorctl: %s.\n", err)
		os.Exit(1)
	}
}
