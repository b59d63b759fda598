// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package controller runs the actuator board: it drives every channel from
// the cockpit command inputs, shows the state of each channel on the status
// LED strip and serves the host commands.
//
// The controller is a single threaded superloop. Boot is called once, then
// Spin repeatedly; a slow host command delays the next poll of the channels.
//
// Discrete inputs are active Low: the closed switch grounds the pulled up
// input.
package controller

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/hostproto"
	"github.com/GermanBionicSystems/actuators/settings"
	"github.com/GermanBionicSystems/actuators/statuscolor"
)

// Persisted layout.
const (
	PreferencesAddr = 0x000000
	ChannelsAddr    = 0x001000
)

// Version is reported by the 'v' command.
const Version = "Application BS v1.0"

// VersionSize is the size of the 'v' response.
const VersionSize = 32

// confirmPoll is the period at which the confirmation input is sampled.
const confirmPoll = 10 * time.Millisecond

// ErrChannelIndex is returned for a channel index past the channel count.
var ErrChannelIndex = errors.New("controller: channel index out of range")

// Opts holds the options of a Controller.
type Opts struct {
	// Bus is shared by all the channels.
	Bus i2c.Bus
	// Channels defaults to DefaultChannelCount.
	Channels int

	// Bypass selects normal operation when active. A nil pin is always
	// active.
	Bypass gpio.PinIn
	// GearCommand is active when the landing gear is commanded down.
	GearCommand gpio.PinIn
	// RudderCommand is active when the rudder trim is held.
	RudderCommand gpio.PinIn
	// Confirm is the push button used during calibration and diagnostics.
	Confirm gpio.PinIn

	// Strip receives one RGB triplet per channel on every Spin.
	Strip io.Writer
	// Store holds the preferences and the channel configurations.
	Store settings.Store
	// Marker selects the integrity check of the stored records.
	Marker settings.Marker
	// Host is the link to the host tool. It may be nil.
	Host hostproto.Port

	// CalibrationLevels are the brightness levels offered at boot.
	CalibrationLevels []uint8
	// CalibrationStep is how long each level is shown.
	CalibrationStep time.Duration
	// DiagnosticStep is how long each diagnostic color is shown.
	DiagnosticStep time.Duration

	// Clock returns the time elapsed since start. Defaults to the wall clock.
	Clock func() time.Duration
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
	// Reset is called after answering the 'r' command.
	Reset func() error
	// OnStatus is called with the displayed status at the end of each Spin
	// in normal operation.
	OnStatus func([]Status)
	// Logger defaults to a discarding logger.
	Logger *log.Logger
}

// Status is the last displayed status of a channel.
type Status struct {
	Name     string
	Enabled  bool
	Rudder   bool
	State    channel.State
	Color    statuscolor.Color
	Faults   channel.Faults
	Warnings channel.Warnings
}

// Controller is the board orchestrator.
type Controller struct {
	opts     Opts
	channels []*channel.Controller
	prefs    *settings.Record[Preferences]
	configs  *settings.Record[[]channel.Config]
	policy   statuscolor.Policy
	dispatch *hostproto.Dispatcher

	status  []Status
	lastErr []string
	frame   []byte
	reset   bool
}

// New returns a controller. Call Boot before Spin.
func New(opts *Opts) (*Controller, error) {
	if opts == nil || opts.Bus == nil || opts.Store == nil || opts.Strip == nil {
		return nil, errors.New("controller: Bus, Store and Strip are required")
	}
	c := &Controller{opts: *opts}
	o := &c.opts
	if o.Channels <= 0 {
		o.Channels = DefaultChannelCount
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Clock == nil {
		start := time.Now()
		o.Clock = func() time.Duration { return time.Since(start) }
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}

	n := o.Channels
	c.channels = make([]*channel.Controller, n)
	c.status = make([]Status, n)
	c.lastErr = make([]string, n)
	c.frame = make([]byte, 3*n)
	for i := range c.channels {
		name := fmt.Sprintf("CH%d", i+1)
		c.channels[i] = channel.New(o.Bus, &channel.Opts{Name: name, Sleep: o.Sleep, Logger: o.Logger})
		c.status[i] = Status{Name: name, State: channel.Error}
	}
	ropts := &settings.Opts{Marker: o.Marker}
	c.prefs = settings.NewRecord[Preferences](o.Store, PreferencesAddr, settings.NewBinaryCodec[Preferences](PreferencesSize), ropts)
	c.configs = settings.NewRecord[[]channel.Config](o.Store, ChannelsAddr, &settings.ArrayCodec[channel.Config]{
		Elem: settings.NewBinaryCodec[channel.Config](channel.ConfigSize),
		Len:  n,
	}, ropts)
	c.prefs.Set(DefaultPreferences)
	c.configs.Set(DefaultChannels(n))
	c.policy.Palette = DefaultPreferences.Palette

	c.dispatch = hostproto.NewDispatcher(o.Logger)
	if err := c.registerHandlers(); err != nil {
		return nil, err
	}
	return c, nil
}

// Boot loads the settings, configures the channels, runs the relay test and
// the brightness calibration.
//
// The returned error aggregates the problems found; the controller is
// usable regardless.
func (c *Controller) Boot() error {
	var errs error
	if err := c.prefs.Load(); err != nil {
		c.opts.Logger.Printf("controller: using default preferences: %v", err)
		c.prefs.Set(DefaultPreferences)
	}
	c.policy.Palette = c.prefs.Get().Palette
	if err := c.configs.Load(); err != nil {
		c.opts.Logger.Printf("controller: using default channel settings: %v", err)
		c.configs.Set(DefaultChannels(len(c.channels)))
	}
	errs = multierr.Append(errs, c.apply())

	for _, ch := range c.channels {
		if !ch.Ready() {
			continue
		}
		if err := ch.RelaysTest(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	errs = multierr.Append(errs, c.calibrate())
	if errs != nil {
		c.opts.Logger.Printf("controller: boot: %v", errs)
	}
	return errs
}

// Spin runs one iteration of the control loop.
func (c *Controller) Spin() error {
	if !active(c.opts.Bypass, true) {
		if err := c.stopAll(); err != nil {
			c.opts.Logger.Printf("controller: maintenance: %v", err)
		}
		return c.diagnostics()
	}

	gear := active(c.opts.GearCommand, false)
	rudder := active(c.opts.RudderCommand, false)
	t := uint32(c.opts.Clock() / time.Millisecond)
	brightness := c.prefs.Get().Brightness
	for i, ch := range c.channels {
		st := &c.status[i]
		st.Enabled = ch.Enabled()
		st.Rudder = ch.Rudder()
		st.Faults = ch.Faults()
		st.Warnings = ch.Warnings()
		if !ch.Enabled() {
			st.State = channel.Error
			st.Color = statuscolor.Black
			c.stage(i, statuscolor.Black)
			continue
		}
		if !ch.Ready() {
			// Devices that did not answer are configured again on every
			// poll; SetConfig logs the failure once.
			_ = ch.SetConfig(ch.Config())
		}
		command, opposite := gear, rudder
		if ch.Rudder() {
			command, opposite = rudder, gear
		}
		c.logChange(i, ch.SetMotor(!command))
		s := ch.State()
		col := c.policy.Color(s, ch.Rudder(), command, opposite, t)
		if c.policy.Settled(s, command, opposite) && (ch.Warnings() != 0 || ch.Faults().Has(channel.RelayFault)) {
			col = statuscolor.WithWarning(col, c.policy.Palette.Warning, t)
		}
		st.State = s
		st.Color = col
		st.Faults = ch.Faults()
		st.Warnings = ch.Warnings()
		c.stage(i, statuscolor.ScaleBrightness(col, brightness))
	}
	err := c.flush()
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(c.Status())
	}
	c.serveHost()
	return err
}

// Channel returns the channel i.
func (c *Controller) Channel(i int) (*channel.Controller, error) {
	if i < 0 || i >= len(c.channels) {
		return nil, fmt.Errorf("%w: %d", ErrChannelIndex, i)
	}
	return c.channels[i], nil
}

// NumChannels returns the number of channels.
func (c *Controller) NumChannels() int {
	return len(c.channels)
}

// Preferences returns the current preferences.
func (c *Controller) Preferences() Preferences {
	return c.prefs.Get()
}

// ChannelConfigs returns a copy of the current channel configurations.
func (c *Controller) ChannelConfigs() []channel.Config {
	return append([]channel.Config(nil), c.configs.Get()...)
}

// Status returns a copy of the status displayed by the last Spin.
func (c *Controller) Status() []Status {
	return append([]Status(nil), c.status...)
}

// Dispatcher returns the host command dispatcher, to register more commands.
func (c *Controller) Dispatcher() *hostproto.Dispatcher {
	return c.dispatch
}

// Close stops all the motors and turns the strip off.
func (c *Controller) Close() error {
	err := c.stopAll()
	clear(c.frame)
	return multierr.Append(err, c.flush())
}

// apply configures every channel from the stored configurations.
func (c *Controller) apply() error {
	var errs error
	for i, cfg := range c.configs.Get() {
		if err := c.channels[i].SetConfig(cfg); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.status[i].Name, err))
		}
	}
	return errs
}

func (c *Controller) stopAll() error {
	var errs error
	for _, ch := range c.channels {
		if ch.Ready() {
			errs = multierr.Append(errs, ch.Stop())
		}
	}
	return errs
}

func (c *Controller) stage(i int, col statuscolor.Color) {
	r, g, b := col.RGB()
	c.frame[3*i], c.frame[3*i+1], c.frame[3*i+2] = r, g, b
}

func (c *Controller) fill(col statuscolor.Color) {
	for i := range c.channels {
		c.stage(i, col)
	}
}

func (c *Controller) flush() error {
	if _, err := c.opts.Strip.Write(c.frame); err != nil {
		return fmt.Errorf("controller: strip: %w", err)
	}
	return nil
}

// serveHost handles at most one pending host command.
func (c *Controller) serveHost() {
	if c.opts.Host == nil {
		return
	}
	line, ok := c.opts.Host.Poll()
	if !ok {
		return
	}
	resp, err := c.dispatch.Process(line)
	if err != nil {
		return
	}
	if err := c.opts.Host.WriteLine(resp); err != nil {
		c.opts.Logger.Printf("controller: host: %v", err)
	}
	if c.reset {
		c.reset = false
		if err := c.opts.Reset(); err != nil {
			c.opts.Logger.Printf("controller: reset: %v", err)
		}
	}
}

// logChange logs the motor errors of channel i when they change.
func (c *Controller) logChange(i int, err error) {
	s := ""
	if err != nil {
		s = err.Error()
	}
	if s != c.lastErr[i] && s != "" {
		c.opts.Logger.Printf("%s: motor: %s", c.status[i].Name, s)
	}
	c.lastErr[i] = s
}

// active reports whether p is pulled Low; def is returned for a nil pin.
func active(p gpio.PinIn, def bool) bool {
	if p == nil {
		return def
	}
	return p.Read() == gpio.Low
}
