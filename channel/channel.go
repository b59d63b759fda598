// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package channel controls one actuator: a DC motor driven by two direction
// relays, two limit switches and an INA219 current sensor.
//
// Two channels share one PCF8574 expander. The low nibble holds the limit
// switch inputs, the high nibble the relays:
//
//	bit  7     6     5     4     3     2     1     0
//	     L1    R1    L0    R0    D1    U1    D0    U0
//
// where the digit is the expander sub-channel, U/D are the up/down switches
// and R/L the right/left relays.
//
// A Controller is not safe for concurrent use. All channels of a board share
// one I²C bus and are polled sequentially from a single loop.
package channel

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/actuators/ina219"
	"github.com/GermanBionicSystems/actuators/pcf857x"
)

// DefaultRelaySettle is the delay between engaging the relays and sampling
// the sensor during RelaysTest.
const DefaultRelaySettle = 100 * time.Millisecond

// Expander register layout.
const (
	// inputNibble keeps the limit switch pins High so they can be read.
	inputNibble uint8 = 0x0f
	relayMask   uint8 = 0xf0
)

// Per sub-channel bit masks, indexed by Config.ExpanderChannel.
var (
	upSwitchMask   = [2]uint8{0x01, 0x04}
	downSwitchMask = [2]uint8{0x02, 0x08}
	rightRelayMask = [2]uint8{0x10, 0x40}
	leftRelayMask  = [2]uint8{0x20, 0x80}
)

var (
	// ErrSensorUnreachable is returned when the current sensor does not
	// acknowledge.
	ErrSensorUnreachable = errors.New("channel: current sensor unreachable")
	// ErrExpanderUnreachable is returned when the IO expander does not
	// acknowledge.
	ErrExpanderUnreachable = errors.New("channel: IO expander unreachable")
	// ErrInvalidSubChannel is returned for an expander sub-channel other than
	// 0 or 1.
	ErrInvalidSubChannel = errors.New("channel: invalid expander sub-channel")
	// ErrNotReady is returned when the channel is enabled but its last
	// configuration failed.
	ErrNotReady = errors.New("channel: not configured")
	// ErrSensorRead is returned when a telemetry read fails.
	ErrSensorRead = errors.New("channel: sensor read failed")
	// ErrRelayFault is returned by RelaysTest when current flows while both
	// relays are engaged.
	ErrRelayFault = errors.New("channel: relay test current mismatch")
	// ErrSupplyVoltage is returned by RelaysTest when the supply voltage is
	// outside the configured limits.
	ErrSupplyVoltage = errors.New("channel: supply voltage out of range")
)

// Opts holds the options of a Controller.
type Opts struct {
	// Name is used in logs. Defaults to "channel".
	Name string
	// RelaySettle defaults to DefaultRelaySettle.
	RelaySettle time.Duration
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
	// Logger defaults to a discarding logger.
	Logger *log.Logger
}

// Controller is a handle to one actuator channel.
type Controller struct {
	bus  i2c.Bus
	opts Opts

	cfg      Config
	ready    bool
	sensor   *ina219.Dev
	expander *pcf857x.Dev
	faults   Faults
	warnings Warnings
	// lastErr is the last configuration failure logged.
	lastErr string
}

// New returns an unconfigured channel on bus. It does no I/O; call SetConfig.
func New(bus i2c.Bus, opts *Opts) *Controller {
	c := &Controller{bus: bus}
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.Name == "" {
		c.opts.Name = "channel"
	}
	if c.opts.RelaySettle == 0 {
		c.opts.RelaySettle = DefaultRelaySettle
	}
	if c.opts.Sleep == nil {
		c.opts.Sleep = time.Sleep
	}
	if c.opts.Logger == nil {
		c.opts.Logger = log.New(io.Discard, "", 0)
	}
	return c
}

// SetConfig binds the channel to its devices, checks both acknowledge and
// puts the expander in its idle configuration: all relays released and the
// switch inputs released High.
//
// The expander write releases the relays of both sub-channels of the
// expander; it only happens once both devices answered. On failure the
// channel stays unusable until SetConfig succeeds, which the caller may
// retry on every poll: a repeated failure is logged once.
// A disabled configuration does no I/O and always succeeds.
func (c *Controller) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.ready = false
	c.sensor = nil
	c.expander = nil
	c.faults = 0
	c.warnings = 0
	if !cfg.Enabled {
		return nil
	}

	sensor, err := ina219.New(c.bus, &ina219.Opts{Address: uint16(cfg.SensorAddr), SenseResistor: cfg.SenseResistor()})
	if err != nil {
		return err
	}
	expander, err := pcf857x.New(c.bus, uint16(cfg.ExpanderAddr), pcf857x.PCF8574)
	if err != nil {
		return err
	}
	c.sensor = sensor
	c.expander = expander

	var errs error
	if err := sensor.Probe(); err != nil {
		c.faults |= SensorUnreachable
		errs = multierr.Append(errs, fmt.Errorf("%w: %w", ErrSensorUnreachable, err))
	}
	if err := expander.Probe(); err != nil {
		c.faults |= ExpanderUnreachable
		errs = multierr.Append(errs, fmt.Errorf("%w: %w", ErrExpanderUnreachable, err))
	}
	if errs == nil {
		if err := expander.Write(uint16(inputNibble)); err != nil {
			c.faults |= ExpanderUnreachable
			errs = fmt.Errorf("%w: %w", ErrExpanderUnreachable, err)
		}
	}
	if errs != nil {
		if s := errs.Error(); s != c.lastErr {
			c.opts.Logger.Printf("%s: configuration failed: %v", c, errs)
			c.lastErr = s
		}
		return errs
	}
	if c.lastErr != "" {
		c.opts.Logger.Printf("%s: configured", c)
		c.lastErr = ""
	}
	c.ready = true
	return nil
}

// Config returns a copy of the current configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Enabled reports whether the channel is enabled.
func (c *Controller) Enabled() bool {
	return c.cfg.Enabled
}

// Rudder reports whether the channel follows the rudder command.
func (c *Controller) Rudder() bool {
	return c.cfg.Rudder
}

// Ready reports whether the channel is enabled and its last SetConfig
// succeeded.
func (c *Controller) Ready() bool {
	return c.cfg.Enabled && c.ready
}

// Faults returns the current faults.
func (c *Controller) Faults() Faults {
	return c.faults
}

// Warnings returns the current warnings.
func (c *Controller) Warnings() Warnings {
	return c.warnings
}

func (c *Controller) String() string {
	return fmt.Sprintf("%s(pcf=0x%02x/%d ina=0x%02x)", c.opts.Name, c.cfg.ExpanderAddr, c.cfg.ExpanderChannel, c.cfg.SensorAddr)
}

// State reads the limit switches and returns the derived state.
//
// It returns Error without touching the bus when the channel is disabled or
// not configured, and Error when the expander does not answer. While the
// actuator is moving the motor current is checked against the configured
// limits.
func (c *Controller) State() State {
	if !c.Ready() {
		return Error
	}
	port, err := c.readPort()
	if err != nil {
		return Error
	}
	s := stateOf(c.decode(port))
	if s == Moving {
		c.checkLoad()
	}
	return s
}

// Switches returns whether the up and down limit switches are asserted, with
// the polarity settings applied.
func (c *Controller) Switches() (up, down bool, err error) {
	if !c.cfg.Enabled {
		return false, false, nil
	}
	if !c.ready {
		return false, false, ErrNotReady
	}
	port, err := c.readPort()
	if err != nil {
		return false, false, err
	}
	up, down = c.decode(port)
	return up, down, nil
}

// SetMotor drives the motor toward the up limit when up is true, toward the
// down limit otherwise.
//
// The motor is never driven into a limit switch that is already asserted:
// the relays of the channel are released instead. The relays of the other
// sub-channel sharing the expander are preserved.
func (c *Controller) SetMotor(up bool) error {
	if !c.cfg.Enabled {
		return nil
	}
	if !c.ready {
		return ErrNotReady
	}
	port, err := c.readPort()
	if err != nil {
		return err
	}
	upAsserted, downAsserted := c.decode(port)
	limit := downAsserted
	if up {
		limit = upAsserted
	}
	data := (port | inputNibble) &^ c.relayBits()
	if !limit {
		data |= c.driveBit(up)
	}
	return c.writePort(data)
}

// Stop releases both relays of the channel.
func (c *Controller) Stop() error {
	if !c.cfg.Enabled {
		return nil
	}
	if !c.ready {
		return ErrNotReady
	}
	port, err := c.readPort()
	if err != nil {
		return err
	}
	return c.writePort((port | inputNibble) &^ c.relayBits())
}

// RelaysTest engages both relays of the channel at once. With the motor
// wired between the two relays no current may flow. The supply voltage is
// checked against the configured limits at the same time.
//
// All relays of the expander are released before returning, whatever the
// outcome. The returned error wraps ErrRelayFault and/or ErrSupplyVoltage
// when a check failed, or a communication error.
func (c *Controller) RelaysTest() error {
	if !c.cfg.Enabled {
		return nil
	}
	if !c.ready {
		return ErrNotReady
	}
	port, err := c.readPort()
	if err != nil {
		return err
	}
	if err := c.writePort((port | inputNibble) | c.relayBits()); err != nil {
		return err
	}
	c.opts.Sleep(c.opts.RelaySettle)
	p, senseErr := c.sensor.Sense()
	err = c.writePort(inputNibble)
	if senseErr != nil {
		c.setFault(SensorUnreachable, senseErr)
		return multierr.Append(fmt.Errorf("%w: %w", ErrSensorRead, senseErr), err)
	}
	c.clearFault(SensorUnreachable)

	c.warnings &^= LowVoltage | HighVoltage
	mv := int64(p.Voltage / physic.MilliVolt)
	if mv < int64(c.cfg.MinVoltage)*100 {
		c.warnings |= LowVoltage
		err = multierr.Append(err, fmt.Errorf("%w: %s below %d.%dV", ErrSupplyVoltage, p.Voltage, c.cfg.MinVoltage/10, c.cfg.MinVoltage%10))
	}
	if mv > int64(c.cfg.MaxVoltage)*100 {
		c.warnings |= HighVoltage
		err = multierr.Append(err, fmt.Errorf("%w: %s above %d.%dV", ErrSupplyVoltage, p.Voltage, c.cfg.MaxVoltage/10, c.cfg.MaxVoltage%10))
	}
	if p.Current != 0 {
		c.faults |= RelayFault
		err = multierr.Append(err, fmt.Errorf("%w: %s", ErrRelayFault, p.Current))
	}
	if err != nil {
		c.opts.Logger.Printf("%s: relay test: %v", c, err)
	}
	return err
}

// PowerStatus returns the bus voltage and motor current.
func (c *Controller) PowerStatus() (ina219.PowerMonitor, error) {
	if !c.cfg.Enabled {
		return ina219.PowerMonitor{}, nil
	}
	if !c.ready {
		return ina219.PowerMonitor{}, ErrNotReady
	}
	p, err := c.sensor.Sense()
	if err != nil {
		c.setFault(SensorUnreachable, err)
		return ina219.PowerMonitor{}, fmt.Errorf("%w: %w", ErrSensorRead, err)
	}
	c.clearFault(SensorUnreachable)
	return p, nil
}

// checkLoad compares the motor current with the configured limits. An
// actuator moving with too much or too little current is reported, not
// stopped.
func (c *Controller) checkLoad() {
	i, err := c.sensor.Current()
	if err != nil {
		c.setFault(SensorUnreachable, err)
		return
	}
	c.clearFault(SensorUnreachable)
	ma := int64(i / physic.MilliAmpere)
	if ma < 0 {
		ma = -ma
	}
	if ma > int64(c.cfg.MaxCurrent)*100 {
		c.setWarning(LowImpedance, ma)
	}
	if ma < int64(c.cfg.MinCurrent)*100 {
		c.setWarning(HighImpedance, ma)
	}
}

// decode returns whether the up and down switches are asserted in port.
// Switches pull their input Low unless inverted.
func (c *Controller) decode(port uint8) (up, down bool) {
	sub := c.cfg.ExpanderChannel
	up = port&upSwitchMask[sub] == 0
	down = port&downSwitchMask[sub] == 0
	if c.cfg.InverseUpSwitch {
		up = !up
	}
	if c.cfg.InverseDownSwitch {
		down = !down
	}
	if c.cfg.InverseSwitchPair {
		up, down = down, up
	}
	return up, down
}

func (c *Controller) relayBits() uint8 {
	sub := c.cfg.ExpanderChannel
	return rightRelayMask[sub] | leftRelayMask[sub]
}

// driveBit returns the relay bit that moves the actuator up or down.
func (c *Controller) driveBit(up bool) uint8 {
	sub := c.cfg.ExpanderChannel
	if up != c.cfg.InverseMotor {
		return rightRelayMask[sub]
	}
	return leftRelayMask[sub]
}

func (c *Controller) readPort() (uint8, error) {
	v, err := c.expander.Read()
	if err != nil {
		c.setFault(ExpanderUnreachable, err)
		return 0, fmt.Errorf("%w: %w", ErrExpanderUnreachable, err)
	}
	c.clearFault(ExpanderUnreachable)
	return uint8(v), nil
}

func (c *Controller) writePort(v uint8) error {
	if err := c.expander.Write(uint16(v)); err != nil {
		c.setFault(ExpanderUnreachable, err)
		return fmt.Errorf("%w: %w", ErrExpanderUnreachable, err)
	}
	c.clearFault(ExpanderUnreachable)
	return nil
}

// setFault sets f, logging only on the transition.
func (c *Controller) setFault(f Faults, err error) {
	if !c.faults.Has(f) {
		c.opts.Logger.Printf("%s: %s: %v", c, f, err)
	}
	c.faults |= f
}

func (c *Controller) clearFault(f Faults) {
	if c.faults.Has(f) {
		c.opts.Logger.Printf("%s: %s cleared", c, f)
	}
	c.faults &^= f
}

func (c *Controller) setWarning(w Warnings, ma int64) {
	if !c.warnings.Has(w) {
		c.opts.Logger.Printf("%s: %s at %dmA", c, w, ma)
	}
	c.warnings |= w
}
