// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package monitor is a terminal dashboard polling the telemetry of every
// channel of an actuator board.
package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/GermanBionicSystems/actuators/channel"
	"github.com/GermanBionicSystems/actuators/controller"
	"github.com/GermanBionicSystems/actuators/telemetrylog"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#575B7E")).
			Padding(0, 1)

	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Source returns the telemetry of a channel. *controller.Client implements
// it.
type Source interface {
	Telemetry(i int) (controller.Telemetry, error)
}

// Opts holds the options of the dashboard.
type Opts struct {
	// Channels defaults to controller.DefaultChannelCount.
	Channels int
	// Period defaults to 500ms.
	Period time.Duration
	// Record, if set, receives every sample. Samples are dropped when it is
	// full.
	Record chan<- telemetrylog.Sample
	// Title is shown in the header.
	Title string
	// Now defaults to time.Now.
	Now func() time.Time
}

type tickMsg time.Time

// pollMsg carries one poll of all the channels.
type pollMsg struct {
	at      time.Time
	samples []controller.Telemetry
	errs    []error
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	src     Source
	opts    Opts
	table   table.Model
	last    pollMsg
	polls   int
	dropped int
}

// New returns the dashboard model.
func New(src Source, opts *Opts) Model {
	m := Model{src: src}
	if opts != nil {
		m.opts = *opts
	}
	if m.opts.Channels <= 0 {
		m.opts.Channels = controller.DefaultChannelCount
	}
	if m.opts.Period <= 0 {
		m.opts.Period = 500 * time.Millisecond
	}
	if m.opts.Now == nil {
		m.opts.Now = time.Now
	}
	if m.opts.Title == "" {
		m.opts.Title = "actuators"
	}
	cols := []table.Column{
		{Title: "Channel", Width: 8},
		{Title: "State", Width: 8},
		{Title: "Voltage", Width: 10},
		{Title: "Current", Width: 10},
		{Title: "Up", Width: 4},
		{Title: "Down", Width: 4},
		{Title: "Error", Width: 30},
	}
	m.table = table.New(
		table.WithColumns(cols),
		table.WithHeight(m.opts.Channels+1),
		table.WithFocused(false),
	)
	m.table.SetRows(m.rows())
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.poll
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width - 2)
	case tickMsg:
		return m, m.poll
	case pollMsg:
		m.last = msg
		m.polls++
		m.record(msg)
		m.table.SetRows(m.rows())
		return m, tea.Tick(m.opts.Period, func(t time.Time) tea.Msg { return tickMsg(t) })
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	header := titleStyle.Render(fmt.Sprintf("%s  poll #%d", m.opts.Title, m.polls))
	var status []string
	for i, err := range m.last.errs {
		if err != nil {
			status = append(status, errorStyle.Render(fmt.Sprintf("CH%d: %v", i+1, err)))
		}
	}
	if m.dropped != 0 {
		status = append(status, errorStyle.Render(fmt.Sprintf("%d samples not recorded", m.dropped)))
	}
	status = append(status, helpStyle.Render("q: quit"))
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		baseStyle.Render(m.table.View()),
		strings.Join(status, "\n"),
	)
}

// poll reads every channel. It runs outside of the event loop.
func (m Model) poll() tea.Msg {
	p := pollMsg{
		at:      m.opts.Now(),
		samples: make([]controller.Telemetry, m.opts.Channels),
		errs:    make([]error, m.opts.Channels),
	}
	for i := range p.samples {
		p.samples[i], p.errs[i] = m.src.Telemetry(i)
	}
	return p
}

func (m *Model) record(p pollMsg) {
	if m.opts.Record == nil {
		return
	}
	for i, t := range p.samples {
		if p.errs[i] != nil {
			continue
		}
		select {
		case m.opts.Record <- telemetrylog.Sample{Time: p.at, Channel: i, Telemetry: t}:
		default:
			m.dropped++
		}
	}
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, m.opts.Channels)
	for i := range rows {
		rows[i] = table.Row{fmt.Sprintf("CH%d", i+1), "-", "-", "-", "-", "-", ""}
		if i >= len(m.last.samples) {
			continue
		}
		if err := m.last.errs[i]; err != nil {
			rows[i][1] = channel.Error.String()
			rows[i][6] = err.Error()
			continue
		}
		t := m.last.samples[i]
		rows[i][1] = t.State.String()
		rows[i][2] = t.Voltage.String()
		rows[i][3] = t.Current.String()
		rows[i][4] = mark(t.Up)
		rows[i][5] = mark(t.Down)
	}
	return rows
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return ""
}
