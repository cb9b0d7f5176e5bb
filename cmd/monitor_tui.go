// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/correlator"
)

// Frame log entry
type frameEntry struct {
	timestamp time.Time
	label     string
	frame     []byte
	isError   bool
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame []byte
}
type linkErrorMsg struct {
	err error
}

// headerHeight is the number of lines above the frame log
const headerHeight = 10

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// TUI model
type monitorModel struct {
	desc       string
	catalog    *api.Catalog
	stats      *correlator.Statistics
	events     <-chan tea.Msg
	entries    []frameEntry
	maxEntries int
	viewport   viewport.Model
	follow     bool
	width      int
	height     int
	quitting   bool
}

func newMonitorModel(desc string, catalog *api.Catalog, stats *correlator.Statistics, events <-chan tea.Msg) monitorModel {
	return monitorModel{
		desc:       desc,
		catalog:    catalog,
		stats:      stats,
		events:     events,
		maxEntries: 1000,
		viewport:   viewport.New(80, 24-headerHeight),
		follow:     true,
		width:      80,
		height:     24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForEvent(m.events))
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent delivers the next frame or link error to Update
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-headerHeight, 3)
		m.refresh()
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case frameMsg:
		m.addEntry(frameEntry{
			timestamp: time.Now(),
			label:     m.catalog.Describe(msg.frame),
			frame:     msg.frame,
		})
		return m, waitForEvent(m.events)

	case linkErrorMsg:
		m.addEntry(frameEntry{
			timestamp: time.Now(),
			label:     msg.err.Error(),
			isError:   true,
		})
		return m, waitForEvent(m.events)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	if _, ok := msg.(tea.KeyMsg); ok {
		m.follow = m.viewport.AtBottom()
	}
	return m, cmd
}

func (m *monitorModel) addEntry(entry frameEntry) {
	m.entries = append(m.entries, entry)

	// Keep only last N entries
	if len(m.entries) > m.maxEntries {
		m.entries = m.entries[len(m.entries)-m.maxEntries:]
	}
	m.refresh()
}

func (m *monitorModel) refresh() {
	m.viewport.SetContent(renderEntries(m.entries))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func renderEntries(entries []frameEntry) string {
	if len(entries) == 0 {
		return headerStyle.Render("  (no frames yet)")
	}

	var b strings.Builder
	for _, e := range entries {
		timestamp := headerStyle.Render(e.timestamp.Format("15:04:05.000"))
		if e.isError {
			b.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+e.label)))
			continue
		}
		b.WriteString(fmt.Sprintf("%s %-36s % X\n", timestamp, e.label, trimPadding(e.frame)))
	}
	return b.String()
}

// trimPadding drops the zero padding of fixed size frames
func trimPadding(frame []byte) []byte {
	end := len(frame)
	for end > 0 && frame[end-1] == 0 {
		end--
	}
	return frame[:end]
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := m.stats.Snapshot()

	var s strings.Builder
	s.WriteString(titleStyle.Render("BUSBOOT - BUS MONITOR"))
	s.WriteString("\n")
	follow := "follow"
	if !m.follow {
		follow = "paused"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s | Press 'q' to quit, 'f' to toggle follow", m.desc, follow)))
	s.WriteString("\n\n")

	stats := strings.Builder{}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Received:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesReceived)),
		statsLabelStyle.Render("Matched:"), statsValueStyle.Render(fmt.Sprintf("%d", st.MatchedFrames)),
		statsLabelStyle.Render("Unmatched:"), statsValueStyle.Render(fmt.Sprintf("%d", st.UnmatchedFrames)),
	))
	errs := statsValueStyle
	if st.FramingErrors > 0 {
		errs = errorStyle
	}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Framing Errors:"), errs.Render(fmt.Sprintf("%d", st.FramingErrors)),
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errs.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate)),
	))

	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n")
	s.WriteString(statsLabelStyle.Render("Frames:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 2).Render(m.viewport.View()))

	return s.String()
}
