// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/logging"
)

var (
	monitorBus     string
	monitorCapture string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch bus frames in a terminal UI",
	Long: `Display every frame received on the power or uCAN bus, named by command,
together with live link statistics.

Use --capture to also record the frames to a CBOR capture file.

Keys: q quit, f toggle follow, arrows/pgup/pgdown scroll.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorBus, "bus", "power", "Bus to monitor: power or ucan")
	monitorCmd.Flags().StringVar(&monitorCapture, "capture", "", "Record frames to a CBOR capture file")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	var b bus
	var catalog *api.Catalog
	switch monitorBus {
	case "power":
		b, catalog = powerBus, api.PowerCatalog()
	case "ucan":
		b, catalog = ucanBus, api.UCANCatalog()
	default:
		return fmt.Errorf("unknown bus %q (use power or ucan)", monitorBus)
	}

	// Log lines would corrupt the alternate screen
	logging.SetLevel(zerolog.ErrorLevel)

	events := make(chan tea.Msg, 256)
	s, err := openSession(cmd.Context(), cmd, b, sessionOptions{
		capturePath: monitorCapture,
		observe: func(frame []byte) {
			post(events, frameMsg{frame: append([]byte(nil), frame...)})
		},
		onError: func(err error) {
			post(events, linkErrorMsg{err: err})
		},
	})
	if err != nil {
		return err
	}

	return s.run(cmd.Context(), func(ctx context.Context) error {
		m := newMonitorModel(s.desc, catalog, s.stats, events)
		_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
}

// post never blocks the transport reader; the TUI drops frames it cannot keep up with.
func post(events chan<- tea.Msg, msg tea.Msg) {
	select {
	case events <- msg:
	default:
	}
}
