// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/capture"
	"github.com/Thermoquad/busboot/pkg/config"
	"github.com/Thermoquad/busboot/pkg/correlator"
	"github.com/Thermoquad/busboot/pkg/link"
	"github.com/Thermoquad/busboot/pkg/logging"
)

// bus selects which of the two buses a command talks to.
type bus int

const (
	powerBus bus = iota
	ucanBus
)

func (b bus) String() string {
	if b == ucanBus {
		return "ucan"
	}
	return "power"
}

func (b bus) frameSize() int {
	if b == ucanBus {
		return api.UCANFrameSize
	}
	return api.PowerFrameSize
}

// linkConfig returns the configured link for b with connection flags applied.
func linkConfig(cmd *cobra.Command, b bus) config.Link {
	l := cfg.Power
	if b == ucanBus {
		l = cfg.UCAN
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		l.Port, l.URL = portName, ""
	}
	if flags.Changed("url") {
		l.URL, l.Port = wsURL, ""
	}
	if flags.Changed("baud") {
		l.Baud = baudRate
	}
	if flags.Changed("username") {
		l.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		l.NoSSLVerify = wsNoSSLVerify
	}
	return l
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("BUSBOOT_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// openTransport opens either a serial or WebSocket link
func openTransport(ctx context.Context, l config.Link, opts ...link.Option) (link.Transport, string, error) {
	if err := l.Validate(); err != nil {
		return nil, "", fmt.Errorf("no usable connection (set --port or --url): %w", err)
	}

	if l.URL != "" {
		password := ""
		if l.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		t, err := link.DialWebSocket(ctx, link.DialConfig{
			URL:           l.URL,
			Username:      l.Username,
			Password:      password,
			SkipTLSVerify: l.NoSSLVerify,
		}, opts...)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("WebSocket: %s", l.URL), nil
	}

	mode := &serial.Mode{
		BaudRate: l.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(l.Port, mode)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open serial port %s: %w", l.Port, err)
	}

	return link.NewStreamTransport(port, opts...), fmt.Sprintf("Serial: %s @ %d baud", l.Port, l.Baud), nil
}

type sessionOptions struct {
	verbose     bool
	capturePath string

	// observe sees every received frame after the correlator
	observe func(frame []byte)

	// onError sees every framing error
	onError func(err error)
}

// session is an open bus: transport, correlator and optional capture file.
type session struct {
	bus       bus
	desc      string
	transport link.Transport
	corr      *correlator.Correlator
	stats     *correlator.Statistics
	capture   *capture.Writer
}

func openSession(ctx context.Context, cmd *cobra.Command, b bus, so sessionOptions) (*session, error) {
	s := &session{bus: b, stats: correlator.NewStatistics()}

	t, desc, err := openTransport(ctx, linkConfig(cmd, b),
		link.WithLogger(logging.WithComponent("link")),
		link.WithErrorHandler(func(err error) {
			s.stats.RecordFramingError(err)
			if so.onError != nil {
				so.onError(err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	s.transport, s.desc = t, desc

	var sender correlator.FrameSender = t
	if so.capturePath != "" {
		s.capture, err = capture.Create(so.capturePath, b.String())
		if err != nil {
			t.Close()
			return nil, err
		}
		sender = s.capture.TapSender(t)
	}

	s.corr = correlator.New(sender, b.frameSize(),
		correlator.WithLogger(logging.WithComponent("correlator")),
		correlator.WithVerbose(so.verbose),
		correlator.WithStatistics(s.stats),
	)

	handler := func(frame []byte) {
		s.corr.Deliver(frame)
		if so.observe != nil {
			so.observe(frame)
		}
	}
	if s.capture != nil {
		handler = s.capture.TapHandler(handler)
	}
	t.OnFrame(handler)

	logger := logging.GetLogger()
	logger.Info().Str("bus", b.String()).Str("link", desc).Msg("connected")
	return s, nil
}

// run drives the transport reader alongside fn and closes the link when fn
// returns. A transport failure cancels fn through its context.
func (s *session) run(ctx context.Context, fn func(ctx context.Context) error) error {
	err := link.Serve(ctx, s.transport, fn)
	logger := logging.GetLogger()

	if s.capture != nil {
		if cerr := s.capture.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close capture file")
		}
		logger.Info().Int("records", s.capture.Count()).Msg("capture written")
	}
	logger.Debug().Str("bus", s.bus.String()).Msg(s.stats.String())

	return err
}
