// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootload

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds the sequencer configuration.
type Config struct {
	// ProgressCallback is called on every step and record (optional)
	ProgressCallback ProgressCallback

	// Logger receives one line per step
	Logger zerolog.Logger

	// CommandTimeout applies to every exchange without its own timeout
	CommandTimeout time.Duration

	// EnterTimeout applies to the enter-bootloader command, which reboots the module
	EnterTimeout time.Duration

	// SettleDelay is the wait between the jump and the calibration restore
	SettleDelay time.Duration
}

func defaultConfig() Config {
	return Config{
		Logger:         zerolog.Nop(),
		CommandTimeout: 2 * time.Second,
		EnterTimeout:   10 * time.Second,
		SettleDelay:    time.Second,
	}
}

// Option is a functional option for configuring the Sequencer.
type Option func(*Config)

// WithProgressCallback sets a callback to track flashing progress.
//
// Example:
//
//	seq := bootload.New(corr,
//	    bootload.WithProgressCallback(func(p bootload.Progress) {
//	        fmt.Printf("%s %.1f%%\n", p.Step, p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithCommandTimeout sets the default per-command timeout.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.CommandTimeout = timeout
		}
	}
}

// WithEnterTimeout sets the enter-bootloader timeout.
func WithEnterTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.EnterTimeout = timeout
		}
	}
}

// WithSettleDelay sets the delay before calibration data is written back.
// Zero disables the delay.
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.SettleDelay = delay
		}
	}
}
