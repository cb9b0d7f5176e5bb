// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the busboot configuration file.
//
// Example:
//
//	power:
//	  port: /dev/ttyUSB0
//	  baud: 115200
//	ucan:
//	  url: wss://gateway.local/ucan
//	  username: admin
//	inventory: /etc/busboot/modules.yaml
//	logging:
//	  level: info
//	timeouts:
//	  command: 2s
//	  enter_bootloader: 10s
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"

	"github.com/Thermoquad/busboot/pkg/logging"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "/etc/busboot/busboot.yaml"

var (
	errNoEndpoint   = errors.New("either port or url must be set")
	errBothEndpoint = errors.New("port and url are mutually exclusive")
	errInvalidBaud  = errors.New("baud rate must be positive")
)

// Duration accepts "2s" style strings or integer nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		*d = Duration(dur)
		return nil
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Link selects how a bus is reached: a serial port or a WebSocket gateway.
type Link struct {
	Port        string `json:"port,omitempty"`
	Baud        int    `json:"baud,omitempty"`
	URL         string `json:"url,omitempty"`
	Username    string `json:"username,omitempty"`
	NoSSLVerify bool   `json:"no_ssl_verify,omitempty"`
}

// Configured reports whether an endpoint is set.
func (l Link) Configured() bool { return l.Port != "" || l.URL != "" }

// Validate checks that exactly one endpoint is set.
func (l Link) Validate() error {
	switch {
	case l.Port == "" && l.URL == "":
		return errNoEndpoint
	case l.Port != "" && l.URL != "":
		return errBothEndpoint
	case l.Port != "" && l.Baud <= 0:
		return errInvalidBaud
	}
	return nil
}

// Timeouts bounds bus exchanges.
type Timeouts struct {
	Command         Duration `json:"command"`
	EnterBootloader Duration `json:"enter_bootloader"`
	Settle          Duration `json:"settle"`
}

// Config is the busboot configuration.
type Config struct {
	Power     Link           `json:"power"`
	UCAN      Link           `json:"ucan"`
	Inventory string         `json:"inventory"`
	Logging   logging.Config `json:"logging"`
	Timeouts  Timeouts       `json:"timeouts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Power:     Link{Baud: 115200},
		UCAN:      Link{Baud: 115200},
		Inventory: "/etc/busboot/modules.yaml",
		Logging:   logging.DefaultConfig(),
		Timeouts: Timeouts{
			Command:         Duration(2 * time.Second),
			EnterBootloader: Duration(10 * time.Second),
			Settle:          Duration(time.Second),
		},
	}
}

// Load reads path over the defaults. A missing file at DefaultPath is not an
// error; any other missing file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the timeouts. Links are validated when they are opened.
func (c *Config) Validate() error {
	if c.Timeouts.Command <= 0 {
		return errors.New("timeouts.command must be positive")
	}
	if c.Timeouts.EnterBootloader <= 0 {
		return errors.New("timeouts.enter_bootloader must be positive")
	}
	if c.Timeouts.Settle < 0 {
		return errors.New("timeouts.settle cannot be negative")
	}
	return nil
}
