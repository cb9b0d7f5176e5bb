// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "busboot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
power:
  port: /dev/ttyUSB1
ucan:
  url: wss://gw.local/ucan
  username: admin
  no_ssl_verify: true
logging:
  level: debug
timeouts:
  command: 500ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Power.Port)
	assert.Equal(t, 115200, cfg.Power.Baud, "default kept")
	assert.Equal(t, "wss://gw.local/ucan", cfg.UCAN.URL)
	assert.True(t, cfg.UCAN.NoSSLVerify)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output, "default kept")
	assert.Equal(t, Duration(500*time.Millisecond), cfg.Timeouts.Command)
	assert.Equal(t, Duration(10*time.Second), cfg.Timeouts.EnterBootloader)
}

func TestLoad_NumericDuration(t *testing.T) {
	cfg, err := Load(writeConfig(t, "timeouts:\n  command: 1000000\n"))
	require.NoError(t, err)
	assert.Equal(t, Duration(time.Millisecond), cfg.Timeouts.Command)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad duration", "timeouts:\n  command: soon\n"},
		{"zero timeout", "timeouts:\n  command: 0s\n"},
		{"not yaml", "power: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLink_Validate(t *testing.T) {
	assert.Error(t, Link{}.Validate())
	assert.Error(t, Link{Port: "/dev/ttyUSB0", URL: "ws://x"}.Validate())
	assert.Error(t, Link{Port: "/dev/ttyUSB0"}.Validate())
	assert.NoError(t, Link{Port: "/dev/ttyUSB0", Baud: 9600}.Validate())
	assert.NoError(t, Link{URL: "ws://x"}.Validate())

	assert.False(t, Link{Baud: 9600}.Configured())
	assert.True(t, Link{URL: "ws://x"}.Configured())
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	b, err := Duration(1500 * time.Millisecond).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))

	var d Duration
	require.NoError(t, d.UnmarshalJSON(b))
	assert.Equal(t, Duration(1500*time.Millisecond), d)
}
