// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWriter(Config{Level: "warn", Format: "json"}, &buf); err != nil {
		t.Fatalf("InitWriter failed: %v", err)
	}

	if GetLogger().GetLevel() != zerolog.WarnLevel {
		t.Errorf("Expected warn level, got %v", GetLogger().GetLevel())
	}

	hidden := WithComponent("bootload")
	hidden.Info().Msg("hidden")
	shown := WithComponent("bootload")
	shown.Warn().Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if entry["component"] != "bootload" {
		t.Errorf("Expected component field, got %v", entry["component"])
	}
	if entry["message"] != "shown" {
		t.Errorf("Expected message 'shown', got %v", entry["message"])
	}
}

func TestInitWriter_DebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWriter(Config{Level: "error", Debug: true, Format: "json"}, &buf); err != nil {
		t.Fatalf("InitWriter failed: %v", err)
	}
	if GetLogger().GetLevel() != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %v", GetLogger().GetLevel())
	}
}

func TestInitWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWriter(Config{Format: "console"}, &buf); err != nil {
		t.Fatalf("InitWriter failed: %v", err)
	}

	logger := GetLogger()
	logger.Info().Str("step", "write_code").Msg("step")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("Expected console output, got JSON: %q", out)
	}
	if !strings.Contains(out, "step=write_code") {
		t.Errorf("Expected field in console output, got %q", out)
	}
}

func TestInitWriter_BadLevel(t *testing.T) {
	if err := InitWriter(Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWriter(Config{Format: "json"}, &buf); err != nil {
		t.Fatalf("InitWriter failed: %v", err)
	}

	SetLevel(zerolog.ErrorLevel)
	if GetLogger().GetLevel() != zerolog.ErrorLevel {
		t.Errorf("Expected error level, got %v", GetLogger().GetLevel())
	}
}
