// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/busboot/pkg/protocol"
)

// uCAN bus link parameters
const (
	// UCANFrameSize is the CAN payload size.
	UCANFrameSize = 8

	// UCANAddressField is the identifier field name of uCAN commands.
	UCANAddressField = "ucan_address"
)

func ucanIdentifier() protocol.Field {
	return protocol.NewAddressField(UCANAddressField, 3)
}

var (
	ucanPing = &protocol.CommandSpec{
		Name:                 "ucan_ping",
		Instruction:          protocol.NewInstruction(0, 96),
		Identifier:           ucanIdentifier(),
		RequestFields:        []protocol.Field{protocol.NewByteField("data")},
		ResponseInstructions: []protocol.Instruction{protocol.NewResponseInstruction(1, 96, 6)},
		ResponseFields:       []protocol.Field{protocol.NewByteField("data")},
	}

	ucanReadConfig = &protocol.CommandSpec{
		Name:                 "ucan_read_config",
		Instruction:          protocol.NewInstruction(0, 199),
		Identifier:           ucanIdentifier(),
		ResponseInstructions: readConfigInstructions(),
		ResponseFields: []protocol.Field{
			protocol.NewByteField("input_link_0"), protocol.NewByteField("input_link_1"),
			protocol.NewByteField("input_link_2"), protocol.NewByteField("input_link_3"),
			protocol.NewByteField("input_link_4"), protocol.NewByteField("input_link_5"),
			protocol.NewByteField("sensor_link_0"), protocol.NewByteField("sensor_link_1"),
			protocol.NewByteField("sensor_type"),
			protocol.NewVersionField("firmware_version"),
			protocol.NewByteField("bootloader"), protocol.NewByteField("new_indicator"),
			protocol.NewByteField("min_led_brightness"), protocol.NewByteField("max_led_brightness"),
			protocol.NewWordField("adc_input_2"), protocol.NewWordField("adc_input_3"),
			protocol.NewWordField("adc_input_4"), protocol.NewWordField("adc_input_5"),
			protocol.NewWordField("adc_dc_input"),
		},
	}

	ucanSetMinLEDBrightness = &protocol.CommandSpec{
		Name:          "ucan_set_min_led_brightness",
		Instruction:   protocol.NewInstruction(0, 246),
		Identifier:    ucanIdentifier(),
		RequestFields: []protocol.Field{protocol.NewByteField("brightness")},
	}

	ucanSetMaxLEDBrightness = &protocol.CommandSpec{
		Name:          "ucan_set_max_led_brightness",
		Instruction:   protocol.NewInstruction(0, 247),
		Identifier:    ucanIdentifier(),
		RequestFields: []protocol.Field{protocol.NewByteField("brightness")},
	}

	ucanSetBootloaderTimeout = &protocol.CommandSpec{
		Name:                 "ucan_set_bootloader_timeout",
		Instruction:          protocol.NewInstruction(0, 123),
		Identifier:           ucanIdentifier(),
		RequestFields:        []protocol.Field{protocol.NewByteField("timeout")},
		ResponseInstructions: []protocol.Instruction{protocol.NewResponseInstruction(123, 123, 6)},
		ResponseFields:       []protocol.Field{protocol.NewByteField("timeout")},
	}

	ucanSetBootloaderSafetyFlag = &protocol.CommandSpec{
		Name:                 "ucan_set_bootloader_safety_flag",
		Instruction:          protocol.NewInstruction(0, 125),
		Identifier:           ucanIdentifier(),
		RequestFields:        []protocol.Field{protocol.NewByteField("safety_flag")},
		ResponseInstructions: []protocol.Instruction{protocol.NewResponseInstruction(125, 125, 6)},
		ResponseFields:       []protocol.Field{protocol.NewByteField("safety_flag")},
	}

	ucanReset = &protocol.CommandSpec{
		Name:                 "ucan_reset",
		Instruction:          protocol.NewInstruction(0, 94),
		Identifier:           ucanIdentifier(),
		ResponseInstructions: []protocol.Instruction{protocol.NewResponseInstruction(94, 94, 6)},
		ResponseFields:       []protocol.Field{protocol.NewByteField("application_mode")},
	}
)

// readConfigInstructions lists the 13 response frames of a config read.
func readConfigInstructions() []protocol.Instruction {
	out := make([]protocol.Instruction, 0, 13)
	for i := 1; i <= 13; i++ {
		out = append(out, protocol.NewResponseInstruction(byte(i), 199, 7))
	}
	return out
}

// UCANPing echoes one data byte.
func UCANPing() *protocol.CommandSpec { return ucanPing }

// UCANReadConfig reads the full uCAN configuration, spread over 13 frames.
func UCANReadConfig() *protocol.CommandSpec { return ucanReadConfig }

// UCANSetMinLEDBrightness sets the minimum LED brightness. No response.
func UCANSetMinLEDBrightness() *protocol.CommandSpec { return ucanSetMinLEDBrightness }

// UCANSetMaxLEDBrightness sets the maximum LED brightness. No response.
func UCANSetMaxLEDBrightness() *protocol.CommandSpec { return ucanSetMaxLEDBrightness }

// UCANSetBootloaderTimeout sets how long the uCAN stays in its bootloader.
func UCANSetBootloaderTimeout() *protocol.CommandSpec { return ucanSetBootloaderTimeout }

// UCANSetBootloaderSafetyFlag sets the bootloader safety flag. Bootloader mode only.
func UCANSetBootloaderSafetyFlag() *protocol.CommandSpec { return ucanSetBootloaderSafetyFlag }

// UCANReset resets the uCAN.
func UCANReset() *protocol.CommandSpec { return ucanReset }

// ParseUCANAddress parses a dotted "a.b.c" uCAN address.
func ParseUCANAddress(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("uCAN address %q is not a.b.c", s)
	}
	var addr uint32
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("uCAN address %q: %w", s, err)
		}
		addr = addr<<8 | uint32(n)
	}
	return addr, nil
}

// FormatUCANAddress formats a uCAN address as "a.b.c".
func FormatUCANAddress(addr uint32) string {
	return fmt.Sprintf("%d.%d.%d", (addr>>16)&0xFF, (addr>>8)&0xFF, addr&0xFF)
}
