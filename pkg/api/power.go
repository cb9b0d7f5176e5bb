// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api holds the command tables for the power and uCAN buses.
package api

import (
	"fmt"
	"sync"

	"github.com/Thermoquad/busboot/pkg/protocol"
)

// Generation identifies a power module hardware variant.
type Generation int

const (
	// EightPort is the first generation power module.
	EightPort Generation = 8
	// TwelvePort is the second generation energy module.
	TwelvePort Generation = 12
)

func (g Generation) String() string {
	switch g {
	case EightPort:
		return "8-port"
	case TwelvePort:
		return "12-port"
	default:
		return fmt.Sprintf("generation(%d)", int(g))
	}
}

// ParseGeneration parses "8" or "12".
func ParseGeneration(s string) (Generation, error) {
	switch s {
	case "8", "8-port":
		return EightPort, nil
	case "12", "12-port":
		return TwelvePort, nil
	}
	return 0, fmt.Errorf("unknown module generation %q (use 8 or 12)", s)
}

// Power bus link parameters
const (
	// PowerFrameSize fits the largest power request: an 8-port write of
	// 3 + 192 data bytes behind a 3 byte header, plus checksum.
	PowerFrameSize = 200

	// PowerAddressField is the identifier field name of power commands.
	PowerAddressField = "module_address"
)

// Power instruction codes
const (
	powerGetVersion      = 'V'
	powerBootloaderGoto  = 'G'
	powerBootloaderID    = 'I'
	powerWriteCode       = 'W'
	powerEraseCode       = 'E'
	powerJumpApplication = 'J'
	powerReadEEPROM      = 'r'
	powerWriteEEPROM     = 'w'
)

// Record sizes per generation, address prefix included.
const (
	EightPortRecordSize  = 3 + 192
	TwelvePortRecordSize = 4 + 128
)

func powerCommand(name string, code byte, request []protocol.Field, response []protocol.Field) *protocol.CommandSpec {
	return &protocol.CommandSpec{
		Name:                 name,
		Instruction:          protocol.NewInstruction(0, code),
		Identifier:           protocol.NewAddressField(PowerAddressField, 1),
		RequestFields:        request,
		ResponseInstructions: []protocol.Instruction{protocol.NewInstruction(1, code)},
		ResponseFields:       response,
	}
}

var (
	getVersion = powerCommand("get_version", powerGetVersion, nil,
		[]protocol.Field{protocol.NewStringField("version", 16)})

	bootloaderGoto = powerCommand("bootloader_goto", powerBootloaderGoto, nil, nil)

	bootloaderReadID = powerCommand("bootloader_read_id", powerBootloaderID, nil,
		[]protocol.Field{protocol.NewByteField("chip_id")})

	bootloaderWriteCode8 = powerCommand("bootloader_write_code", powerWriteCode,
		[]protocol.Field{protocol.NewByteArrayField("data", EightPortRecordSize)}, nil)

	bootloaderWriteCode12 = powerCommand("bootloader_write_code", powerWriteCode,
		[]protocol.Field{protocol.NewByteArrayField("data", TwelvePortRecordSize)}, nil)

	bootloaderEraseCode = powerCommand("bootloader_erase_code", powerEraseCode,
		[]protocol.Field{protocol.NewByteField("page")}, nil)

	bootloaderJumpApplication = powerCommand("bootloader_jump_application", powerJumpApplication, nil, nil)
)

// GetVersion reads the firmware version string of a power module.
func GetVersion() *protocol.CommandSpec { return getVersion }

// BootloaderGoto makes the module reboot into its bootloader.
func BootloaderGoto() *protocol.CommandSpec { return bootloaderGoto }

// BootloaderReadID reads the chip id. Bootloader mode only.
func BootloaderReadID() *protocol.CommandSpec { return bootloaderReadID }

// BootloaderWriteCode writes one memory record, sized for the generation.
func BootloaderWriteCode(g Generation) *protocol.CommandSpec {
	if g == EightPort {
		return bootloaderWriteCode8
	}
	return bootloaderWriteCode12
}

// BootloaderEraseCode erases one flash page. 12-port bootloader only.
func BootloaderEraseCode() *protocol.CommandSpec { return bootloaderEraseCode }

// BootloaderJumpApplication leaves the bootloader and starts the application.
func BootloaderJumpApplication() *protocol.CommandSpec { return bootloaderJumpApplication }

// EEPROM specs are sized per call site; each size is built once and shared.
type eepromKey struct {
	code       byte
	generation Generation
	length     int
}

var (
	eepromMu    sync.Mutex
	eepromSpecs = map[eepromKey]*protocol.CommandSpec{}
)

func eepromCommand(code byte, g Generation, length int) *protocol.CommandSpec {
	key := eepromKey{code: code, generation: g, length: length}

	eepromMu.Lock()
	defer eepromMu.Unlock()

	if spec, ok := eepromSpecs[key]; ok {
		return spec
	}

	var spec *protocol.CommandSpec
	if code == powerReadEEPROM {
		spec = powerCommand(fmt.Sprintf("read_eeprom_%d", int(g)), powerReadEEPROM,
			[]protocol.Field{protocol.NewWordField("address"), protocol.NewByteField("length")},
			[]protocol.Field{protocol.NewByteArrayField("data", length)})
	} else {
		spec = powerCommand(fmt.Sprintf("write_eeprom_%d", int(g)), powerWriteEEPROM,
			[]protocol.Field{protocol.NewWordField("address"), protocol.NewByteArrayField("data", length)}, nil)
	}
	eepromSpecs[key] = spec
	return spec
}

// ReadEEPROM reads length bytes of EEPROM starting at the "address" field.
func ReadEEPROM(g Generation, length int) *protocol.CommandSpec {
	return eepromCommand(powerReadEEPROM, g, length)
}

// WriteEEPROM writes length bytes of "data" to EEPROM starting at "address".
func WriteEEPROM(g Generation, length int) *protocol.CommandSpec {
	return eepromCommand(powerWriteEEPROM, g, length)
}
