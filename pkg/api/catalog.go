// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"fmt"

	"github.com/Thermoquad/busboot/pkg/protocol"
)

// Catalog names frames by their instruction bytes, for monitors and traces.
type Catalog struct {
	names map[[protocol.InstructionSize]byte]string
}

func newCatalog() *Catalog {
	return &Catalog{names: make(map[[protocol.InstructionSize]byte]string)}
}

func (c *Catalog) add(name string, spec *protocol.CommandSpec) {
	c.names[spec.Instruction.Bytes] = name + " request"

	n := len(spec.ResponseInstructions)
	for i, instr := range spec.ResponseInstructions {
		if n == 1 {
			c.names[instr.Bytes] = name + " response"
		} else {
			c.names[instr.Bytes] = fmt.Sprintf("%s response %d/%d", name, i+1, n)
		}
	}
}

// Describe names a frame, or returns its instruction bytes in hex.
func (c *Catalog) Describe(frame []byte) string {
	if len(frame) < protocol.InstructionSize {
		return fmt.Sprintf("short frame (%d bytes)", len(frame))
	}
	var key [protocol.InstructionSize]byte
	copy(key[:], frame)
	if name, ok := c.names[key]; ok {
		return name
	}
	return fmt.Sprintf("unknown %02X %02X", frame[0], frame[1])
}

// PowerCatalog covers every power bus command.
func PowerCatalog() *Catalog {
	c := newCatalog()
	c.add("get_version", GetVersion())
	c.add("bootloader_goto", BootloaderGoto())
	c.add("bootloader_read_id", BootloaderReadID())
	c.add("bootloader_write_code", BootloaderWriteCode(TwelvePort))
	c.add("bootloader_erase_code", BootloaderEraseCode())
	c.add("bootloader_jump_application", BootloaderJumpApplication())
	c.add("read_eeprom", ReadEEPROM(TwelvePort, 1))
	c.add("write_eeprom", WriteEEPROM(TwelvePort, 1))
	return c
}

// UCANCatalog covers every uCAN command.
func UCANCatalog() *Catalog {
	c := newCatalog()
	for _, spec := range []*protocol.CommandSpec{
		UCANPing(), UCANReadConfig(), UCANSetMinLEDBrightness(), UCANSetMaxLEDBrightness(),
		UCANSetBootloaderTimeout(), UCANSetBootloaderSafetyFlag(), UCANReset(),
	} {
		c.add(spec.Name, spec)
	}
	return c
}
