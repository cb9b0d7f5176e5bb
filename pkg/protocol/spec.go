// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

// Instruction is the two byte opcode at the start of a frame.
type Instruction struct {
	Bytes [InstructionSize]byte

	// ChecksumByte is the frame offset of the checksum in a response frame.
	// Zero means the response data runs to the end of the frame.
	ChecksumByte int
}

// NewInstruction creates an Instruction without a checksum position.
func NewInstruction(a, b byte) Instruction {
	return Instruction{Bytes: [InstructionSize]byte{a, b}}
}

// NewResponseInstruction creates an Instruction whose response data ends at
// checksumByte.
func NewResponseInstruction(a, b byte, checksumByte int) Instruction {
	return Instruction{Bytes: [InstructionSize]byte{a, b}, ChecksumByte: checksumByte}
}

// CommandSpec describes one protocol command. Specs are immutable once built
// and are shared by pointer between invocations.
type CommandSpec struct {
	// Name identifies the command in logs and errors.
	Name string

	// Instruction is the request opcode.
	Instruction Instruction

	// Identifier addresses the target device. It follows the instruction in
	// both request and response headers. Optional.
	Identifier Field

	// RequestFields follow the header in the request.
	RequestFields []Field

	// ResponseInstructions lists every response frame the command expects.
	// Empty for fire-and-forget commands.
	ResponseInstructions []Instruction

	// ResponseFields are decoded from the merged response data.
	ResponseFields []Field
}

// HeaderLength returns the number of leading frame bytes that are hashed to
// match a response to this command.
func (s *CommandSpec) HeaderLength() int {
	n := InstructionSize
	if s.Identifier != nil {
		n += s.Identifier.Width()
	}
	return n
}

// SendOnly reports whether the command expects no response.
func (s *CommandSpec) SendOnly() bool {
	return len(s.ResponseInstructions) == 0
}

// identifierWidth returns the width of the identifier, zero without one.
func (s *CommandSpec) identifierWidth() int {
	if s.Identifier == nil {
		return 0
	}
	return s.Identifier.Width()
}
