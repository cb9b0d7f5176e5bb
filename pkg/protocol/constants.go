// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package protocol implements the command codec shared by the power and uCAN
// buses: field layouts, command specs, header hashing and the request
// checksum.
//
// A frame on the wire is laid out as
//
//	[instruction (2)][identifier (n)][fields...][checksum (1)][zero padding]
//
// The instruction plus identifier form the frame header. Responses are matched
// to requests by hashing that header.
package protocol

// Frame layout
const (
	// InstructionSize is the width of the instruction prefix of every frame.
	InstructionSize = 2

	// PayloadPrefix is the number of leading frame bytes dropped before a
	// response fragment is stored.
	PayloadPrefix = InstructionSize

	// MaxHeaderLength bounds the header so its hash packs into a uint64.
	MaxHeaderLength = 8

	// ChecksumSize is the size of the trailing request checksum.
	ChecksumSize = 1
)
