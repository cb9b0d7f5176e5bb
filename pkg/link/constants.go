// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link moves fixed-size bus frames between the host and a bus
// gateway. Byte streams (serial ports) delimit frames with start/end bytes
// and byte stuffing; WebSocket links carry one frame per binary message.
package link

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// DefaultMaxFrameSize bounds the unstuffed size of one received frame.
const DefaultMaxFrameSize = 256

// Decoder states (internal)
const (
	stateIdle = iota
	stateFrame
)
