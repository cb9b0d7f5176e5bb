// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "fmt"

// Decoder reassembles frames from a stuffed byte stream.
type Decoder struct {
	state      int
	buffer     []byte
	maxSize    int
	escapeNext bool
}

// NewDecoder creates a decoder that rejects frames longer than maxSize.
func NewDecoder(maxSize int) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Decoder{
		state:   stateIdle,
		buffer:  make([]byte, 0, maxSize),
		maxSize: maxSize,
	}
}

// Reset drops any partial frame and waits for the next START byte.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.escapeNext = false
}

// DecodeByte feeds one byte to the decoder. It returns a completed frame, or
// nil while the frame is incomplete. The returned slice is owned by the caller.
func (d *Decoder) DecodeByte(b byte) ([]byte, error) {
	switch {
	case b == StartByte:
		// A START inside a frame means the previous frame was cut short.
		truncated := d.state == stateFrame && len(d.buffer) > 0
		d.Reset()
		d.state = stateFrame
		if truncated {
			return nil, fmt.Errorf("frame restarted before END")
		}
		return nil, nil

	case b == EndByte:
		if d.state != stateFrame {
			d.Reset()
			return nil, fmt.Errorf("unexpected END byte outside a frame")
		}
		if d.escapeNext {
			d.Reset()
			return nil, fmt.Errorf("incomplete escape sequence before END")
		}
		frame := make([]byte, len(d.buffer))
		copy(frame, d.buffer)
		d.Reset()
		return frame, nil
	}

	if d.state == stateIdle {
		return nil, nil
	}

	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	if len(d.buffer) >= d.maxSize {
		d.Reset()
		return nil, fmt.Errorf("buffer overflow: frame exceeds %d bytes", d.maxSize)
	}
	d.buffer = append(d.buffer, b)
	return nil, nil
}
