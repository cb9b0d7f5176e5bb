// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import "fmt"

// HeaderHash identifies a frame header.
type HeaderHash uint64

// HashHeader packs up to MaxHeaderLength header bytes little-endian into a
// HeaderHash. Longer input is truncated.
func HashHeader(header []byte) HeaderHash {
	if len(header) > MaxHeaderLength {
		header = header[:MaxHeaderLength]
	}
	var h uint64
	for i, b := range header {
		h |= uint64(b) << (8 * uint(i))
	}
	return HeaderHash(h)
}

// Checksum computes the request checksum: the sum of all bytes modulo 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Encode builds the request payload for spec without checksum or padding.
func Encode(spec *CommandSpec, fields Fields) ([]byte, error) {
	out := make([]byte, 0, spec.HeaderLength()+8)
	out = append(out, spec.Instruction.Bytes[:]...)

	if spec.Identifier != nil {
		b, err := encodeField(spec, spec.Identifier, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}

	for _, f := range spec.RequestFields {
		b, err := encodeField(spec, f, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}

	return out, nil
}

// BuildFrame encodes a request, appends the checksum and zero-pads the result
// to frameSize.
func BuildFrame(spec *CommandSpec, fields Fields, frameSize int) ([]byte, error) {
	payload, err := Encode(spec, fields)
	if err != nil {
		return nil, err
	}
	if len(payload)+ChecksumSize > frameSize {
		return nil, &EncodingError{
			Command: spec.Name,
			Reason:  fmt.Sprintf("request of %d bytes exceeds frame size %d", len(payload)+ChecksumSize, frameSize),
		}
	}

	frame := make([]byte, frameSize)
	copy(frame, payload)
	frame[len(payload)] = Checksum(payload)
	return frame, nil
}

// ResponseHashes returns the header hashes the response frames of spec will
// carry when the request is sent with fields, one per response instruction in
// declared order.
func ResponseHashes(spec *CommandSpec, fields Fields) ([]HeaderHash, error) {
	if spec.SendOnly() {
		return nil, nil
	}
	if spec.HeaderLength() > MaxHeaderLength {
		return nil, &EncodingError{
			Command: spec.Name,
			Reason:  fmt.Sprintf("header length %d exceeds %d", spec.HeaderLength(), MaxHeaderLength),
		}
	}

	var identifier []byte
	if spec.Identifier != nil {
		b, err := encodeField(spec, spec.Identifier, fields)
		if err != nil {
			return nil, err
		}
		identifier = b
	}

	hashes := make([]HeaderHash, 0, len(spec.ResponseInstructions))
	header := make([]byte, 0, spec.HeaderLength())
	for _, instr := range spec.ResponseInstructions {
		header = append(header[:0], instr.Bytes[:]...)
		header = append(header, identifier...)
		hashes = append(hashes, HashHeader(header))
	}
	return hashes, nil
}

// Decode merges the response fragments of spec in declared instruction order
// and decodes the response fields. Each fragment is a response frame without
// its PayloadPrefix. The response checksum is not verified.
func Decode(spec *CommandSpec, order []HeaderHash, byHash map[HeaderHash][]byte) (Fields, error) {
	if len(order) != len(spec.ResponseInstructions) {
		return nil, &DecodingError{
			Command: spec.Name,
			Reason:  fmt.Sprintf("got %d response hashes for %d instructions", len(order), len(spec.ResponseInstructions)),
		}
	}

	idWidth := spec.identifierWidth()
	out := make(Fields)
	data := make([]byte, 0, 64)

	for i, h := range order {
		fragment, ok := byHash[h]
		if !ok {
			return nil, &DecodingError{Command: spec.Name, Reason: fmt.Sprintf("missing response fragment %d", i)}
		}

		end := len(fragment)
		if cb := spec.ResponseInstructions[i].ChecksumByte; cb > 0 {
			end = cb - PayloadPrefix
		}
		if end < idWidth || end > len(fragment) {
			return nil, &DecodingError{
				Command: spec.Name,
				Reason:  fmt.Sprintf("fragment %d of %d bytes has no data section", i, len(fragment)),
			}
		}

		if i == 0 && spec.Identifier != nil && spec.Identifier.Name() != "" {
			v, err := spec.Identifier.Decode(fragment[:idWidth])
			if err != nil {
				return nil, &DecodingError{Command: spec.Name, Field: spec.Identifier.Name(), Reason: err.Error()}
			}
			out[spec.Identifier.Name()] = v
		}

		data = append(data, fragment[idWidth:end]...)
	}

	offset := 0
	for _, f := range spec.ResponseFields {
		width := f.Width()
		if width == 0 {
			width = len(data) - offset
		}
		if offset+width > len(data) {
			return nil, &DecodingError{
				Command: spec.Name,
				Field:   f.Name(),
				Reason:  fmt.Sprintf("need %d bytes at offset %d, have %d", width, offset, len(data)),
			}
		}

		v, err := f.Decode(data[offset : offset+width])
		if err != nil {
			return nil, &DecodingError{Command: spec.Name, Field: f.Name(), Reason: err.Error()}
		}
		if f.Name() != "" {
			out[f.Name()] = v
		}
		offset += width
	}

	return out, nil
}

// encodeField encodes one field, wrapping failures in an EncodingError.
func encodeField(spec *CommandSpec, f Field, fields Fields) ([]byte, error) {
	var value interface{}
	if _, ok := f.(valueless); !ok {
		v, ok := fields[f.Name()]
		if !ok {
			return nil, &EncodingError{Command: spec.Name, Field: f.Name(), Reason: "missing value"}
		}
		value = v
	}

	b, err := f.Encode(value)
	if err != nil {
		return nil, &EncodingError{Command: spec.Name, Field: f.Name(), Reason: err.Error()}
	}
	if w := f.Width(); w > 0 && len(b) != w {
		return nil, &EncodingError{
			Command: spec.Name,
			Field:   f.Name(),
			Reason:  fmt.Sprintf("encoded %d bytes for width %d", len(b), w),
		}
	}
	return b, nil
}
