// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hexfile

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Intel HEX record types
const (
	recordData                   = 0x00
	recordEndOfFile              = 0x01
	recordExtendedSegmentAddress = 0x02
	recordStartSegmentAddress    = 0x03
	recordExtendedLinearAddress  = 0x04
	recordStartLinearAddress     = 0x05
)

// minimumRecordBytes is length + address(2) + type + checksum.
const minimumRecordBytes = 5

// Load parses the Intel HEX file at path.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Parse reads Intel HEX records from r. Record types 00, 01, 02 and 04 are
// applied; start address records are accepted and ignored. Each line
// checksum is verified.
func Parse(r io.Reader) (*Image, error) {
	img := NewImage()
	scanner := bufio.NewScanner(r)

	var base uint32
	lineNum := 0
	sawEOF := false

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if sawEOF {
			return nil, fmt.Errorf("line %d: data after end-of-file record", lineNum)
		}
		if line[0] != ':' {
			return nil, fmt.Errorf("line %d: record does not start with ':'", lineNum)
		}

		data, err := hex.DecodeString(line[1:])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid hex data: %w", lineNum, err)
		}
		if len(data) < minimumRecordBytes {
			return nil, fmt.Errorf("line %d: record too short: %d bytes", lineNum, len(data))
		}

		length := int(data[0])
		if len(data) != length+minimumRecordBytes {
			return nil, fmt.Errorf("line %d: length mismatch: header says %d data bytes, record has %d",
				lineNum, length, len(data)-minimumRecordBytes)
		}

		var sum byte
		for _, b := range data {
			sum += b
		}
		if sum != 0 {
			return nil, fmt.Errorf("line %d: checksum mismatch", lineNum)
		}

		offset := uint32(data[1])<<8 | uint32(data[2])
		payload := data[4 : 4+length]

		switch data[3] {
		case recordData:
			img.Set(base+offset, payload)
		case recordEndOfFile:
			sawEOF = true
		case recordExtendedSegmentAddress:
			if length != 2 {
				return nil, fmt.Errorf("line %d: segment address record needs 2 bytes", lineNum)
			}
			base = (uint32(payload[0])<<8 | uint32(payload[1])) << 4
		case recordExtendedLinearAddress:
			if length != 2 {
				return nil, fmt.Errorf("line %d: linear address record needs 2 bytes", lineNum)
			}
			base = (uint32(payload[0])<<8 | uint32(payload[1])) << 16
		case recordStartSegmentAddress, recordStartLinearAddress:
		default:
			return nil, fmt.Errorf("line %d: unknown record type 0x%02X", lineNum, data[3])
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !sawEOF {
		return nil, fmt.Errorf("missing end-of-file record")
	}

	return img, nil
}
