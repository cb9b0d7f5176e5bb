// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hexfile

// Layout describes how one bootloader generation lays out a write record.
// The only implementations are EightPort and TwelvePort.
type Layout interface {
	// Name identifies the layout in logs.
	Name() string

	// RecordSize is the full record length, address prefix included.
	RecordSize() int

	// TrailerAddress is the record address that carries the image checksum.
	TrailerAddress() uint32

	// build produces the record at address and adds its data bytes to sum.
	build(img *Image, address uint32, sum *uint32) ([]byte, error)
}

// Memory ranges written by the bootloaders
const (
	EightPortVectorStart = 0
	EightPortVectorEnd   = 1024
	EightPortCodeStart   = 8192
	EightPortCodeEnd     = 44032
	EightPortStep        = 128

	// EightPortTrailer is the last code record.
	EightPortTrailer = 43904

	TwelvePortCodeStart = 0x1D006000
	TwelvePortCodeEnd   = 0x1D03FFFB
	TwelvePortStep      = 128

	// TwelvePortTrailer is the last code record, 486801280.
	TwelvePortTrailer = 0x1D03FF80
)

// EightPort is the first generation power module layout: a 3 byte address
// and 64 groups of 3 bytes taken from every 4 bytes of the image at twice
// the record address.
var EightPort Layout = eightPort{}

// TwelvePort is the energy module layout: a 4 byte little-endian address and
// 128 bytes taken directly from the image.
var TwelvePort Layout = twelvePort{}

type eightPort struct{}

func (eightPort) Name() string           { return "8-port" }
func (eightPort) RecordSize() int        { return 3 + 64*3 }
func (eightPort) TrailerAddress() uint32 { return EightPortTrailer }

func (l eightPort) build(img *Image, address uint32, sum *uint32) ([]byte, error) {
	out := make([]byte, 0, l.RecordSize())
	out = append(out, byte(address%256), byte((address%65536)/256), byte(address/65536))

	iaddr := address * 2
	for i := uint32(0); i < 64; i++ {
		group, err := img.Slice(iaddr+4*i, 3)
		if err != nil {
			return nil, err
		}

		// reset vector points at the bootloader entry, 0x400
		if address == 0 && i == 0 {
			group[1] = 4
		}

		out = append(out, group...)

		if !(address == EightPortTrailer && i >= 62) {
			*sum += uint32(group[0]) + uint32(group[1]) + uint32(group[2])
		}
	}

	if address == EightPortTrailer {
		n := len(out)
		out[n-1] = byte(*sum)
		out[n-2] = byte(*sum >> 8)
		out[n-3] = byte(*sum >> 16)
		out[n-4] = byte(*sum >> 24)
	}

	return out, nil
}

type twelvePort struct{}

func (twelvePort) Name() string           { return "12-port" }
func (twelvePort) RecordSize() int        { return 4 + 32*4 }
func (twelvePort) TrailerAddress() uint32 { return TwelvePortTrailer }

func (l twelvePort) build(img *Image, address uint32, sum *uint32) ([]byte, error) {
	out := make([]byte, 0, l.RecordSize())
	out = appendLE32(out, address)

	for i := uint32(0); i < 32; i++ {
		group, err := img.Slice(address+4*i, 4)
		if err != nil {
			return nil, err
		}

		out = append(out, group...)

		if !(address == TwelvePortTrailer && i == 31) {
			*sum += uint32(group[0]) + uint32(group[1]) + uint32(group[2]) + uint32(group[3])
		}
	}

	if address == TwelvePortTrailer {
		out = appendLE32(out[:len(out)-4], *sum)
	}

	return out, nil
}

func appendLE32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// Addresses returns the record addresses from start up to (not including)
// end in steps.
func Addresses(start, end, step uint32) []uint32 {
	var out []uint32
	for a := start; a < end; a += step {
		out = append(out, a)
	}
	return out
}
