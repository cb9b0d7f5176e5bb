// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hexfile

// Reader produces write records from an image and keeps the running image
// checksum. Use one Reader per flash run; Readers share nothing.
type Reader struct {
	img      *Image
	layout   Layout
	checksum uint32
}

// NewReader creates a Reader with a zero checksum.
func NewReader(img *Image, layout Layout) *Reader {
	return &Reader{img: img, layout: layout}
}

// Layout returns the record layout.
func (r *Reader) Layout() Layout { return r.layout }

// NextRecord returns the record at address. Records must be requested in
// write order: the trailer record embeds the checksum of every record read
// before it.
func (r *Reader) NextRecord(address uint32) ([]byte, error) {
	return r.layout.build(r.img, address, &r.checksum)
}

// Checksum returns the sum of data bytes read so far, trailer excluded.
func (r *Reader) Checksum() uint32 { return r.checksum }

// CheckCoverage verifies that every record at addresses can be built,
// without touching any Reader state. It returns the first *RangeError.
func CheckCoverage(img *Image, layout Layout, addresses []uint32) error {
	var scratch uint32
	for _, a := range addresses {
		if _, err := layout.build(img, a, &scratch); err != nil {
			return err
		}
	}
	return nil
}
