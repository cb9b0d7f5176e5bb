// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hexfile loads Intel HEX firmware images and cuts them into the
// address-prefixed write records the power module bootloaders accept.
package hexfile

import (
	"fmt"
	"sort"
)

const pageBits = 10

const pageSize = 1 << pageBits

// RangeError reports an image read outside the bytes the HEX file defines.
type RangeError struct {
	Address uint32
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("image has no data at address 0x%08X", e.Address)
}

type page struct {
	data [pageSize]byte
	set  [pageSize / 64]uint64
}

func (p *page) has(off uint32) bool {
	return p.set[off/64]&(1<<(off%64)) != 0
}

// Image is a sparse, random-access byte memory keyed by absolute address.
type Image struct {
	pages map[uint32]*page
	size  int
}

// NewImage creates an empty image.
func NewImage() *Image {
	return &Image{pages: make(map[uint32]*page)}
}

// Set stores data starting at address. Later writes win.
func (img *Image) Set(address uint32, data []byte) {
	for i, b := range data {
		a := address + uint32(i)
		p, ok := img.pages[a>>pageBits]
		if !ok {
			p = &page{}
			img.pages[a>>pageBits] = p
		}
		off := a & (pageSize - 1)
		if !p.has(off) {
			img.size++
		}
		p.data[off] = b
		p.set[off/64] |= 1 << (off % 64)
	}
}

// At returns the byte at address, or a *RangeError if the image does not
// define it.
func (img *Image) At(address uint32) (byte, error) {
	p, ok := img.pages[address>>pageBits]
	if !ok {
		return 0, &RangeError{Address: address}
	}
	off := address & (pageSize - 1)
	if !p.has(off) {
		return 0, &RangeError{Address: address}
	}
	return p.data[off], nil
}

// Slice returns n bytes starting at address.
func (img *Image) Slice(address uint32, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		b, err := img.At(address + uint32(i))
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Len returns the number of defined bytes.
func (img *Image) Len() int { return img.size }

// Segment is a run of contiguous defined bytes.
type Segment struct {
	Start uint32
	End   uint32 // exclusive
}

func (s Segment) String() string {
	return fmt.Sprintf("0x%05X-0x%05X", s.Start, s.End-1)
}

// Segments lists the contiguous defined ranges in address order.
func (img *Image) Segments() []Segment {
	keys := make([]uint32, 0, len(img.pages))
	for k := range img.pages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var segs []Segment
	for _, k := range keys {
		p := img.pages[k]
		for off := uint32(0); off < pageSize; off++ {
			if !p.has(off) {
				continue
			}
			a := k<<pageBits | off
			if n := len(segs); n > 0 && segs[n-1].End == a {
				segs[n-1].End = a + 1
			} else {
				segs = append(segs, Segment{Start: a, End: a + 1})
			}
		}
	}
	return segs
}
