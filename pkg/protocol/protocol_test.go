// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

func pingSpec() *CommandSpec {
	return &CommandSpec{
		Name:                 "ping",
		Instruction:          NewInstruction(0, 96),
		Identifier:           NewAddressField("ucan_address", 3),
		RequestFields:        []Field{NewByteField("data")},
		ResponseInstructions: []Instruction{NewResponseInstruction(1, 96, 6)},
		ResponseFields:       []Field{NewByteField("data")},
	}
}

func multiSpec() *CommandSpec {
	return &CommandSpec{
		Name:        "read_block",
		Instruction: NewInstruction(0, 50),
		Identifier:  NewAddressField("address", 1),
		ResponseInstructions: []Instruction{
			NewResponseInstruction(1, 50, 6),
			NewResponseInstruction(2, 50, 6),
		},
		ResponseFields: []Field{NewWordField("a"), NewWordField("b"), NewStringField("name", 2)},
	}
}

// fragment builds a response frame without its instruction prefix.
func fragment(identifier []byte, data ...byte) []byte {
	return append(append([]byte{}, identifier...), data...)
}

// ============================================================
// Hash and Checksum Tests
// ============================================================

func TestHashHeader_LittleEndianPacking(t *testing.T) {
	got := HashHeader([]byte{0x01, 0x02, 0x03})
	if got != HeaderHash(0x030201) {
		t.Errorf("expected 0x030201, got 0x%X", uint64(got))
	}
}

func TestHashHeader_Distinct(t *testing.T) {
	a := HashHeader([]byte{1, 96, 0, 0, 1})
	b := HashHeader([]byte{1, 96, 0, 0, 2})
	if a == b {
		t.Error("headers differing in the identifier must hash differently")
	}
}

func TestChecksum_Modulo256(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", nil, 0},
		{"small", []byte{1, 2, 3}, 6},
		{"wraps", []byte{0xFF, 0x02}, 0x01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

// ============================================================
// Encode Tests
// ============================================================

func TestBuildFrame_PingLayout(t *testing.T) {
	frame, err := BuildFrame(pingSpec(), Fields{"ucan_address": 0x010203, "data": 7}, 8)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}

	payload := []byte{0, 96, 1, 2, 3, 7}
	expected := append(append([]byte{}, payload...), Checksum(payload), 0)
	if !bytes.Equal(frame, expected) {
		t.Errorf("expected %v, got %v", expected, frame)
	}
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		field  string
	}{
		{"missing identifier", Fields{"data": 1}, "ucan_address"},
		{"missing request field", Fields{"ucan_address": 1}, "data"},
		{"byte overflow", Fields{"ucan_address": 1, "data": 256}, "data"},
		{"negative", Fields{"ucan_address": 1, "data": -1}, "data"},
		{"address overflow", Fields{"ucan_address": 1 << 24, "data": 1}, "ucan_address"},
		{"wrong type", Fields{"ucan_address": 1, "data": "x"}, "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(pingSpec(), tt.fields)
			var encErr *EncodingError
			if !errors.As(err, &encErr) {
				t.Fatalf("expected EncodingError, got %v", err)
			}
			if encErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, encErr.Field)
			}
		})
	}
}

func TestBuildFrame_TooLarge(t *testing.T) {
	spec := &CommandSpec{
		Name:          "write",
		Instruction:   NewInstruction(0, 1),
		RequestFields: []Field{NewByteArrayField("data", 8)},
	}
	_, err := BuildFrame(spec, Fields{"data": make([]byte, 8)}, 8)
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
}

func TestByteArrayField_LengthMismatch(t *testing.T) {
	f := NewByteArrayField("data", 4)
	if _, err := f.Encode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short array")
	}
	b, err := f.Encode([]int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(b, []byte{1, 2, 3, 4}) {
		t.Errorf("unexpected encoding %v", b)
	}
}

func TestLiteralAndPadding_NoValueNeeded(t *testing.T) {
	spec := &CommandSpec{
		Name:          "literal",
		Instruction:   NewInstruction(9, 9),
		RequestFields: []Field{NewLiteralField(0xAA), NewPaddingField(2)},
	}
	b, err := Encode(spec, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(b, []byte{9, 9, 0xAA, 0, 0}) {
		t.Errorf("unexpected encoding %v", b)
	}
}

// ============================================================
// Response Hash and Decode Tests
// ============================================================

func TestResponseHashes_IncludeIdentifier(t *testing.T) {
	hashes, err := ResponseHashes(pingSpec(), Fields{"ucan_address": 0x010203})
	if err != nil {
		t.Fatalf("ResponseHashes: %v", err)
	}
	if len(hashes) != 1 {
		t.Fatalf("expected 1 hash, got %d", len(hashes))
	}
	if hashes[0] != HashHeader([]byte{1, 96, 1, 2, 3}) {
		t.Errorf("unexpected hash 0x%X", uint64(hashes[0]))
	}
}

func TestResponseHashes_SendOnly(t *testing.T) {
	spec := &CommandSpec{Name: "fire", Instruction: NewInstruction(0, 1)}
	hashes, err := ResponseHashes(spec, nil)
	if err != nil || hashes != nil {
		t.Errorf("expected no hashes, got %v, %v", hashes, err)
	}
}

func TestDecode_SingleFragment(t *testing.T) {
	spec := pingSpec()
	hashes, _ := ResponseHashes(spec, Fields{"ucan_address": 0x010203})
	// frame: [1 96][1 2 3][42][checksum][pad] minus the 2-byte prefix
	byHash := map[HeaderHash][]byte{hashes[0]: fragment([]byte{1, 2, 3}, 42, 0xEE, 0)}

	out, err := Decode(spec, hashes, byHash)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := out.Uint("data"); v != 42 {
		t.Errorf("expected data=42, got %v", out["data"])
	}
	if v, _ := out.Uint("ucan_address"); v != 0x010203 {
		t.Errorf("expected identifier echo, got %v", out["ucan_address"])
	}
}

func TestDecode_MergesInDeclaredOrder(t *testing.T) {
	spec := multiSpec()
	// checksum byte 6 leaves three data bytes per fragment
	spec.ResponseFields = []Field{NewWordField("a"), NewByteField("b"), NewStringField("name", 0)}
	hashes, _ := ResponseHashes(spec, Fields{"address": 5})

	byHash := map[HeaderHash][]byte{
		hashes[1]: fragment([]byte{5}, 'o', 'k', 0, 0xEE),
		hashes[0]: fragment([]byte{5}, 0x12, 0x34, 0xFF, 0xEE),
	}

	out, err := Decode(spec, hashes, byHash)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := out.Uint("a"); v != 0x1234 {
		t.Errorf("expected a=0x1234, got %v", out["a"])
	}
	if v, _ := out.Uint("b"); v != 0xFF {
		t.Errorf("expected b=0xFF, got %v", out["b"])
	}
	if s, _ := out.String("name"); s != "ok" {
		t.Errorf("expected name=ok, got %q", s)
	}
}

func TestDecode_ShortData(t *testing.T) {
	spec := multiSpec()
	hashes, _ := ResponseHashes(spec, Fields{"address": 5})
	byHash := map[HeaderHash][]byte{
		hashes[0]: fragment([]byte{5}, 1),
		hashes[1]: fragment([]byte{5}, 2),
	}

	_, err := Decode(spec, hashes, byHash)
	var decErr *DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodingError, got %v", err)
	}
}

func TestStringField_StopsAtZero(t *testing.T) {
	v, _ := NewStringField("s", 0).Decode([]byte("abc\x00def"))
	if v.(string) != "abc" {
		t.Errorf("expected abc, got %q", v)
	}
}

func TestVersionField_RoundTrip(t *testing.T) {
	f := NewVersionField("v")
	b, err := f.Encode("1.2.3")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, _ := f.Decode(b)
	if v.(string) != "1.2.3" {
		t.Errorf("expected 1.2.3, got %v", v)
	}
	if _, err := f.Encode("1.2"); err == nil {
		t.Error("expected error for short version")
	}
}
