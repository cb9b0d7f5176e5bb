// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

// Fields holds named command values, both request inputs and decoded
// response outputs.
type Fields map[string]interface{}

// Uint extracts an unsigned integer field of any width.
func (f Fields) Uint(name string) (uint64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f[name]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	case int:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

// Bytes extracts a byte array field.
func (f Fields) Bytes(name string) ([]byte, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f[name]
	if !ok {
		return nil, false
	}
	if val, ok := v.([]byte); ok {
		return val, true
	}
	return nil, false
}

// String extracts a string or version field.
func (f Fields) String(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f[name]
	if !ok {
		return "", false
	}
	if val, ok := v.(string); ok {
		return val, true
	}
	return "", false
}
