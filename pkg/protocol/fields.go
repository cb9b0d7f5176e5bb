// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Field describes how one named value is laid out in a frame.
type Field interface {
	// Name is the key of the value in Fields. Empty for layout-only fields.
	Name() string

	// Width is the number of bytes the field occupies. Zero means the field
	// consumes the remainder of the payload.
	Width() int

	// Encode converts a value to exactly Width bytes.
	Encode(value interface{}) ([]byte, error)

	// Decode interprets exactly Width bytes (or the remainder).
	Decode(data []byte) (interface{}, error)
}

// valueless is implemented by fields that encode without a caller value.
type valueless interface {
	valueless()
}

// ByteField is an unsigned 8-bit value.
type ByteField struct{ name string }

// NewByteField creates a ByteField.
func NewByteField(name string) ByteField { return ByteField{name: name} }

func (f ByteField) Name() string { return f.name }
func (f ByteField) Width() int   { return 1 }

func (f ByteField) Encode(value interface{}) ([]byte, error) {
	v, err := toUint(value, 0xFF)
	if err != nil {
		return nil, err
	}
	return []byte{byte(v)}, nil
}

func (f ByteField) Decode(data []byte) (interface{}, error) {
	return data[0], nil
}

// WordField is an unsigned 16-bit big-endian value.
type WordField struct{ name string }

// NewWordField creates a WordField.
func NewWordField(name string) WordField { return WordField{name: name} }

func (f WordField) Name() string { return f.name }
func (f WordField) Width() int   { return 2 }

func (f WordField) Encode(value interface{}) ([]byte, error) {
	v, err := toUint(value, 0xFFFF)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(v))
	return out, nil
}

func (f WordField) Decode(data []byte) (interface{}, error) {
	return binary.BigEndian.Uint16(data), nil
}

// Int32Field is an unsigned 32-bit big-endian value.
type Int32Field struct{ name string }

// NewInt32Field creates an Int32Field.
func NewInt32Field(name string) Int32Field { return Int32Field{name: name} }

func (f Int32Field) Name() string { return f.name }
func (f Int32Field) Width() int   { return 4 }

func (f Int32Field) Encode(value interface{}) ([]byte, error) {
	v, err := toUint(value, 0xFFFFFFFF)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(v))
	return out, nil
}

func (f Int32Field) Decode(data []byte) (interface{}, error) {
	return binary.BigEndian.Uint32(data), nil
}

// AddressField is an integer device address packed big-endian into a fixed
// number of bytes. It is used as the command identifier.
type AddressField struct {
	name  string
	width int
}

// NewAddressField creates an AddressField of the given byte width (1-4).
func NewAddressField(name string, width int) AddressField {
	if width < 1 || width > 4 {
		panic(fmt.Sprintf("protocol: address width %d out of range", width))
	}
	return AddressField{name: name, width: width}
}

func (f AddressField) Name() string { return f.name }
func (f AddressField) Width() int   { return f.width }

func (f AddressField) Encode(value interface{}) ([]byte, error) {
	v, err := toUint(value, 1<<(8*uint(f.width))-1)
	if err != nil {
		return nil, err
	}
	out := make([]byte, f.width)
	for i := f.width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out, nil
}

func (f AddressField) Decode(data []byte) (interface{}, error) {
	var v uint32
	for _, b := range data[:f.width] {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// ByteArrayField is a fixed-length run of raw bytes.
type ByteArrayField struct {
	name   string
	length int
}

// NewByteArrayField creates a ByteArrayField of the given length.
func NewByteArrayField(name string, length int) ByteArrayField {
	return ByteArrayField{name: name, length: length}
}

func (f ByteArrayField) Name() string { return f.name }
func (f ByteArrayField) Width() int   { return f.length }

func (f ByteArrayField) Encode(value interface{}) ([]byte, error) {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case []int:
		data = make([]byte, len(v))
		for i, n := range v {
			if n < 0 || n > 0xFF {
				return nil, fmt.Errorf("element %d value %d exceeds a byte", i, n)
			}
			data[i] = byte(n)
		}
	default:
		return nil, fmt.Errorf("expected []byte, got %T", value)
	}
	if len(data) != f.length {
		return nil, fmt.Errorf("expected %d bytes, got %d", f.length, len(data))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (f ByteArrayField) Decode(data []byte) (interface{}, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// StringField is text terminated by the first zero byte. With length zero it
// consumes the remainder of the payload.
type StringField struct {
	name   string
	length int
}

// NewStringField creates a StringField. Pass length 0 for a trailing string.
func NewStringField(name string, length int) StringField {
	return StringField{name: name, length: length}
}

func (f StringField) Name() string { return f.name }
func (f StringField) Width() int   { return f.length }

func (f StringField) Encode(value interface{}) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	if f.length == 0 {
		return append([]byte(s), 0), nil
	}
	if len(s) > f.length {
		return nil, fmt.Errorf("string of %d bytes exceeds width %d", len(s), f.length)
	}
	out := make([]byte, f.length)
	copy(out, s)
	return out, nil
}

func (f StringField) Decode(data []byte) (interface{}, error) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}

// VersionField is a three byte major.minor.patch version.
type VersionField struct{ name string }

// NewVersionField creates a VersionField.
func NewVersionField(name string) VersionField { return VersionField{name: name} }

func (f VersionField) Name() string { return f.name }
func (f VersionField) Width() int   { return 3 }

func (f VersionField) Encode(value interface{}) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected version string, got %T", value)
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("version %q is not major.minor.patch", s)
	}
	out := make([]byte, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 0xFF {
			return nil, fmt.Errorf("version component %q out of range", p)
		}
		out[i] = byte(n)
	}
	return out, nil
}

func (f VersionField) Decode(data []byte) (interface{}, error) {
	return fmt.Sprintf("%d.%d.%d", data[0], data[1], data[2]), nil
}

// PaddingField reserves bytes that are zero on encode and ignored on decode.
type PaddingField struct{ length int }

// NewPaddingField creates a PaddingField.
func NewPaddingField(length int) PaddingField { return PaddingField{length: length} }

func (f PaddingField) Name() string                      { return "" }
func (f PaddingField) Width() int                        { return f.length }
func (f PaddingField) Encode(interface{}) ([]byte, error) { return make([]byte, f.length), nil }
func (f PaddingField) Decode([]byte) (interface{}, error) { return nil, nil }
func (f PaddingField) valueless()                        {}

// LiteralField emits fixed bytes.
type LiteralField struct{ data []byte }

// NewLiteralField creates a LiteralField.
func NewLiteralField(data ...byte) LiteralField { return LiteralField{data: data} }

func (f LiteralField) Name() string { return "" }
func (f LiteralField) Width() int   { return len(f.data) }

func (f LiteralField) Encode(interface{}) ([]byte, error) {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (f LiteralField) Decode([]byte) (interface{}, error) { return nil, nil }
func (f LiteralField) valueless()                        {}

// toUint converts an integer value and checks it against max.
func toUint(value interface{}, max uint64) (uint64, error) {
	var v uint64
	switch n := value.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		v = uint64(n)
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		v = uint64(n)
	case int32:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		v = uint64(n)
	case uint:
		v = uint64(n)
	case uint8:
		v = uint64(n)
	case uint16:
		v = uint64(n)
	case uint32:
		v = uint64(n)
	case uint64:
		v = n
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
	if v > max {
		return 0, fmt.Errorf("value %d exceeds maximum %d", v, max)
	}
	return v, nil
}
