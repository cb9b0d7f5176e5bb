// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import "fmt"

// EncodingError indicates that a field value is missing or does not fit the
// declared width of its field.
type EncodingError struct {
	Command string
	Field   string
	Reason  string
}

func (e *EncodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("encode %s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("encode %s: field %q: %s", e.Command, e.Field, e.Reason)
}

// DecodingError indicates that a response payload could not be interpreted
// with the response layout of its command.
type DecodingError struct {
	Command string
	Field   string
	Reason  string
}

func (e *DecodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("decode %s: field %q: %s", e.Command, e.Field, e.Reason)
}
