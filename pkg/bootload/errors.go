// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootload

import (
	"errors"
	"fmt"
)

// ErrModuleNotFound is returned when an address is not in the inventory.
var ErrModuleNotFound = errors.New("module not found")

// UnexpectedChipIDError indicates that the bootloader reported a chip id
// other than the one the firmware is built for.
type UnexpectedChipIDError struct {
	Address  uint32
	Expected uint8
	Actual   uint8
}

func (e *UnexpectedChipIDError) Error() string {
	return fmt.Sprintf("module %d: unexpected chip id %d (expected %d)", e.Address, e.Actual, e.Expected)
}

// StepError records the step a flash run failed in.
type StepError struct {
	Step    Step
	Address uint32
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("module %d: %s: %v", e.Address, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
