// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootload

import "time"

// Step is one state of the flashing state machine.
type Step int

const (
	StepIdle Step = iota
	StepReadVersion
	StepReadCalibration
	StepEnterBootloader
	StepIdentify
	StepEraseCode
	StepWriteVectorTable
	StepWriteCode
	StepJumpToApplication
	StepRestoreCalibration
	StepDone
)

var stepNames = map[Step]string{
	StepIdle:               "idle",
	StepReadVersion:        "read_version",
	StepReadCalibration:    "read_calibration",
	StepEnterBootloader:    "enter_bootloader",
	StepIdentify:           "identify",
	StepEraseCode:          "erase_code",
	StepWriteVectorTable:   "write_vector_table",
	StepWriteCode:          "write_code",
	StepJumpToApplication:  "jump_to_application",
	StepRestoreCalibration: "restore_calibration",
	StepDone:               "done",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Progress describes where a flash run is.
type Progress struct {
	// Step is the current state
	Step Step

	// Address is the bus address of the module
	Address uint32

	// Record is the number of records written so far across all write steps
	Record int

	// TotalRecords is the number of records the run writes
	TotalRecords int

	// Percentage is the share of records written (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time since the run started
	ElapsedTime time.Duration
}

// ProgressCallback receives progress events. It runs on the flashing
// goroutine and should return quickly.
type ProgressCallback func(Progress)
