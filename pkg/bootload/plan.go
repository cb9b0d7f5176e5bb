// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootload

import (
	"fmt"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/hexfile"
)

// Bootloader constants
const (
	// EightPortChipID is the chip id an 8-port bootloader must report.
	EightPortChipID = 213

	// CalibrationAddress and CalibrationLength locate the 12-port
	// calibration block in EEPROM.
	CalibrationAddress = 256
	CalibrationLength  = 100

	// First and last+1 flash page erased on a 12-port module.
	TwelvePortFirstPage = 6
	TwelvePortEndPage   = 64
)

// Plan is the step sequence for one generation. A plan runs in three
// phases: Prepare, then Guarded followed by the jump to the application,
// then After. With GuaranteedJump the jump runs even when Guarded fails.
type Plan struct {
	Generation api.Generation
	Layout     hexfile.Layout

	Prepare        []Step
	Guarded        []Step
	GuaranteedJump bool
	After          []Step

	VectorTable []uint32
	Code        []uint32
	ErasePages  []int
}

// NewPlan returns the plan for a module generation.
func NewPlan(g api.Generation) (*Plan, error) {
	switch g {
	case api.EightPort:
		return &Plan{
			Generation:  g,
			Layout:      hexfile.EightPort,
			Prepare:     []Step{StepReadVersion, StepEnterBootloader, StepIdentify},
			Guarded:     []Step{StepWriteVectorTable, StepWriteCode},
			VectorTable: hexfile.Addresses(hexfile.EightPortVectorStart, hexfile.EightPortVectorEnd, hexfile.EightPortStep),
			Code:        hexfile.Addresses(hexfile.EightPortCodeStart, hexfile.EightPortCodeEnd, hexfile.EightPortStep),
		}, nil

	case api.TwelvePort:
		pages := make([]int, 0, TwelvePortEndPage-TwelvePortFirstPage)
		for p := TwelvePortFirstPage; p < TwelvePortEndPage; p++ {
			pages = append(pages, p)
		}
		return &Plan{
			Generation:     g,
			Layout:         hexfile.TwelvePort,
			Prepare:        []Step{StepReadVersion, StepReadCalibration, StepEnterBootloader},
			Guarded:        []Step{StepEraseCode, StepWriteCode},
			GuaranteedJump: true,
			After:          []Step{StepRestoreCalibration},
			Code:           hexfile.Addresses(hexfile.TwelvePortCodeStart, hexfile.TwelvePortCodeEnd, hexfile.TwelvePortStep),
			ErasePages:     pages,
		}, nil
	}
	return nil, fmt.Errorf("no bootload plan for %s", g)
}

// Records returns every record address in write order.
func (p *Plan) Records() []uint32 {
	out := make([]uint32, 0, len(p.VectorTable)+len(p.Code))
	out = append(out, p.VectorTable...)
	return append(out, p.Code...)
}
