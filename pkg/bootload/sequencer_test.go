// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/correlator"
	"github.com/Thermoquad/busboot/pkg/hexfile"
	"github.com/Thermoquad/busboot/pkg/protocol"
)

// call is one command seen by fakeModule.
type call struct {
	command string
	fields  protocol.Fields
	timeout time.Duration
	ctxErr  error
}

// fakeModule answers power commands at the Commander level.
type fakeModule struct {
	mu    sync.Mutex
	calls []call

	version         string
	chipID          uint8
	calibration     []byte
	failCalibration bool
	failWriteAt     int // 1-based write number that fails, 0 for none
	failJump        bool
	writes          int
}

func newFakeModule(chipID uint8) *fakeModule {
	cal := make([]byte, CalibrationLength)
	for i := range cal {
		cal[i] = byte(i + 1)
	}
	return &fakeModule{version: "ENERGY_3_1_4\x00\x00", chipID: chipID, calibration: cal}
}

func (m *fakeModule) Send(ctx context.Context, spec *protocol.CommandSpec, fields protocol.Fields, timeout time.Duration) (protocol.Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(protocol.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	m.calls = append(m.calls, call{command: spec.Name, fields: copied, timeout: timeout, ctxErr: ctx.Err()})

	switch spec.Name {
	case "get_version":
		return protocol.Fields{"version": m.version}, nil
	case "bootloader_read_id":
		return protocol.Fields{"chip_id": m.chipID}, nil
	case "read_eeprom_12":
		if m.failCalibration {
			return nil, &correlator.TimeoutError{Command: spec.Name, Timeout: timeout}
		}
		return protocol.Fields{"data": append([]byte(nil), m.calibration...)}, nil
	case "bootloader_write_code":
		m.writes++
		if m.writes == m.failWriteAt {
			return nil, &correlator.TransportError{Command: spec.Name, Err: errors.New("bus gone")}
		}
	case "bootloader_jump_application":
		if m.failJump {
			return nil, &correlator.TimeoutError{Command: spec.Name, Timeout: timeout}
		}
	}
	return protocol.Fields{}, nil
}

func (m *fakeModule) count(command string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.command == command {
			n++
		}
	}
	return n
}

func (m *fakeModule) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.command
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func lastIndexOf(list []string, s string) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i] == s {
			return i
		}
	}
	return -1
}

func fillImage(start, end uint32) *hexfile.Image {
	img := hexfile.NewImage()
	data := make([]byte, end-start)
	for i := range data {
		data[i] = byte(i * 13)
	}
	img.Set(start, data)
	return img
}

func eightPortImage() *hexfile.Image {
	return fillImage(0, 2*hexfile.EightPortCodeEnd)
}

func twelvePortImage() *hexfile.Image {
	return fillImage(hexfile.TwelvePortCodeStart, hexfile.TwelvePortTrailer+hexfile.TwelvePortStep)
}

func TestPlan_Counts(t *testing.T) {
	p8, err := NewPlan(api.EightPort)
	require.NoError(t, err)
	assert.Len(t, p8.VectorTable, 8)
	assert.Len(t, p8.Code, 280)
	assert.Empty(t, p8.ErasePages)
	assert.False(t, p8.GuaranteedJump)

	p12, err := NewPlan(api.TwelvePort)
	require.NoError(t, err)
	assert.Empty(t, p12.VectorTable)
	assert.Len(t, p12.Code, 1856)
	assert.Len(t, p12.ErasePages, 58)
	assert.Equal(t, 6, p12.ErasePages[0])
	assert.Equal(t, 63, p12.ErasePages[len(p12.ErasePages)-1])
	assert.True(t, p12.GuaranteedJump)

	_, err = NewPlan(api.Generation(16))
	assert.Error(t, err)
}

// Scenario A: 8-port module with the expected chip id.
func TestFlash_EightPort(t *testing.T) {
	mod := newFakeModule(EightPortChipID)
	seq := New(mod)

	info, err := seq.Flash(context.Background(), 4, api.EightPort, eightPortImage())
	require.NoError(t, err)

	assert.Equal(t, "3.1.4 (ENERGY)", info.PreviousVersion)
	assert.Equal(t, 8+280, info.RecordsWritten)
	assert.Equal(t, 8+280, mod.count("bootloader_write_code"))
	assert.Equal(t, 0, mod.count("bootloader_erase_code"))
	assert.Equal(t, 0, mod.count("read_eeprom_8"))
	assert.Equal(t, 1, mod.count("bootloader_jump_application"))

	cmds := mod.commands()
	assert.Equal(t, []string{"get_version", "bootloader_goto", "bootloader_read_id"}, cmds[:3])
	assert.Equal(t, "bootloader_jump_application", cmds[len(cmds)-1])

	// vector table first, record 0 carries the bootloader reset vector
	first := mod.calls[3]
	data, ok := first.fields.Bytes("data")
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0}, data[:3])
	assert.Equal(t, byte(4), data[4])

	for _, c := range mod.calls {
		addr, _ := c.fields.Uint(api.PowerAddressField)
		assert.Equal(t, uint64(4), addr, "every command targets the module")
		if c.command == "bootloader_goto" {
			assert.Equal(t, 10*time.Second, c.timeout)
		} else {
			assert.Equal(t, 2*time.Second, c.timeout)
		}
	}
}

func TestFlash_EightPortUnexpectedChipID(t *testing.T) {
	mod := newFakeModule(99)
	seq := New(mod)

	_, err := seq.Flash(context.Background(), 4, api.EightPort, eightPortImage())

	var chipErr *UnexpectedChipIDError
	require.True(t, errors.As(err, &chipErr))
	assert.Equal(t, uint8(99), chipErr.Actual)
	assert.Equal(t, uint8(EightPortChipID), chipErr.Expected)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepIdentify, stepErr.Step)

	assert.Equal(t, 0, mod.count("bootloader_write_code"))
	assert.Equal(t, 0, mod.count("bootloader_jump_application"))
}

func TestFlash_TwelvePortRestoresCalibration(t *testing.T) {
	mod := newFakeModule(0)
	seq := New(mod, WithSettleDelay(0))

	var steps []Step
	var last Progress
	seq.config.ProgressCallback = func(p Progress) {
		if len(steps) == 0 || steps[len(steps)-1] != p.Step {
			steps = append(steps, p.Step)
		}
		last = p
	}

	info, err := seq.Flash(context.Background(), 2, api.TwelvePort, twelvePortImage())
	require.NoError(t, err)
	assert.True(t, info.CalibrationRestored)

	assert.Equal(t, []Step{
		StepReadVersion, StepReadCalibration, StepEnterBootloader, StepEraseCode,
		StepWriteCode, StepJumpToApplication, StepRestoreCalibration, StepDone,
	}, steps)
	assert.Equal(t, 1856, last.Record)
	assert.Equal(t, 1856, last.TotalRecords)
	assert.InDelta(t, 100.0, last.Percentage, 0.001)

	assert.Equal(t, 58, mod.count("bootloader_erase_code"))
	assert.Equal(t, 1856, mod.count("bootloader_write_code"))

	cmds := mod.commands()
	jump := indexOf(cmds, "bootloader_jump_application")
	restore := indexOf(cmds, "write_eeprom_12")
	require.NotEqual(t, -1, restore)
	assert.Less(t, jump, restore, "calibration is restored after the jump")

	restored, _ := mod.calls[restore].fields.Bytes("data")
	assert.Equal(t, mod.calibration, restored)
	addr, _ := mod.calls[restore].fields.Uint("address")
	assert.Equal(t, uint64(CalibrationAddress), addr)
}

// Scenario B: calibration read fails, the run proceeds without restore.
func TestFlash_TwelvePortCalibrationReadFails(t *testing.T) {
	mod := newFakeModule(0)
	mod.failCalibration = true
	seq := New(mod, WithSettleDelay(0))

	info, err := seq.Flash(context.Background(), 2, api.TwelvePort, twelvePortImage())
	require.NoError(t, err)

	assert.False(t, info.CalibrationRestored)
	assert.Equal(t, 1, mod.count("bootloader_jump_application"))
	assert.Equal(t, 0, mod.count("write_eeprom_12"))
	assert.Equal(t, 1856, mod.count("bootloader_write_code"))
}

// Scenario C: the write phase fails and the jump is still sent once.
func TestFlash_TwelvePortJumpAfterWriteFailure(t *testing.T) {
	mod := newFakeModule(0)
	mod.failWriteAt = 10
	seq := New(mod, WithSettleDelay(0))

	info, err := seq.Flash(context.Background(), 2, api.TwelvePort, twelvePortImage())
	require.Error(t, err)

	var transportErr *correlator.TransportError
	assert.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 9, info.RecordsWritten)

	assert.Equal(t, 10, mod.count("bootloader_write_code"))
	assert.Equal(t, 1, mod.count("bootloader_jump_application"))
	assert.Equal(t, 0, mod.count("write_eeprom_12"), "no restore after a failed write phase")

	cmds := mod.commands()
	assert.Greater(t, indexOf(cmds, "bootloader_jump_application"), lastIndexOf(cmds, "bootloader_write_code"))
}

func TestFlash_TwelvePortJumpFailureIsJoined(t *testing.T) {
	mod := newFakeModule(0)
	mod.failWriteAt = 1
	mod.failJump = true
	seq := New(mod, WithSettleDelay(0))

	_, err := seq.Flash(context.Background(), 2, api.TwelvePort, twelvePortImage())
	require.Error(t, err)

	var transportErr *correlator.TransportError
	assert.True(t, errors.As(err, &transportErr), "write failure kept")
	assert.ErrorIs(t, err, correlator.ErrTimeout, "jump failure kept")
	assert.Equal(t, 1, mod.count("bootloader_jump_application"))
}

func TestFlash_ImageMissingBytesTouchesNothing(t *testing.T) {
	mod := newFakeModule(EightPortChipID)
	seq := New(mod)

	img := fillImage(0, 1000)
	_, err := seq.Flash(context.Background(), 4, api.EightPort, img)

	var rangeErr *hexfile.RangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Empty(t, mod.commands())
}

func TestFlash_ContextCancelledDuringWrite(t *testing.T) {
	mod := newFakeModule(EightPortChipID)
	ctx, cancel := context.WithCancel(context.Background())

	seq := New(mod, WithProgressCallback(func(p Progress) {
		if p.Record == 5 {
			cancel()
		}
	}))

	info, err := seq.Flash(ctx, 4, api.EightPort, eightPortImage())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, info.RecordsWritten)
}

func TestFlash_TwelvePortJumpSurvivesCancellation(t *testing.T) {
	mod := newFakeModule(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seq := New(mod, WithSettleDelay(0), WithProgressCallback(func(p Progress) {
		if p.Record == 5 {
			cancel()
		}
	}))

	info, err := seq.Flash(ctx, 2, api.TwelvePort, twelvePortImage())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, info.RecordsWritten)

	require.Equal(t, 1, mod.count("bootloader_jump_application"))
	jump := mod.calls[lastIndexOf(mod.commands(), "bootloader_jump_application")]
	assert.NoError(t, jump.ctxErr, "jump must be sent on a live context")
	assert.Equal(t, 0, mod.count("write_eeprom_12"))
}
