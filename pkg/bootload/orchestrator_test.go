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
	"github.com/Thermoquad/busboot/pkg/inventory"
)

// fakeFlasher returns a canned error per address.
type fakeFlasher struct {
	mu       sync.Mutex
	attempts []uint32
	errs     map[uint32]error
}

func (f *fakeFlasher) Flash(_ context.Context, address uint32, _ api.Generation, _ *hexfile.Image) (FlashInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, address)
	if err := f.errs[address]; err != nil {
		return FlashInfo{}, err
	}
	return FlashInfo{RecordsWritten: 288}, nil
}

func testInventory(t *testing.T, modules ...inventory.Module) *inventory.Inventory {
	t.Helper()
	inv, err := inventory.New(modules)
	require.NoError(t, err)
	return inv
}

func TestFlashAll_ContinuesPastUnavailableModule(t *testing.T) {
	inv := testInventory(t,
		inventory.Module{ID: 1, Address: 1, Generation: api.EightPort},
		inventory.Module{ID: 2, Address: 2, Generation: api.EightPort},
		inventory.Module{ID: 3, Address: 3, Generation: api.EightPort},
	)
	flasher := &fakeFlasher{errs: map[uint32]error{
		2: &StepError{Step: StepReadVersion, Address: 2, Err: &correlator.TimeoutError{Command: "get_version", Timeout: 2 * time.Second}},
	}}

	orch := NewOrchestrator(flasher, inv, hexfile.NewImage(), api.EightPort)
	report, err := orch.FlashAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint32{1, 2, 3}, flasher.attempts)
	require.Len(t, report.Results, 3)
	assert.Equal(t, StatusFlashed, report.Results[0].Status)
	assert.Equal(t, StatusUnavailable, report.Results[1].Status)
	assert.Equal(t, StatusFlashed, report.Results[2].Status)
	assert.Equal(t, 2, report.Count(StatusFlashed))
	assert.Equal(t, 288, report.Results[0].Info.RecordsWritten)
}

func TestFlashAll_ClassifiesFailures(t *testing.T) {
	inv := testInventory(t,
		inventory.Module{ID: 1, Address: 1, Generation: api.TwelvePort},
		inventory.Module{ID: 2, Address: 2, Generation: api.TwelvePort},
		inventory.Module{ID: 3, Address: 3, Generation: api.TwelvePort},
	)
	flasher := &fakeFlasher{errs: map[uint32]error{
		1: &StepError{Step: StepWriteCode, Address: 1, Err: &correlator.TransportError{Command: "bootloader_write_code", Err: errors.New("closed")}},
		2: &StepError{Step: StepIdentify, Address: 2, Err: &UnexpectedChipIDError{Address: 2, Expected: 213, Actual: 7}},
	}}

	report, err := NewOrchestrator(flasher, inv, hexfile.NewImage(), api.TwelvePort).FlashAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusUnavailable, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Error(t, report.Results[1].Err)
	assert.Equal(t, StatusFlashed, report.Results[2].Status)
}

func TestFlashAll_SkipsOtherGeneration(t *testing.T) {
	inv := testInventory(t,
		inventory.Module{ID: 1, Address: 1, Generation: api.EightPort},
		inventory.Module{ID: 2, Address: 2, Generation: api.TwelvePort},
	)
	flasher := &fakeFlasher{}

	report, err := NewOrchestrator(flasher, inv, hexfile.NewImage(), api.TwelvePort).FlashAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint32{2}, flasher.attempts)
	assert.Equal(t, StatusSkipped, report.Results[0].Status)
	assert.Equal(t, StatusFlashed, report.Results[1].Status)
}

func TestFlashAll_StopsOnContext(t *testing.T) {
	inv := testInventory(t, inventory.Module{ID: 1, Address: 1, Generation: api.EightPort})
	flasher := &fakeFlasher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewOrchestrator(flasher, inv, hexfile.NewImage(), api.EightPort).FlashAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Results)
	assert.Empty(t, flasher.attempts)
}

func TestFlashModule_UnknownAddress(t *testing.T) {
	inv := testInventory(t, inventory.Module{ID: 1, Address: 1, Generation: api.EightPort})
	flasher := &fakeFlasher{}

	_, err := NewOrchestrator(flasher, inv, hexfile.NewImage(), api.EightPort).FlashModule(context.Background(), 42)
	assert.ErrorIs(t, err, ErrModuleNotFound)
	assert.Empty(t, flasher.attempts)
}

func TestFlashModule_Single(t *testing.T) {
	inv := testInventory(t,
		inventory.Module{ID: 1, Address: 1, Generation: api.EightPort},
		inventory.Module{ID: 2, Address: 2, Generation: api.EightPort},
	)
	flasher := &fakeFlasher{}

	orch := NewOrchestrator(flasher, inv, hexfile.NewImage(), api.EightPort, WithRunID("run-1"))
	report, err := orch.FlashModule(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, []uint32{2}, flasher.attempts)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 2, report.Results[0].Module.ID)
}

func TestNewOrchestrator_GeneratesRunID(t *testing.T) {
	inv := testInventory(t)
	a := NewOrchestrator(&fakeFlasher{}, inv, hexfile.NewImage(), api.EightPort)
	b := NewOrchestrator(&fakeFlasher{}, inv, hexfile.NewImage(), api.EightPort)

	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

// simulatedBus answers power frames for a set of live module addresses,
// from a separate goroutine as a transport reader would.
type simulatedBus struct {
	mu     sync.Mutex
	corr   *correlator.Correlator
	live   map[uint32]bool
	writes map[uint32]int
	jumps  map[uint32]int
}

func newSimulatedBus(live ...uint32) *simulatedBus {
	b := &simulatedBus{live: map[uint32]bool{}, writes: map[uint32]int{}, jumps: map[uint32]int{}}
	for _, a := range live {
		b.live[a] = true
	}
	return b
}

func (b *simulatedBus) SendFrame(frame []byte) error {
	code, addr := frame[1], uint32(frame[2])

	b.mu.Lock()
	live := b.live[addr]
	switch code {
	case 'W':
		b.writes[addr]++
	case 'J':
		b.jumps[addr]++
	}
	b.mu.Unlock()

	if !live {
		return nil
	}

	go b.corr.Deliver(powerResponse(code, byte(addr)))
	return nil
}

// powerResponse is the reply a healthy module sends to command code.
func powerResponse(code, addr byte) []byte {
	resp := make([]byte, api.PowerFrameSize)
	resp[0], resp[1], resp[2] = 1, code, addr
	switch code {
	case 'V':
		copy(resp[3:], "ENERGY_2_0_1")
	case 'I':
		resp[3] = EightPortChipID
	case 'r':
		for i := 0; i < CalibrationLength; i++ {
			resp[3+i] = byte(i)
		}
	}
	return resp
}

func TestFlashAll_OverCorrelator(t *testing.T) {
	bus := newSimulatedBus(1, 3, 5)
	bus.corr = correlator.New(bus, api.PowerFrameSize, correlator.WithStatistics(correlator.NewStatistics()))

	inv := testInventory(t,
		inventory.Module{ID: 1, Address: 1, Generation: api.EightPort},
		inventory.Module{ID: 2, Address: 9, Generation: api.EightPort},
		inventory.Module{ID: 3, Address: 3, Generation: api.EightPort},
		inventory.Module{ID: 4, Address: 5, Generation: api.TwelvePort},
	)

	seq := New(bus.corr, WithCommandTimeout(200*time.Millisecond), WithSettleDelay(0))
	report, err := NewOrchestrator(seq, inv, eightPortImage(), api.EightPort).FlashAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 4)
	assert.Equal(t, StatusFlashed, report.Results[0].Status)
	assert.Equal(t, "2.0.1 (ENERGY)", report.Results[0].Info.PreviousVersion)
	assert.Equal(t, StatusUnavailable, report.Results[1].Status)
	assert.Equal(t, StatusFlashed, report.Results[2].Status)
	assert.Equal(t, StatusSkipped, report.Results[3].Status)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, 288, bus.writes[1])
	assert.Equal(t, 288, bus.writes[3])
	assert.Equal(t, 0, bus.writes[9])
	assert.Equal(t, 1, bus.jumps[1])

	stats := bus.corr.Statistics().Snapshot()
	assert.Equal(t, uint64(1), stats.Timeouts)
}

func TestFlash_TwelvePortOverCorrelator(t *testing.T) {
	bus := newSimulatedBus(5)
	bus.corr = correlator.New(bus, api.PowerFrameSize)

	seq := New(bus.corr, WithSettleDelay(0))
	info, err := seq.Flash(context.Background(), 5, api.TwelvePort, twelvePortImage())
	require.NoError(t, err)

	assert.Equal(t, 1856, info.RecordsWritten)
	assert.True(t, info.CalibrationRestored)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, 1856, bus.writes[5])
	assert.Equal(t, 1, bus.jumps[5])
}
