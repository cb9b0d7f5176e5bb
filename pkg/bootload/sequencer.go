// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootload

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/hexfile"
	"github.com/Thermoquad/busboot/pkg/protocol"
)

// Commander sends one command and waits for its response.
// *correlator.Correlator satisfies it.
type Commander interface {
	Send(ctx context.Context, spec *protocol.CommandSpec, fields protocol.Fields, timeout time.Duration) (protocol.Fields, error)
}

// FlashInfo summarises a flash run.
type FlashInfo struct {
	// PreviousVersion is the firmware version read before flashing
	PreviousVersion string

	// RecordsWritten counts acknowledged write records
	RecordsWritten int

	// CalibrationRestored reports whether calibration data was written back
	CalibrationRestored bool
}

// Sequencer flashes power modules one at a time over a Commander.
type Sequencer struct {
	bus    Commander
	config Config
}

// New creates a Sequencer.
func New(bus Commander, opts ...Option) *Sequencer {
	if bus == nil {
		panic("bus cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Sequencer{bus: bus, config: cfg}
}

// Flash writes img to the module at address. The image is checked for
// every record the plan writes before the module is touched.
func (s *Sequencer) Flash(ctx context.Context, address uint32, g api.Generation, img *hexfile.Image) (FlashInfo, error) {
	plan, err := NewPlan(g)
	if err != nil {
		return FlashInfo{}, err
	}
	if err := hexfile.CheckCoverage(img, plan.Layout, plan.Records()); err != nil {
		return FlashInfo{}, fmt.Errorf("image does not cover the %s code region: %w", plan.Layout.Name(), err)
	}

	r := &run{
		seq:     s,
		ctx:     ctx,
		address: address,
		plan:    plan,
		reader:  hexfile.NewReader(img, plan.Layout),
		total:   len(plan.Records()),
		start:   time.Now(),
		log: s.config.Logger.With().
			Uint32("address", address).
			Str("generation", g.String()).
			Logger(),
	}

	err = r.execute()
	if err == nil {
		r.enter(StepDone)
		r.log.Info().Str("step", StepDone.String()).Dur("elapsed", time.Since(r.start)).Msg("done")
	}
	return r.info, err
}

// run is the state of one flash operation.
type run struct {
	seq     *Sequencer
	ctx     context.Context
	address uint32
	plan    *Plan
	reader  *hexfile.Reader
	log     zerolog.Logger

	step        Step
	calibration []byte
	written     int
	total       int
	start       time.Time
	info        FlashInfo
}

func (r *run) execute() error {
	if err := r.steps(r.plan.Prepare); err != nil {
		return err
	}
	if err := r.guarded(); err != nil {
		return err
	}
	return r.steps(r.plan.After)
}

// guarded runs the write phase and the jump. With a guaranteed jump the jump
// is deferred so it also runs when the write phase fails.
func (r *run) guarded() (err error) {
	if !r.plan.GuaranteedJump {
		if err := r.steps(r.plan.Guarded); err != nil {
			return err
		}
		return r.do(StepJumpToApplication)
	}

	defer func() {
		if jumpErr := r.do(StepJumpToApplication); jumpErr != nil {
			err = errors.Join(err, jumpErr)
		}
	}()
	return r.steps(r.plan.Guarded)
}

func (r *run) steps(steps []Step) error {
	for _, step := range steps {
		if err := r.do(step); err != nil {
			return err
		}
	}
	return nil
}

// do enters step and runs it, wrapping failures in a StepError.
func (r *run) do(step Step) error {
	r.enter(step)

	var err error
	switch step {
	case StepReadVersion:
		err = r.readVersion()
	case StepReadCalibration:
		r.readCalibration()
	case StepEnterBootloader:
		_, err = r.send(api.BootloaderGoto(), nil, r.seq.config.EnterTimeout)
	case StepIdentify:
		err = r.identify()
	case StepEraseCode:
		err = r.erase()
	case StepWriteVectorTable:
		err = r.write(r.plan.VectorTable)
	case StepWriteCode:
		err = r.write(r.plan.Code)
	case StepJumpToApplication:
		// Sent even after cancellation, bounded by the command timeout
		_, err = r.sendWith(context.WithoutCancel(r.ctx), api.BootloaderJumpApplication(), nil, 0)
	case StepRestoreCalibration:
		err = r.restoreCalibration()
	default:
		err = fmt.Errorf("step %s cannot be executed", step)
	}

	if err != nil {
		r.log.Error().Err(err).Str("step", step.String()).Msg("step failed")
		return &StepError{Step: step, Address: r.address, Err: err}
	}
	return nil
}

func (r *run) enter(step Step) {
	r.step = step
	if step != StepDone {
		r.log.Info().Str("step", step.String()).Msg("step")
	}
	r.report()
}

func (r *run) report() {
	cb := r.seq.config.ProgressCallback
	if cb == nil {
		return
	}
	var pct float64
	if r.total > 0 {
		pct = float64(r.written) * 100.0 / float64(r.total)
	}
	cb(Progress{
		Step:         r.step,
		Address:      r.address,
		Record:       r.written,
		TotalRecords: r.total,
		Percentage:   pct,
		ElapsedTime:  time.Since(r.start),
	})
}

// send issues one power command to the module. Zero timeout means the
// configured command timeout.
func (r *run) send(spec *protocol.CommandSpec, fields protocol.Fields, timeout time.Duration) (protocol.Fields, error) {
	return r.sendWith(r.ctx, spec, fields, timeout)
}

func (r *run) sendWith(ctx context.Context, spec *protocol.CommandSpec, fields protocol.Fields, timeout time.Duration) (protocol.Fields, error) {
	if timeout == 0 {
		timeout = r.seq.config.CommandTimeout
	}
	if fields == nil {
		fields = protocol.Fields{}
	}
	fields[api.PowerAddressField] = r.address
	return r.seq.bus.Send(ctx, spec, fields, timeout)
}

func (r *run) readVersion() error {
	out, err := r.send(api.GetVersion(), nil, 0)
	if err != nil {
		return err
	}
	raw, _ := out.String("version")
	r.info.PreviousVersion = api.FormatFirmwareVersion(raw)
	r.log.Info().Str("version", r.info.PreviousVersion).Msg("current firmware")
	return nil
}

// readCalibration never fails the run; without data the restore is skipped.
func (r *run) readCalibration() {
	out, err := r.send(api.ReadEEPROM(r.plan.Generation, CalibrationLength),
		protocol.Fields{"address": CalibrationAddress, "length": CalibrationLength}, 0)
	if err != nil {
		r.log.Warn().Err(err).Msg("could not read calibration data")
		return
	}

	data, ok := out.Bytes("data")
	if !ok || len(data) != CalibrationLength {
		r.log.Warn().Int("length", len(data)).Msg("calibration data has unexpected size")
		return
	}
	r.calibration = data

	values := make([]string, len(data))
	for i, b := range data {
		values[i] = strconv.Itoa(int(b))
	}
	r.log.Info().Str("calibration", strings.Join(values, ",")).Msg("calibration data")
}

func (r *run) identify() error {
	out, err := r.send(api.BootloaderReadID(), nil, 0)
	if err != nil {
		return err
	}
	id, _ := out.Uint("chip_id")
	if id != EightPortChipID {
		return &UnexpectedChipIDError{Address: r.address, Expected: EightPortChipID, Actual: uint8(id)}
	}
	return nil
}

func (r *run) erase() error {
	for _, page := range r.plan.ErasePages {
		if _, err := r.send(api.BootloaderEraseCode(), protocol.Fields{"page": page}, 0); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
	}
	return nil
}

func (r *run) write(addresses []uint32) error {
	spec := api.BootloaderWriteCode(r.plan.Generation)
	for _, a := range addresses {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		record, err := r.reader.NextRecord(a)
		if err != nil {
			return err
		}
		if _, err := r.send(spec, protocol.Fields{"data": record}, 0); err != nil {
			return fmt.Errorf("record 0x%X: %w", a, err)
		}

		r.written++
		r.info.RecordsWritten = r.written
		r.log.Debug().Str("step", r.step.String()).Uint32("record", a).Msg("record written")
		r.report()
	}
	return nil
}

func (r *run) restoreCalibration() error {
	if r.calibration == nil {
		r.log.Info().Msg("no calibration data to restore")
		return nil
	}

	if d := r.seq.config.SettleDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-r.ctx.Done():
			return r.ctx.Err()
		}
	}

	_, err := r.send(api.WriteEEPROM(r.plan.Generation, CalibrationLength),
		protocol.Fields{"address": CalibrationAddress, "data": r.calibration}, 0)
	if err != nil {
		return err
	}
	r.info.CalibrationRestored = true
	return nil
}
