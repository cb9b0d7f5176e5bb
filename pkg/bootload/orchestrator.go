// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/correlator"
	"github.com/Thermoquad/busboot/pkg/hexfile"
	"github.com/Thermoquad/busboot/pkg/inventory"
)

// ModuleSource lists the modules that can be flashed.
// *inventory.Inventory satisfies it.
type ModuleSource interface {
	ByAddress(address uint32) (inventory.Module, bool)
	All() []inventory.Module
}

// Flasher flashes one module. *Sequencer satisfies it.
type Flasher interface {
	Flash(ctx context.Context, address uint32, g api.Generation, img *hexfile.Image) (FlashInfo, error)
}

// Status is the outcome of one module in a run.
type Status int

const (
	StatusFlashed Status = iota
	StatusSkipped
	StatusUnavailable
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFlashed:
		return "flashed"
	case StatusSkipped:
		return "skipped"
	case StatusUnavailable:
		return "unavailable"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome for one module.
type Result struct {
	Module   inventory.Module
	Status   Status
	Info     FlashInfo
	Err      error
	Duration time.Duration
}

// Report collects the results of a run in the order modules were visited.
type Report struct {
	RunID      string
	Generation api.Generation
	Results    []Result
	Duration   time.Duration
}

// Count returns the number of results with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRunLogger sets the orchestrator logger.
func WithRunLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) OrchestratorOption {
	return func(o *Orchestrator) { o.runID = id }
}

// Orchestrator flashes inventory modules of one generation, strictly one
// after another. A failing module never stops the run.
type Orchestrator struct {
	flasher    Flasher
	modules    ModuleSource
	image      *hexfile.Image
	generation api.Generation
	logger     zerolog.Logger
	runID      string
}

// NewOrchestrator creates an Orchestrator for modules of generation g.
func NewOrchestrator(flasher Flasher, modules ModuleSource, img *hexfile.Image, g api.Generation, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		flasher:    flasher,
		modules:    modules,
		image:      img,
		generation: g,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	o.logger = o.logger.With().Str("run_id", o.runID).Logger()
	return o
}

// RunID identifies the run in logs.
func (o *Orchestrator) RunID() string { return o.runID }

// FlashModule flashes the module at address. An address missing from the
// inventory returns ErrModuleNotFound before any bus traffic. Module
// failures are reported in the Report, not as an error.
func (o *Orchestrator) FlashModule(ctx context.Context, address uint32) (*Report, error) {
	mod, ok := o.modules.ByAddress(address)
	if !ok {
		return nil, fmt.Errorf("address %d: %w", address, ErrModuleNotFound)
	}

	report := o.newReport()
	start := time.Now()
	report.Results = append(report.Results, o.flashOne(ctx, mod))
	report.Duration = time.Since(start)
	return report, nil
}

// FlashAll flashes every inventory module in id order. It only returns an
// error when ctx ends; the report then holds the modules visited so far.
func (o *Orchestrator) FlashAll(ctx context.Context) (*Report, error) {
	report := o.newReport()
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	for _, mod := range o.modules.All() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Results = append(report.Results, o.flashOne(ctx, mod))
	}

	o.logger.Info().
		Int("flashed", report.Count(StatusFlashed)).
		Int("unavailable", report.Count(StatusUnavailable)).
		Int("failed", report.Count(StatusFailed)).
		Int("skipped", report.Count(StatusSkipped)).
		Msg("bootload run finished")
	return report, nil
}

func (o *Orchestrator) newReport() *Report {
	return &Report{RunID: o.runID, Generation: o.generation}
}

func (o *Orchestrator) flashOne(ctx context.Context, mod inventory.Module) Result {
	log := o.logger.With().Uint32("address", mod.Address).Int("module_id", mod.ID).Logger()
	res := Result{Module: mod}

	if mod.Generation != o.generation {
		log.Info().
			Str("module_generation", mod.Generation.String()).
			Str("run_generation", o.generation.String()).
			Msg("generation mismatch, skipping")
		res.Status = StatusSkipped
		return res
	}

	log.Info().Msg("start bootloading")
	start := time.Now()
	info, err := o.flasher.Flash(ctx, mod.Address, mod.Generation, o.image)
	res.Info = info
	res.Err = err
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		res.Status = StatusFlashed
		log.Info().Dur("elapsed", res.Duration).Int("records", info.RecordsWritten).Msg("bootload complete")
	case isUnavailable(err):
		res.Status = StatusUnavailable
		log.Warn().Err(err).Msg("module unavailable, skipping")
	default:
		res.Status = StatusFailed
		log.Error().Err(err).Msg("unexpected error during bootload, skipping")
	}
	return res
}

// isUnavailable reports whether err means the module did not answer.
func isUnavailable(err error) bool {
	var transportErr *correlator.TransportError
	return errors.Is(err, correlator.ErrTimeout) || errors.As(err, &transportErr)
}
