// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/bootload"
	"github.com/Thermoquad/busboot/pkg/hexfile"
	"github.com/Thermoquad/busboot/pkg/inventory"
	"github.com/Thermoquad/busboot/pkg/logging"
)

var (
	bootloadFile       string
	bootloadAddress    uint32
	bootloadAll        bool
	bootloadGeneration string
	bootloadVerbose    bool
	bootloadNoProgress bool
	bootloadCapture    string
)

var bootloadCmd = &cobra.Command{
	Use:   "bootload",
	Short: "Flash firmware onto power modules",
	Long: `Flash an Intel HEX firmware image onto one power module or every module of a
generation listed in the inventory.

Modules are flashed one after another. A module that does not answer or fails
is reported and skipped; the run continues with the next module.

Examples:
  busboot bootload --file power_12.hex --address 3
  busboot bootload --file power_8.hex --all --generation 8`,
	RunE: runBootload,
}

func init() {
	bootloadCmd.Flags().StringVarP(&bootloadFile, "file", "f", "", "Intel HEX firmware image (required)")
	bootloadCmd.Flags().Uint32VarP(&bootloadAddress, "address", "a", 0, "Bus address of the module to flash")
	bootloadCmd.Flags().BoolVar(&bootloadAll, "all", false, "Flash every inventory module of the generation")
	bootloadCmd.Flags().StringVarP(&bootloadGeneration, "generation", "g", "", "Module generation: 8 or 12 (default: from inventory)")
	bootloadCmd.Flags().BoolVarP(&bootloadVerbose, "verbose", "v", false, "Log every bus frame")
	bootloadCmd.Flags().BoolVar(&bootloadNoProgress, "no-progress", false, "Disable the progress bar")
	bootloadCmd.Flags().StringVar(&bootloadCapture, "capture", "", "Record bus frames to a CBOR capture file")
	_ = bootloadCmd.MarkFlagRequired("file")
	bootloadCmd.MarkFlagsMutuallyExclusive("address", "all")
	bootloadCmd.MarkFlagsOneRequired("address", "all")

	rootCmd.AddCommand(bootloadCmd)
}

func runBootload(cmd *cobra.Command, args []string) error {
	inv, err := inventory.Load(cfg.Inventory)
	if err != nil {
		return err
	}

	var generation api.Generation
	if bootloadGeneration != "" {
		generation, err = api.ParseGeneration(bootloadGeneration)
		if err != nil {
			return err
		}
	}

	// Resolve the target before the bus is opened
	if !bootloadAll {
		mod, ok := inv.ByAddress(bootloadAddress)
		if !ok {
			return fmt.Errorf("address %d is not in %s: %w", bootloadAddress, cfg.Inventory, bootload.ErrModuleNotFound)
		}
		if generation == 0 {
			generation = mod.Generation
		}
	} else if generation == 0 {
		return errors.New("--generation is required with --all")
	}

	img, err := hexfile.Load(bootloadFile)
	if err != nil {
		return err
	}

	if bootloadVerbose {
		logging.SetLevel(zerolog.DebugLevel)
	}
	log := logging.WithComponent("bootload")
	log.Info().
		Str("file", bootloadFile).
		Int("bytes", img.Len()).
		Stringers("segments", segmentList(img.Segments())).
		Str("generation", generation.String()).
		Msg("firmware image loaded")

	s, err := openSession(cmd.Context(), cmd, powerBus, sessionOptions{
		verbose:     bootloadVerbose,
		capturePath: bootloadCapture,
	})
	if err != nil {
		return err
	}

	opts := []bootload.Option{
		bootload.WithLogger(log),
		bootload.WithCommandTimeout(time.Duration(cfg.Timeouts.Command)),
		bootload.WithEnterTimeout(time.Duration(cfg.Timeouts.EnterBootloader)),
		bootload.WithSettleDelay(time.Duration(cfg.Timeouts.Settle)),
	}
	if !bootloadNoProgress {
		opts = append(opts, bootload.WithProgressCallback(newProgressReporter().update))
	}

	orch := bootload.NewOrchestrator(bootload.New(s.corr, opts...), inv, img, generation,
		bootload.WithRunLogger(log))

	fmt.Printf("Busboot - Bootload\n")
	fmt.Printf("Connection: %s\n", s.desc)
	fmt.Printf("Run: %s\n\n", orch.RunID())

	var report *bootload.Report
	err = s.run(cmd.Context(), func(ctx context.Context) error {
		var runErr error
		if bootloadAll {
			report, runErr = orch.FlashAll(ctx)
		} else {
			report, runErr = orch.FlashModule(ctx, bootloadAddress)
		}
		return runErr
	})

	if report != nil {
		printReport(report)
	}
	// Module failures are in the report; only interruption is an error
	return err
}

func segmentList(segs []hexfile.Segment) []fmt.Stringer {
	out := make([]fmt.Stringer, len(segs))
	for i, seg := range segs {
		out[i] = seg
	}
	return out
}

// progressReporter draws one progress bar per module.
type progressReporter struct {
	bar     *progressbar.ProgressBar
	address uint32
}

func newProgressReporter() *progressReporter {
	return &progressReporter{}
}

func (r *progressReporter) update(p bootload.Progress) {
	if r.bar == nil || r.address != p.Address {
		if r.bar != nil {
			_ = r.bar.Exit()
		}
		r.address = p.Address
		r.bar = progressbar.NewOptions(p.TotalRecords,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
	}

	r.bar.Describe(fmt.Sprintf("module %d %-20s", p.Address, p.Step))
	_ = r.bar.Set(p.Record)

	if p.Step == bootload.StepDone {
		_ = r.bar.Finish()
		r.bar = nil
	}
}

func printReport(report *bootload.Report) {
	fmt.Printf("\n=== Bootload Report (%s, %s) ===\n", report.Generation, report.Duration.Round(time.Millisecond))
	for _, res := range report.Results {
		line := fmt.Sprintf("  module %-3d address %-3d %-12s", res.Module.ID, res.Module.Address, res.Status)
		switch res.Status {
		case bootload.StatusFlashed:
			line += fmt.Sprintf(" %d records in %s", res.Info.RecordsWritten, res.Duration.Round(time.Millisecond))
			if res.Info.PreviousVersion != "" {
				line += fmt.Sprintf(" (was %s)", res.Info.PreviousVersion)
			}
		case bootload.StatusUnavailable, bootload.StatusFailed:
			line += fmt.Sprintf(" %v", res.Err)
		}
		fmt.Println(line)
	}
	fmt.Printf("  flashed %d, unavailable %d, failed %d, skipped %d\n",
		report.Count(bootload.StatusFlashed),
		report.Count(bootload.StatusUnavailable),
		report.Count(bootload.StatusFailed),
		report.Count(bootload.StatusSkipped))
}
