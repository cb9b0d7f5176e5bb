// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/busboot/pkg/api"
	"github.com/Thermoquad/busboot/pkg/correlator"
	"github.com/Thermoquad/busboot/pkg/inventory"
	"github.com/Thermoquad/busboot/pkg/protocol"
)

var (
	versionAddress uint32
	versionAll     bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Read the firmware version of power modules",
	Long: `Read the running firmware version of one power module, or of every module
in the inventory with --all.

Versions reported as PRODUCT_MAJOR_MINOR_PATCH are shown as MAJOR.MINOR.PATCH (PRODUCT).`,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().Uint32VarP(&versionAddress, "address", "a", 0, "Bus address of the module")
	versionCmd.Flags().BoolVar(&versionAll, "all", false, "Query every inventory module")
	versionCmd.MarkFlagsMutuallyExclusive("address", "all")
	versionCmd.MarkFlagsOneRequired("address", "all")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	addresses := []uint32{versionAddress}
	if versionAll {
		inv, err := inventory.Load(cfg.Inventory)
		if err != nil {
			return err
		}
		addresses = addresses[:0]
		for _, m := range inv.All() {
			addresses = append(addresses, m.Address)
		}
	}

	s, err := openSession(cmd.Context(), cmd, powerBus, sessionOptions{})
	if err != nil {
		return err
	}

	timeout := time.Duration(cfg.Timeouts.Command)
	return s.run(cmd.Context(), func(ctx context.Context) error {
		for _, addr := range addresses {
			out, err := s.corr.Send(ctx, api.GetVersion(), protocol.Fields{api.PowerAddressField: addr}, timeout)
			switch {
			case err == nil:
				raw, _ := out.String("version")
				fmt.Printf("module %-3d %s\n", addr, api.FormatFirmwareVersion(raw))
			case errors.Is(err, correlator.ErrTimeout):
				fmt.Printf("module %-3d no response\n", addr)
			default:
				return err
			}
		}
		return nil
	})
}
