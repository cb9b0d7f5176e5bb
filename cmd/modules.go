// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/busboot/pkg/inventory"
)

var modulesOutput string

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the power modules in the inventory",
	Long: `List the power modules known on the bus, in inventory id order.

Use --output yaml to print the normalized inventory file.`,
	RunE: runModules,
}

func init() {
	modulesCmd.Flags().StringVarP(&modulesOutput, "output", "o", "table", "Output format: table or yaml")
	rootCmd.AddCommand(modulesCmd)
}

func runModules(cmd *cobra.Command, args []string) error {
	inv, err := inventory.Load(cfg.Inventory)
	if err != nil {
		return err
	}

	switch modulesOutput {
	case "yaml":
		out, err := inv.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err

	case "table":
		fmt.Printf("%-4s %-8s %-10s %-12s %s\n", "ID", "ADDRESS", "GEN", "FIRMWARE", "NAME")
		for _, m := range inv.All() {
			fw := m.FirmwareVersion
			if fw == "" {
				fw = "-"
			}
			fmt.Printf("%-4d %-8d %-10s %-12s %s\n", m.ID, m.Address, m.Generation, fw, m.Name)
		}
		return nil
	}

	return fmt.Errorf("unknown output format %q (use table or yaml)", modulesOutput)
}
