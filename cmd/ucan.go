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
	"github.com/Thermoquad/busboot/pkg/protocol"
)

var (
	ucanAddress string
	ucanCount   int
	ucanMin     int
	ucanMax     int
	ucanSeconds int
	ucanFlag    int
)

var ucanCmd = &cobra.Command{
	Use:   "ucan",
	Short: "Talk to uCAN devices",
	Long: `Send commands to uCAN devices. Addresses are written as three dot-separated
bytes, for example 12.0.3.

The ucan section of the config file (or --port / --url) selects the link.`,
}

var ucanPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping a uCAN device",
	RunE:  runUCANPing,
}

var ucanConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Read the configuration of a uCAN device",
	RunE:  runUCANConfig,
}

var ucanBrightnessCmd = &cobra.Command{
	Use:   "brightness",
	Short: "Set the LED brightness limits of a uCAN device",
	RunE:  runUCANBrightness,
}

var ucanBootloaderTimeoutCmd = &cobra.Command{
	Use:   "bootloader-timeout",
	Short: "Set how long a uCAN device waits in its bootloader",
	RunE:  runUCANBootloaderTimeout,
}

var ucanSafetyFlagCmd = &cobra.Command{
	Use:   "safety-flag",
	Short: "Set the bootloader safety flag of a uCAN device in bootloader mode",
	RunE:  runUCANSafetyFlag,
}

var ucanResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a uCAN device",
	RunE:  runUCANReset,
}

func init() {
	ucanCmd.PersistentFlags().StringVarP(&ucanAddress, "address", "a", "", "uCAN address (a.b.c)")
	_ = ucanCmd.MarkPersistentFlagRequired("address")

	ucanPingCmd.Flags().IntVar(&ucanCount, "count", 3, "Number of pings to send")
	ucanBrightnessCmd.Flags().IntVar(&ucanMin, "min", -1, "Minimum LED brightness (0-255)")
	ucanBrightnessCmd.Flags().IntVar(&ucanMax, "max", -1, "Maximum LED brightness (0-255)")
	ucanBootloaderTimeoutCmd.Flags().IntVar(&ucanSeconds, "seconds", 0, "Bootloader timeout in seconds (0-255)")
	_ = ucanBootloaderTimeoutCmd.MarkFlagRequired("seconds")
	ucanSafetyFlagCmd.Flags().IntVar(&ucanFlag, "flag", 0, "Safety flag value (0-255)")
	_ = ucanSafetyFlagCmd.MarkFlagRequired("flag")

	ucanCmd.AddCommand(ucanPingCmd, ucanConfigCmd, ucanBrightnessCmd, ucanBootloaderTimeoutCmd, ucanSafetyFlagCmd, ucanResetCmd)
	rootCmd.AddCommand(ucanCmd)
}

// withUCAN resolves the address and runs fn on an open uCAN session.
func withUCAN(cmd *cobra.Command, fn func(ctx context.Context, s *session, fields protocol.Fields) error) error {
	addr, err := api.ParseUCANAddress(ucanAddress)
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context(), cmd, ucanBus, sessionOptions{})
	if err != nil {
		return err
	}

	return s.run(cmd.Context(), func(ctx context.Context) error {
		return fn(ctx, s, protocol.Fields{api.UCANAddressField: addr})
	})
}

func runUCANPing(cmd *cobra.Command, args []string) error {
	timeout := time.Duration(cfg.Timeouts.Command)

	return withUCAN(cmd, func(ctx context.Context, s *session, fields protocol.Fields) error {
		fmt.Printf("Pinging %s via %s\n", ucanAddress, s.desc)

		ok := 0
		for i := 1; i <= ucanCount; i++ {
			fields["data"] = i & 0xFF

			start := time.Now()
			out, err := s.corr.Send(ctx, api.UCANPing(), fields, timeout)
			switch {
			case err == nil:
				echo, _ := out.Uint("data")
				fmt.Printf("Ping %d/%d: reply data=%d time=%s\n", i, ucanCount, echo, time.Since(start).Round(time.Microsecond))
				ok++
			case errors.Is(err, correlator.ErrTimeout):
				fmt.Printf("Ping %d/%d: TIMEOUT\n", i, ucanCount)
			default:
				return err
			}
		}

		fmt.Printf("\n%d/%d replies\n", ok, ucanCount)
		return nil
	})
}

var ucanConfigOrder = []string{
	"input_link_0", "input_link_1", "input_link_2", "input_link_3", "input_link_4", "input_link_5",
	"sensor_link_0", "sensor_link_1", "sensor_type",
	"firmware_version", "bootloader", "new_indicator",
	"min_led_brightness", "max_led_brightness",
	"adc_input_2", "adc_input_3", "adc_input_4", "adc_input_5", "adc_dc_input",
}

func runUCANConfig(cmd *cobra.Command, args []string) error {
	return withUCAN(cmd, func(ctx context.Context, s *session, fields protocol.Fields) error {
		out, err := s.corr.Send(ctx, api.UCANReadConfig(), fields, time.Duration(cfg.Timeouts.Command))
		if err != nil {
			return err
		}

		fmt.Printf("uCAN %s configuration\n", ucanAddress)
		for _, name := range ucanConfigOrder {
			fmt.Printf("  %-20s %v\n", name, out[name])
		}
		return nil
	})
}

func runUCANBrightness(cmd *cobra.Command, args []string) error {
	if ucanMin < 0 && ucanMax < 0 {
		return errors.New("set --min, --max or both")
	}

	return withUCAN(cmd, func(ctx context.Context, s *session, fields protocol.Fields) error {
		timeout := time.Duration(cfg.Timeouts.Command)
		if ucanMin >= 0 {
			fields["brightness"] = ucanMin
			if _, err := s.corr.Send(ctx, api.UCANSetMinLEDBrightness(), fields, timeout); err != nil {
				return err
			}
		}
		if ucanMax >= 0 {
			fields["brightness"] = ucanMax
			if _, err := s.corr.Send(ctx, api.UCANSetMaxLEDBrightness(), fields, timeout); err != nil {
				return err
			}
		}
		fmt.Println("brightness set")
		return nil
	})
}

func runUCANBootloaderTimeout(cmd *cobra.Command, args []string) error {
	return withUCAN(cmd, func(ctx context.Context, s *session, fields protocol.Fields) error {
		fields["timeout"] = ucanSeconds
		out, err := s.corr.Send(ctx, api.UCANSetBootloaderTimeout(), fields, time.Duration(cfg.Timeouts.Command))
		if err != nil {
			return err
		}
		v, _ := out.Uint("timeout")
		fmt.Printf("bootloader timeout is %d s\n", v)
		return nil
	})
}

func runUCANSafetyFlag(cmd *cobra.Command, args []string) error {
	return withUCAN(cmd, func(ctx context.Context, s *session, fields protocol.Fields) error {
		fields["safety_flag"] = ucanFlag
		out, err := s.corr.Send(ctx, api.UCANSetBootloaderSafetyFlag(), fields, time.Duration(cfg.Timeouts.Command))
		if err != nil {
			return err
		}
		v, _ := out.Uint("safety_flag")
		fmt.Printf("bootloader safety flag is %d\n", v)
		return nil
	})
}

func runUCANReset(cmd *cobra.Command, args []string) error {
	return withUCAN(cmd, func(ctx context.Context, s *session, fields protocol.Fields) error {
		out, err := s.corr.Send(ctx, api.UCANReset(), fields, time.Duration(cfg.Timeouts.EnterBootloader))
		if err != nil {
			return err
		}
		mode, _ := out.Uint("application_mode")
		fmt.Printf("reset, application mode %d\n", mode)
		return nil
	})
}
