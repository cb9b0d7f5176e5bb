// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Busboot - power and uCAN bus bootloader
//
// A CLI tool for flashing firmware images onto power modules over the
// power bus and for talking to uCAN devices.

package main

import (
	"os"

	"github.com/Thermoquad/busboot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
