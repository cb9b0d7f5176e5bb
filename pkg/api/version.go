// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"fmt"
	"strings"
)

// FormatFirmwareVersion turns a raw power module version string such as
// "ENERGY_1_2_3" into "1.2.3 (ENERGY)". Anything that is not four
// underscore separated parts is returned cleaned but otherwise unchanged.
func FormatFirmwareVersion(raw string) string {
	if i := strings.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(raw, "_")
	if len(parts) != 4 {
		return raw
	}
	return fmt.Sprintf("%s.%s.%s (%s)", parts[1], parts[2], parts[3], parts[0])
}
