// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics
//
// Bootscope - Cyphal/serial Bootloader Link Analyzer
//
// A CLI tool for monitoring, exercising and debugging the Cyphal/serial
// transport spoken by Kestrel bootloaders.

package main

import (
	"os"

	"github.com/kestrelrobotics/bootscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
