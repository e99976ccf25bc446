// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Robotics

package cmd

import (
	"github.com/kestrelrobotics/bootscope/pkg/cyserial"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Transport flags
	localNodeID uint16
	maxPayload  int
)

var rootCmd = &cobra.Command{
	Use:   "bootscope",
	Short: "Cyphal/serial Bootloader Link Analyzer",
	Long: `Bootscope - A CLI tool for monitoring and exercising the Cyphal/serial
transport spoken by Kestrel bootloaders.

Provides commands for live transfer monitoring, link testing, frame
generation, request/response round-trips and capture replay, to help diagnose
firmware-update sessions and transport anomalies.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the BOOTSCOPE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.3.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Transport flags
	rootCmd.PersistentFlags().Uint16Var(&localNodeID, "node-id", uint16(cyserial.AnonymousNodeID), "Local node id (0xFFFF = anonymous)")
	rootCmd.PersistentFlags().IntVar(&maxPayload, "max-payload", cyserial.DefaultMaxPayload, "Maximum transfer payload size in bytes")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
