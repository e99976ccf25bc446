// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Robotics

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/kestrelrobotics/bootscope/pkg/cyserial"
	"github.com/spf13/cobra"
)

var (
	linkTestTimeout int
)

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test connection by waiting for a valid transfer",
	Long: `Wait for a valid Cyphal/serial transfer on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
complete transfer passing both CRC residue checks. Garbage and torn frames
are skipped silently by the resynchronizing parser.

Exit codes:
  0 - Transfer received before timeout
  1 - Timeout reached without receiving a valid transfer
  2 - Connection error

Useful for checking that a bootloader is alive and the wiring is sane.`,
	RunE: runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestTimeout, "timeout", 10, "Timeout in seconds to wait for a transfer")
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Bootscope - Link Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", linkTestTimeout)
	fmt.Printf("Waiting for valid transfer...\n\n")

	parser := cyserial.NewStreamParser(maxPayload)
	buf := make([]byte, 256)

	// Channel for transfer reception
	transferChan := make(chan *cyserial.CaptureRecord, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		skippedBytes := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				tr := parser.Update(buf[i])
				if tr == nil {
					skippedBytes++
					continue
				}
				// Got a valid transfer!
				if skippedBytes > 0 {
					fmt.Printf("(consumed %d bytes before the first complete frame)\n", skippedBytes)
				}
				transferChan <- cyserial.Snapshot(tr)
				return
			}
		}
	}()

	// Wait for transfer or timeout
	select {
	case rec := <-transferChan:
		tr := rec.Transfer()
		fmt.Printf("SUCCESS: Received valid transfer\n")
		fmt.Printf("  Kind: %s\n", cyserial.FormatDataSpec(tr.DataSpec))
		fmt.Printf("  Route: %s -> %s\n", cyserial.FormatNodeID(tr.Source), cyserial.FormatNodeID(tr.Destination))
		fmt.Printf("  Transfer ID: %d\n", tr.TransferID)
		fmt.Printf("  Payload: %d bytes\n", len(tr.Payload))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(linkTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid transfer received within %d seconds\n", linkTestTimeout)
		os.Exit(1)
	}

	return nil
}
