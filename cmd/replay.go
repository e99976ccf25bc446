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
	replayDelay  int
	replayDryRun bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Re-encode and transmit transfers from a capture file",
	Long: `Read a CBOR capture file produced by the monitor command, re-encode each
record into its wire frame and transmit it over the connection.

With --dry-run the frames are decoded and listed without a connection,
which doubles as a capture file inspector.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().IntVar(&replayDelay, "delay", 10, "Delay between frames in milliseconds")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "List transfers without transmitting")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture file: %v", err)
	}
	defer f.Close()

	records, err := cyserial.NewCaptureReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read capture file: %v", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("capture file contains no transfers")
	}

	var conn Connection
	if !replayDryRun {
		var connInfo string
		conn, connInfo, err = OpenConnection()
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Printf("Bootscope - Capture Replay\n")
		fmt.Printf("Connection: %s\n", connInfo)
	}
	fmt.Printf("Capture: %s (%d transfers)\n\n", args[0], len(records))

	sent := 0
	for i, rec := range records {
		tr := rec.Transfer()
		frame := cyserial.EncodeTransfer(tr)
		fmt.Printf("[%3d] %s  %s -> %s  tid=%d  len=%d  (%d wire bytes)\n",
			i,
			cyserial.FormatDataSpec(tr.DataSpec),
			cyserial.FormatNodeID(tr.Source),
			cyserial.FormatNodeID(tr.Destination),
			tr.TransferID,
			len(tr.Payload),
			len(frame))

		if replayDryRun {
			continue
		}
		if _, err := conn.Write(frame); err != nil {
			return fmt.Errorf("transmission failed after %d frames: %v", sent, err)
		}
		sent++
		if replayDelay > 0 && i < len(records)-1 {
			time.Sleep(time.Duration(replayDelay) * time.Millisecond)
		}
	}

	if !replayDryRun {
		fmt.Printf("\nReplayed %d transfers\n", sent)
	}
	return nil
}
