// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Robotics

package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kestrelrobotics/bootscope/pkg/cyserial"
	"github.com/spf13/cobra"
)

var (
	monitorCaptureFile   string
	monitorStatsInterval int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display decoded transfers in human-readable format",
	Long: `Continuously decode and display Cyphal/serial transfers as they arrive.

Each completed transfer is shown with a timestamp, its classification
(request, response or message), addressing, transfer id and a hex dump of the
payload. Corrupted frames are dropped silently by the parser; use the
periodic statistics summary to spot a lossy link.

With --capture, every transfer is also appended to a CBOR capture file that
can be inspected or replayed later with the replay command.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorCaptureFile, "capture", "", "Append transfers to a CBOR capture file")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 0, "Statistics summary interval in seconds (0 = off)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var capture *cyserial.CaptureWriter
	if monitorCaptureFile != "" {
		f, err := os.OpenFile(monitorCaptureFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open capture file: %v", err)
		}
		defer f.Close()
		capture = cyserial.NewCaptureWriter(f)
	}

	fmt.Printf("Bootscope - Transfer Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	parser := cyserial.NewStreamParser(maxPayload)
	stats := cyserial.NewStatistics()
	buf := make([]byte, 256)
	lastStats := time.Now()

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			stats.UpdateByte(buf[i])
			tr := parser.Update(buf[i])
			if tr == nil {
				continue
			}
			stats.UpdateTransfer(tr)
			fmt.Print(cyserial.FormatTransfer(tr))
			if capture != nil {
				if err := capture.Write(cyserial.Snapshot(tr)); err != nil {
					log.Printf("Capture error: %v", err)
				}
			}
		}

		if monitorStatsInterval > 0 && time.Since(lastStats) >= time.Duration(monitorStatsInterval)*time.Second {
			fmt.Print(stats.String())
			lastStats = time.Now()
		}
	}
}
