// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Robotics

package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/kestrelrobotics/bootscope/pkg/cyserial"
	"github.com/spf13/cobra"
)

var (
	pingService    uint16
	pingServer     uint16
	pingTransferID uint64
	pingPayloadHex string
	pingTimeout    int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send a service request and wait for the response",
	Long: `Perform one request/response round-trip against a remote node.

A service request is encoded and transmitted, then the inbound stream is
polled until a response arrives that matches the request on service id,
server node id, destination and transfer id. Responses that do not match are
dropped, as are messages and foreign requests.

A local node id must be given with --node-id; an anonymous node cannot issue
requests.

Exit codes:
  0 - Matching response received
  1 - Timeout reached without a matching response
  2 - Connection error or request refused`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().Uint16Var(&pingService, "service", 0, "Service id to request")
	pingCmd.Flags().Uint16Var(&pingServer, "server", 0, "Server node id")
	pingCmd.Flags().Uint64Var(&pingTransferID, "transfer-id", 0, "Transfer id")
	pingCmd.Flags().StringVar(&pingPayloadHex, "payload", "", "Request payload as a hex string")
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds to wait for the response")
	pingCmd.MarkFlagRequired("service")
	pingCmd.MarkFlagRequired("server")
}

// pingReactor records the single response the round-trip is waiting for.
type pingReactor struct {
	response []byte
	got      bool
}

func (r *pingReactor) ProcessResponse(payload []byte) {
	r.response = append([]byte(nil), payload...)
	r.got = true
}

func (r *pingReactor) ProcessRequest(service cyserial.PortID, client cyserial.NodeID, payload, respBuf []byte) (int, bool) {
	// This tool is a client only; incoming requests go unanswered.
	return 0, false
}

func runPing(cmd *cobra.Command, args []string) error {
	if cyserial.NodeID(localNodeID).IsAnonymous() {
		fmt.Fprintf(os.Stderr, "ping requires a local node id (--node-id)\n")
		os.Exit(2)
	}
	if pingService > 0x3FFF {
		fmt.Fprintf(os.Stderr, "service id out of range: %d\n", pingService)
		os.Exit(2)
	}

	payload, err := hex.DecodeString(pingPayloadHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid payload hex: %v\n", err)
		os.Exit(2)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Bootscope - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Request: svc=%d -> node %d, tid=%d, %d byte payload\n\n",
		pingService, pingServer, pingTransferID, len(payload))

	port := NewIOPort(conn)
	node := cyserial.NewNode(port, maxPayload)
	node.SetLocalNodeID(cyserial.NodeID(localNodeID))

	start := time.Now()
	if !node.SendRequest(cyserial.PortID(pingService), cyserial.NodeID(pingServer),
		cyserial.TransferID(pingTransferID), payload) {
		fmt.Fprintf(os.Stderr, "Failed to transmit request\n")
		os.Exit(2)
	}

	reactor := &pingReactor{}
	deadline := start.Add(time.Duration(pingTimeout) * time.Second)
	for time.Now().Before(deadline) {
		node.Poll(reactor)
		if reactor.got {
			rtt := time.Since(start)
			fmt.Printf("Response received in %v\n", rtt.Round(time.Microsecond))
			fmt.Printf("  Payload: %d bytes\n", len(reactor.response))
			if len(reactor.response) > 0 {
				fmt.Print(hex.Dump(reactor.response))
			}
			os.Exit(0)
		}
		if err := port.Err(); err != nil && err != ErrConnectionClosed {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
		time.Sleep(time.Millisecond)
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No matching response within %d seconds\n", pingTimeout)
	os.Exit(1)
	return nil
}
