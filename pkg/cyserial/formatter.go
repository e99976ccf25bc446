// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

import (
	"fmt"
	"strings"
	"time"
)

// FormatTransfer formats a received transfer into a human-readable string.
func FormatTransfer(tr *Transfer) string {
	return FormatTransferAt(tr, time.Now())
}

// FormatTransferAt is FormatTransfer with an explicit timestamp, for replay
// and testing.
func FormatTransferAt(tr *Transfer, ts time.Time) string {
	result := fmt.Sprintf("[%s] %s %s -> %s prio=%s tid=%d len=%d\n",
		ts.Format("15:04:05.000"),
		FormatDataSpec(tr.DataSpec),
		FormatNodeID(tr.Source),
		FormatNodeID(tr.Destination),
		FormatPriority(tr.Priority),
		tr.TransferID,
		len(tr.Payload))
	if len(tr.Payload) > 0 {
		result += formatHexDump(tr.Payload)
	}
	return result
}

// FormatDataSpec renders the data-spec field as role plus port id.
func FormatDataSpec(spec PortID) string {
	if id, ok := (&Metadata{DataSpec: spec}).IsResponse(); ok {
		return fmt.Sprintf("RESPONSE svc=%d", id)
	}
	if id, ok := (&Metadata{DataSpec: spec}).IsRequest(); ok {
		return fmt.Sprintf("REQUEST svc=%d", id)
	}
	return fmt.Sprintf("MESSAGE subj=%d", spec)
}

// FormatNodeID renders a node id, marking the anonymous sentinel.
func FormatNodeID(id NodeID) string {
	if id.IsAnonymous() {
		return "anon"
	}
	return fmt.Sprintf("%d", uint16(id))
}

// FormatPriority returns the symbolic name of a priority level.
func FormatPriority(p Priority) string {
	names := []string{
		"EXCEPTIONAL", "IMMEDIATE", "FAST", "HIGH",
		"NOMINAL", "LOW", "SLOW", "OPTIONAL",
	}
	if int(p) < len(names) {
		return names[p]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(p))
}

// formatHexDump renders the payload as an indented hex dump, 16 bytes per
// line with an ASCII gutter.
func formatHexDump(payload []byte) string {
	var sb strings.Builder
	for off := 0; off < len(payload); off += 16 {
		end := off + 16
		if end > len(payload) {
			end = len(payload)
		}
		line := payload[off:end]

		sb.WriteString(fmt.Sprintf("  %04X  ", off))
		for i := 0; i < 16; i++ {
			if i < len(line) {
				sb.WriteString(fmt.Sprintf("%02X ", line[i]))
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString(" ")
		for _, b := range line {
			if b >= 0x20 && b < 0x7F {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
