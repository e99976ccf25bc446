// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

// Package cyserial implements the Cyphal/serial transport used by Kestrel
// bootloaders.
//
// The package turns a raw, possibly noisy byte stream into discrete,
// integrity-checked transfers and turns outgoing transfers back into an
// escaped byte stream. It also provides the node-level logic that correlates
// a single outstanding request with its response and answers incoming
// requests. Frame decoding is silent: corrupted input never raises an error,
// the parser simply resynchronizes on the next frame delimiter.
package cyserial

// Byte stream framing values.
const (
	FrameDelimiter = 0x9E
	EscapePrefix   = 0x8E
)

// Fixed header layout. All multi-byte fields are little-endian.
const (
	HeaderSize   = 32
	FrameVersion = 0

	offsetVersion       = 0
	offsetPriority      = 1
	offsetSourceLo      = 2
	offsetSourceHi      = 3
	offsetDestinationLo = 4
	offsetDestinationHi = 5
	offsetDataSpecLo    = 6
	offsetDataSpecHi    = 7
	offsetTransferIDLo  = 16
	offsetTransferIDHi  = 23
	offsetEOTLo         = 24
	offsetEOTHi         = 27
)

// frameIndexEOT is the end-of-transfer marker at header bytes 24-27. This
// transport accepts only single-frame transfers, so the frame index is a
// constant with the EOT bit set.
var frameIndexEOT = [4]byte{0, 0, 0, 0x80}

// Data-spec role encoding. Bit 15 set marks a service request, bits 15-14
// both set mark a service response, anything else is a message subject id.
const (
	DataSpecRequestMask  PortID = 0x8000
	DataSpecResponseMask PortID = 0xC000
)

// Special node identifiers and defaults.
const (
	AnonymousNodeID NodeID   = 0xFFFF
	DefaultPriority Priority = 7 // Lowest.
)

// DefaultMaxPayload is the payload capacity used by the CLI and by nodes
// constructed without an explicit size. Large enough for the biggest
// bootloader service response (firmware image read block plus overhead).
const DefaultMaxPayload = 600
