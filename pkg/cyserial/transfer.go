// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

import "time"

// NodeID is the 16-bit address of a participant. 0xFFFF means the node has
// no address assigned yet.
type NodeID uint16

// IsAnonymous reports whether the id is the unassigned sentinel.
func (n NodeID) IsAnonymous() bool {
	return n == AnonymousNodeID
}

// PortID identifies a service (request/response endpoint) or a message
// subject, depending on the role bits packed next to it in the data spec.
type PortID uint16

// TransferID is an opaque 64-bit value used verbatim for matching a response
// to its originating request. This layer does not interpret it as a counter.
type TransferID uint64

// Priority is the transfer priority, 0 (highest) through 7 (lowest).
type Priority uint8

// Metadata carries the addressing fields of one transfer.
type Metadata struct {
	Priority    Priority
	Source      NodeID
	Destination NodeID
	DataSpec    PortID
	TransferID  TransferID
}

// NewMetadata returns metadata with the protocol defaults: lowest priority,
// anonymous source and destination.
func NewMetadata() Metadata {
	return Metadata{
		Priority:    DefaultPriority,
		Source:      AnonymousNodeID,
		Destination: AnonymousNodeID,
	}
}

// IsRequest returns the service id if the data spec marks a service request.
func (m *Metadata) IsRequest() (PortID, bool) {
	if m.DataSpec&DataSpecResponseMask == DataSpecRequestMask {
		return m.DataSpec &^ DataSpecRequestMask, true
	}
	return 0, false
}

// IsResponse returns the service id if the data spec marks a service response.
func (m *Metadata) IsResponse() (PortID, bool) {
	if m.DataSpec&DataSpecResponseMask == DataSpecResponseMask {
		return m.DataSpec &^ DataSpecResponseMask, true
	}
	return 0, false
}

// Transfer is one complete application-level message extracted from or
// destined for the byte stream.
//
// For transfers produced by StreamParser.Update the payload slice aliases the
// parser's reception buffer. It stays valid through the current processing
// step and through the parser's next single Update call; from the second
// subsequent Update on, the memory is reused. Copy the payload out if it is
// needed beyond that window.
type Transfer struct {
	Metadata
	Payload []byte
}

// CaptureRecord is an owned snapshot of a received transfer, suitable for
// retention and for CBOR capture files (see WriteCapture).
type CaptureRecord struct {
	Timestamp   time.Time  `cbor:"1,keyasint"`
	Priority    Priority   `cbor:"2,keyasint"`
	Source      NodeID     `cbor:"3,keyasint"`
	Destination NodeID     `cbor:"4,keyasint"`
	DataSpec    PortID     `cbor:"5,keyasint"`
	TransferID  TransferID `cbor:"6,keyasint"`
	Payload     []byte     `cbor:"7,keyasint"`
}

// Snapshot copies a borrowed transfer into an owned capture record.
func Snapshot(tr *Transfer) *CaptureRecord {
	payload := make([]byte, len(tr.Payload))
	copy(payload, tr.Payload)
	return &CaptureRecord{
		Timestamp:   time.Now(),
		Priority:    tr.Priority,
		Source:      tr.Source,
		Destination: tr.Destination,
		DataSpec:    tr.DataSpec,
		TransferID:  tr.TransferID,
		Payload:     payload,
	}
}

// Transfer reconstructs a transfer from the record. The returned payload is
// owned by the record, not by any parser.
func (r *CaptureRecord) Transfer() *Transfer {
	return &Transfer{
		Metadata: Metadata{
			Priority:    r.Priority,
			Source:      r.Source,
			Destination: r.Destination,
			DataSpec:    r.DataSpec,
			TransferID:  r.TransferID,
		},
		Payload: r.Payload,
	}
}
