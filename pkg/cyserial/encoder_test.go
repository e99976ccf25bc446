// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

import (
	"bytes"
	"testing"
)

func TestTransmit_WireLayout(t *testing.T) {
	// A transfer chosen so that no emitted byte needs escaping, making the
	// wire image predictable field by field.
	tr := &Transfer{
		Metadata: Metadata{
			Priority:    5,
			Source:      0x0102,
			Destination: 0x0304,
			DataSpec:    0x0506,
			TransferID:  0x1122334455667788,
		},
		Payload: []byte{0x01, 0x02},
	}
	frame := EncodeTransfer(tr)

	if frame[0] != FrameDelimiter || frame[len(frame)-1] != FrameDelimiter {
		t.Fatal("frame must be delimiter-bounded")
	}

	wantHeader := []byte{
		0x00,       // version
		0x05,       // priority
		0x02, 0x01, // source, little-endian
		0x04, 0x03, // destination
		0x06, 0x05, // data spec
		0, 0, 0, 0, 0, 0, 0, 0, // reserved
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, // transfer id
		0x00, 0x00, 0x00, 0x80, // end-of-transfer marker
	}
	if !bytes.Equal(frame[1:1+len(wantHeader)], wantHeader) {
		t.Errorf("header bytes:\n got  %X\n want %X", frame[1:1+len(wantHeader)], wantHeader)
	}

	// Header CRC occupies the next 4 bytes and must residue-validate over
	// the whole 32-byte header.
	crc := NewCRC32C()
	crc.UpdateBytes(frame[1 : 1+HeaderSize])
	if !crc.ResidueOK() {
		t.Error("header does not residue-validate")
	}

	// Payload then payload CRC then closing delimiter.
	payloadStart := 1 + HeaderSize
	if !bytes.Equal(frame[payloadStart:payloadStart+2], []byte{0x01, 0x02}) {
		t.Errorf("payload bytes: got %X", frame[payloadStart:payloadStart+2])
	}
	crc = NewCRC32C()
	crc.UpdateBytes(frame[payloadStart : len(frame)-1])
	if !crc.ResidueOK() {
		t.Error("payload does not residue-validate")
	}
	if len(frame) != 1+HeaderSize+2+CRCSize+1 {
		t.Errorf("frame length: got %d, want %d", len(frame), 1+HeaderSize+2+CRCSize+1)
	}
}

func TestTransmit_EscapesHeaderFields(t *testing.T) {
	// Node ids chosen to collide with the framing bytes: the header itself
	// must be escaped, not just the payload.
	tr := &Transfer{
		Metadata: Metadata{
			Priority:    Priority(FrameDelimiter),
			Source:      NodeID(FrameDelimiter) | NodeID(EscapePrefix)<<8,
			Destination: 1,
			DataSpec:    2,
			TransferID:  3,
		},
	}
	frame := EncodeTransfer(tr)

	if n := bytes.Count(frame, []byte{FrameDelimiter}); n != 2 {
		t.Errorf("raw delimiters on the wire: got %d, want 2", n)
	}

	p := NewStreamParser(DefaultMaxPayload)
	got := feedBytes(p, frame)
	if len(got) != 1 {
		t.Fatalf("got %d transfers, want 1", len(got))
	}
	if got[0].Transfer().Metadata != tr.Metadata {
		t.Errorf("metadata: got %+v, want %+v", got[0].Transfer().Metadata, tr.Metadata)
	}
}

func TestTransmit_SinkFailure(t *testing.T) {
	tr := &Transfer{
		Metadata: Metadata{Priority: 7, Source: 1, Destination: 2, DataSpec: 3, TransferID: 4},
		Payload:  []byte{5, 6, 7},
	}
	full := EncodeTransfer(tr)

	for budget := 0; budget < len(full); budget++ {
		var sent []byte
		send := func(b byte) bool {
			if len(sent) >= budget {
				return false
			}
			sent = append(sent, b)
			return true
		}
		if Transmit(send, tr) {
			t.Fatalf("Transmit succeeded with a sink budget of %d/%d bytes", budget, len(full))
		}
		// Partial output is not rolled back and must be a prefix of the
		// full frame.
		if !bytes.Equal(sent, full[:len(sent)]) {
			t.Fatalf("partial output diverges from the frame prefix at budget %d", budget)
		}
	}

	// With exactly enough budget the transmission succeeds.
	var sent []byte
	send := func(b byte) bool {
		sent = append(sent, b)
		return true
	}
	if !Transmit(send, tr) {
		t.Fatal("Transmit failed with an unconstrained sink")
	}
	if !bytes.Equal(sent, full) {
		t.Error("Transmit output differs from EncodeTransfer output")
	}
}
