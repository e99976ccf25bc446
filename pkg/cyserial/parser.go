// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

// StreamParser extracts Cyphal/serial transfers from a raw stream of bytes.
//
// The parser is a resynchronizing state machine: malformed input (bad
// version, bad end-of-transfer marker, CRC residue failure at either
// boundary, a double escape, buffer overflow) silently abandons the frame in
// progress, and the next frame delimiter starts a fresh frame. It never
// reports an error and never allocates after construction.
type StreamParser struct {
	buf      []byte // payload + payload CRC, fixed capacity
	offset   int    // bytes accepted since the frame opened, header included
	inside   bool
	unescape bool
	crc      CRC32C
	meta     Metadata
	result   Transfer // reused completion record, see Update
}

// NewStreamParser creates a parser for payloads up to maxPayload bytes.
func NewStreamParser(maxPayload int) *StreamParser {
	p := &StreamParser{
		buf: make([]byte, maxPayload+CRCSize),
	}
	p.Reset()
	return p
}

// Reset clears all parser state. The owner must call it whenever the
// underlying channel is reinitialized (e.g. reconnect); the parser has no
// way to detect that on its own.
func (p *StreamParser) Reset() {
	p.offset = 0
	p.inside = false
	p.unescape = false
	p.crc = NewCRC32C()
	p.meta = NewMetadata()
}

// Update consumes one byte from the stream. If the byte completed a valid
// transfer, the transfer is returned; otherwise nil.
//
// The returned transfer's payload aliases the parser's reception buffer. It
// remains valid through the next single call to Update; starting from the
// second subsequent call the memory is overwritten. Copy it out (see
// Snapshot) if it must outlive that window.
func (p *StreamParser) Update(b byte) *Transfer {
	if b == FrameDelimiter {
		// A delimiter both terminates the current frame and opens the next
		// one, which is what makes the parser self-resynchronizing.
		var out *Transfer
		if p.inside && p.offset >= HeaderSize+CRCSize && p.crc.ResidueOK() {
			p.result = Transfer{
				Metadata: p.meta,
				Payload:  p.buf[:p.offset-HeaderSize-CRCSize],
			}
			out = &p.result
		}
		p.Reset()
		p.inside = true
		return out
	}

	if !p.inside {
		return nil // Out-of-frame garbage, drop it.
	}

	if b == EscapePrefix {
		if p.unescape {
			p.inside = false // Double escape cannot occur in a well-formed stream.
		} else {
			p.unescape = true
		}
		return nil
	}

	bt := b
	if p.unescape {
		bt = ^b
		p.unescape = false
	}
	p.crc.Update(bt)
	if p.offset < HeaderSize {
		p.acceptHeader(bt)
	} else {
		idx := p.offset - HeaderSize
		if idx >= len(p.buf) {
			p.inside = false // Overflow, the frame cannot be valid.
			return nil
		}
		p.buf[idx] = bt
	}
	p.offset++
	return nil
}

// acceptHeader decodes one header byte at the current offset and validates
// the fixed fields as they complete.
func (p *StreamParser) acceptHeader(bt byte) {
	switch {
	case p.offset == offsetVersion:
		if bt != FrameVersion {
			p.inside = false
		}
	case p.offset == offsetPriority:
		p.meta.Priority = Priority(bt)
	case p.offset >= offsetSourceLo && p.offset <= offsetSourceHi:
		p.meta.Source = acceptField(p.meta.Source, bt, p.offset-offsetSourceLo)
	case p.offset >= offsetDestinationLo && p.offset <= offsetDestinationHi:
		p.meta.Destination = acceptField(p.meta.Destination, bt, p.offset-offsetDestinationLo)
	case p.offset >= offsetDataSpecLo && p.offset <= offsetDataSpecHi:
		p.meta.DataSpec = acceptField(p.meta.DataSpec, bt, p.offset-offsetDataSpecLo)
	case p.offset >= offsetTransferIDLo && p.offset <= offsetTransferIDHi:
		p.meta.TransferID = acceptField(p.meta.TransferID, bt, p.offset-offsetTransferIDLo)
	case p.offset >= offsetEOTLo && p.offset <= offsetEOTHi:
		if frameIndexEOT[p.offset-offsetEOTLo] != bt {
			p.inside = false // Multi-frame transfers are not accepted.
		}
	}
	// Bytes 8-15 are reserved and intentionally not validated.

	if p.offset == HeaderSize-1 {
		if !p.crc.ResidueOK() {
			p.inside = false // Header CRC error.
		}
		// The payload is checked independently of the header from here on.
		p.crc = NewCRC32C()
	}
}

// acceptField accumulates one byte of a little-endian header field. The
// metadata fields start zeroed for the accumulated ones; NewMetadata defaults
// are overwritten wholesale as the field bytes arrive.
func acceptField[F NodeID | PortID | TransferID](fld F, bt byte, byteIndex int) F {
	if byteIndex == 0 {
		fld = 0
	}
	return fld | F(bt)<<(8*byteIndex)
}
