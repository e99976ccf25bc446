// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

// Transmit serializes one transfer into the escaped, delimited, checksummed
// wire format, emitting it byte by byte through send. The callback reflects
// Port.Send: it must enqueue without blocking and return false when no space
// is available.
//
// Transmission stops at the first refused byte and false is returned. A
// partially transmitted frame is not rolled back; the receiving parser
// discards it via CRC failure.
func Transmit(send func(byte) bool, tr *Transfer) bool {
	var crc = NewCRC32C()

	// out emits one logical byte: it is folded into the running CRC first,
	// then escaped on the wire if it collides with a framing value.
	out := func(b byte) bool {
		crc.Update(b)
		if b == FrameDelimiter || b == EscapePrefix {
			return send(EscapePrefix) && send(^b)
		}
		return send(b)
	}
	out2 := func(v uint16) bool {
		return out(byte(v)) && out(byte(v>>8))
	}

	ok := send(FrameDelimiter) &&
		out(FrameVersion) &&
		out(byte(tr.Priority)) &&
		out2(uint16(tr.Source)) &&
		out2(uint16(tr.Destination)) &&
		out2(uint16(tr.DataSpec))
	for i := 0; i < 8; i++ { // Reserved, zero on send.
		ok = ok && out(0)
	}
	tid := uint64(tr.TransferID)
	for i := 0; i < 8; i++ {
		ok = ok && out(byte(tid))
		tid >>= 8
	}
	for _, b := range frameIndexEOT {
		ok = ok && out(b)
	}
	// The header CRC covers everything up to and including itself, so the
	// receiver validates it as a residue check.
	for _, b := range crc.Bytes() {
		ok = ok && out(b)
	}

	crc = NewCRC32C()
	for _, b := range tr.Payload {
		ok = ok && out(b)
	}
	for _, b := range crc.Bytes() {
		ok = ok && out(b)
	}
	return ok && send(FrameDelimiter)
}

// EncodeTransfer renders a complete frame for the transfer into a fresh byte
// slice. Convenience for tests and tooling; the hot path is Transmit, which
// does not buffer.
func EncodeTransfer(tr *Transfer) []byte {
	frame := make([]byte, 0, len(tr.Payload)*2+HeaderSize*2+2)
	Transmit(func(b byte) bool {
		frame = append(frame, b)
		return true
	}, tr)
	return frame
}
