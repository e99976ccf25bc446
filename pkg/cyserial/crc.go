// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

// CRC32-C (Castagnoli) configuration. The implementation is bit-at-a-time
// rather than table-driven so it stays in lockstep with the size-optimized
// firmware side.
const (
	CRCSize = 4

	crcXor           = 0xFFFFFFFF
	crcReflectedPoly = 0x82F63B78
	crcResidue       = 0xB798B438
)

// CRC32C is an incremental CRC32-C register. The zero value is NOT ready for
// use; call NewCRC32C or Reset first.
type CRC32C struct {
	value uint32
}

// NewCRC32C returns a CRC register in its initial state.
func NewCRC32C() CRC32C {
	return CRC32C{value: crcXor}
}

// Reset returns the register to its initial state.
func (c *CRC32C) Reset() {
	c.value = crcXor
}

// Update feeds one byte into the register.
func (c *CRC32C) Update(b byte) {
	c.value ^= uint32(b)
	for i := 0; i < 8; i++ {
		if c.value&1 != 0 {
			c.value = (c.value >> 1) ^ crcReflectedPoly
		} else {
			c.value >>= 1
		}
	}
}

// UpdateBytes feeds a byte slice into the register.
func (c *CRC32C) UpdateBytes(data []byte) {
	for _, b := range data {
		c.Update(b)
	}
}

// Value returns the finalized checksum of the bytes consumed so far.
func (c *CRC32C) Value() uint32 {
	return c.value ^ crcXor
}

// Bytes returns the finalized checksum in wire order (LSB first).
func (c *CRC32C) Bytes() [CRCSize]byte {
	x := c.Value()
	return [CRCSize]byte{
		byte(x),
		byte(x >> 8),
		byte(x >> 16),
		byte(x >> 24),
	}
}

// ResidueOK reports whether the consumed bytes, including their own trailing
// checksum, form a valid CRC32-C codeword. This is how both the header and
// the payload are validated; no checksum is ever recomputed and compared.
func (c *CRC32C) ResidueOK() bool {
	return c.value == crcResidue
}
