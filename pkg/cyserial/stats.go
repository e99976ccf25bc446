// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

import (
	"fmt"
	"time"
)

// Statistics tracks link health counters for a monitored byte stream. The
// parser itself never reports errors, so the feeding loop maintains these
// from the outside: count every byte, count every completed transfer, and
// the difference between delimiters seen and transfers completed estimates
// how often the stream resynchronized.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	BytesConsumed uint64
	Delimiters    uint64
	Transfers     uint64
	Requests      uint64
	Responses     uint64
	Messages      uint64

	// Rates (calculated)
	ByteRate     float64 // bytes/sec
	TransferRate float64 // transfers/sec
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// UpdateByte records one consumed stream byte.
func (s *Statistics) UpdateByte(b byte) {
	s.BytesConsumed++
	if b == FrameDelimiter {
		s.Delimiters++
	}
	s.LastUpdateTime = time.Now()
}

// UpdateTransfer records one completed transfer and classifies it.
func (s *Statistics) UpdateTransfer(tr *Transfer) {
	s.Transfers++
	if _, ok := tr.IsResponse(); ok {
		s.Responses++
	} else if _, ok := tr.IsRequest(); ok {
		s.Requests++
	} else {
		s.Messages++
	}
	s.LastUpdateTime = time.Now()
}

// AbandonedFrames estimates how many frames were opened but never completed.
// Every delimiter both closes and opens a frame, so on a healthy stream the
// delimiter count runs at roughly twice the transfer count.
func (s *Statistics) AbandonedFrames() uint64 {
	if s.Delimiters > s.Transfers*2 {
		return s.Delimiters - s.Transfers*2
	}
	return 0
}

// CalculateRates recomputes the byte and transfer rates.
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ByteRate = float64(s.BytesConsumed) / elapsed
		s.TransferRate = float64(s.Transfers) / elapsed
	}
}

// String returns a formatted statistics summary.
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Bytes Consumed:  %10d\n", s.BytesConsumed)
	result += fmt.Sprintf("Transfers:       %10d\n", s.Transfers)
	if s.Requests > 0 {
		result += fmt.Sprintf("  Requests:      %10d\n", s.Requests)
	}
	if s.Responses > 0 {
		result += fmt.Sprintf("  Responses:     %10d\n", s.Responses)
	}
	if s.Messages > 0 {
		result += fmt.Sprintf("  Messages:      %10d\n", s.Messages)
	}
	if abandoned := s.AbandonedFrames(); abandoned > 0 {
		result += fmt.Sprintf("Abandoned Frames:%10d (est.)\n", abandoned)
	}
	result += fmt.Sprintf("Byte Rate:       %10.1f bytes/sec\n", s.ByteRate)
	result += fmt.Sprintf("Transfer Rate:   %10.1f transfers/sec\n", s.TransferRate)
	result += "====================================\n"

	return result
}

// Reset resets all counters.
func (s *Statistics) Reset() {
	now := time.Now()
	*s = Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
