// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Robotics

package cyserial

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Capture files are a plain stream of CBOR-encoded CaptureRecord maps with
// integer keys, one record per transfer. The format is append-friendly and
// tolerant of truncation: a partial trailing record is reported as an error
// by ReadCapture and everything before it is intact.

// CaptureWriter appends capture records to a stream.
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter creates a writer emitting records to w.
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Write appends one record.
func (cw *CaptureWriter) Write(rec *CaptureRecord) error {
	if err := cw.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// CaptureReader reads capture records back from a stream.
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a reader consuming records from r.
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Read returns the next record, or io.EOF at the end of the stream.
func (cr *CaptureReader) Read() (*CaptureRecord, error) {
	var rec CaptureRecord
	if err := cr.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return &rec, nil
}

// ReadAll drains the stream into a slice.
func (cr *CaptureReader) ReadAll() ([]*CaptureRecord, error) {
	var recs []*CaptureRecord
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
