// Package stream decodes the newline-delimited JSON event stream produced by
// the debate generation backend.
package stream

import (
	"bytes"
	"errors"
)

// MaxRecordSize bounds a single record. A partial record that grows past it
// is dropped along with the rest of its line.
const MaxRecordSize = 1024 * 1024

// ErrRecordTooLarge is returned by Push when the pending partial record
// exceeds MaxRecordSize.
var ErrRecordTooLarge = errors.New("stream record exceeds maximum size")

// LineFramer splits arbitrarily chunked input into newline-terminated
// records. Records are emitted once each, in arrival order, with the
// delimiter (and a preceding carriage return) removed.
type LineFramer struct {
	buf []byte
	max int

	// discarding is set after an oversized record until its newline.
	discarding bool
}

// NewLineFramer creates a framer with the default record size limit.
func NewLineFramer() *LineFramer {
	return &LineFramer{max: MaxRecordSize}
}

// Push appends chunk to the pending buffer and returns every record it
// completes. The trailing partial record, if any, is retained for the next
// call. ErrRecordTooLarge is reported once per oversized record.
func (f *LineFramer) Push(chunk []byte) ([]string, error) {
	if f.discarding {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			return nil, nil
		}
		f.discarding = false
		chunk = chunk[i+1:]
	}
	f.buf = append(f.buf, chunk...)

	var records []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		records = append(records, string(bytes.TrimSuffix(f.buf[:i], []byte{'\r'})))
		f.buf = f.buf[i+1:]
	}

	// Reclaim the consumed prefix so a long stream does not pin memory.
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	}

	if f.max > 0 && len(f.buf) > f.max {
		f.buf = nil
		f.discarding = true
		return records, ErrRecordTooLarge
	}
	return records, nil
}

// Pending returns the number of buffered bytes not yet terminated by a
// newline.
func (f *LineFramer) Pending() int {
	return len(f.buf)
}

// Flush discards any unterminated trailing record and returns its length.
// A trailing partial record is never emitted.
func (f *LineFramer) Flush() int {
	n := len(f.buf)
	f.buf = nil
	f.discarding = false
	return n
}
