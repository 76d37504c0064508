package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
)

const readBufferSize = 32 * 1024

// Reader drives a LineFramer and Decode over an io.Reader, yielding decoded
// events one at a time. Malformed and unknown records are logged and skipped.
type Reader struct {
	src     io.Reader
	framer  *LineFramer
	pending []string
	buf     []byte
	logger  *slog.Logger
	skipped int
	err     error
}

// NewReader creates a Reader over src. A nil logger uses slog.Default().
func NewReader(src io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		src:    src,
		framer: NewLineFramer(),
		buf:    make([]byte, readBufferSize),
		logger: logger,
	}
}

// Next returns the next decoded event. It blocks only while waiting for more
// bytes from the underlying reader. At the end of input it returns io.EOF;
// any unterminated trailing record is discarded first. Transport errors are
// returned wrapped.
func (r *Reader) Next() (domain.StreamEvent, error) {
	for {
		for len(r.pending) > 0 {
			rec := r.pending[0]
			r.pending = r.pending[1:]

			ev, err := Decode(rec)
			if err == nil {
				return ev, nil
			}
			if errors.Is(err, ErrBlankRecord) {
				continue
			}
			r.skipped++
			r.logger.Warn("skipping undecodable stream record",
				slog.String("error", err.Error()),
				slog.Int("record_bytes", len(rec)))
		}

		if r.err != nil {
			return domain.StreamEvent{}, r.err
		}

		n, readErr := r.src.Read(r.buf)
		if n > 0 {
			recs, err := r.framer.Push(r.buf[:n])
			r.pending = append(r.pending, recs...)
			if err != nil {
				r.skipped++
				r.logger.Warn("dropping oversized stream record", slog.String("error", err.Error()))
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if dropped := r.framer.Flush(); dropped > 0 {
					r.logger.Debug("discarding unterminated trailing record", slog.Int("record_bytes", dropped))
				}
				r.err = io.EOF
			} else {
				r.framer.Flush()
				r.err = fmt.Errorf("stream read error: %w", readErr)
			}
		}
	}
}

// Skipped returns how many records were dropped as undecodable.
func (r *Reader) Skipped() int {
	return r.skipped
}
