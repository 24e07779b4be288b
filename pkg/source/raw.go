package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tracescope/tracescope/pkg/tracedecode"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// rawReadChunk is the read size used to feed undecoded bytes to a Decoder.
const rawReadChunk = 4096

// RawFileSource replays a file of raw, undecoded instrumentation bytes
// (e.g. a captured ITM byte stream with no framing of its own) through an
// injected Decoder.
type RawFileSource struct {
	noopResetTarget

	path    string
	file    *os.File
	decoder tracedecode.Decoder
	eof     bool
}

// OpenRawFileSource opens path and pairs it with decoder.
func OpenRawFileSource(path string, decoder tracedecode.Decoder) (*RawFileSource, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, tracerr.SourceError(fmt.Sprintf("open raw trace file %s", path), err)
	}

	return &RawFileSource{path: path, file: f, decoder: decoder}, nil
}

// Next implements Source. It feeds chunks of the file to the decoder until
// a complete packet group is assembled, returning io.EOF once the file is
// exhausted and the decoder has nothing left buffered.
func (s *RawFileSource) Next() (tracemodel.TimestampedTracePackets, error) {
	for {
		if group, ok := s.decoder.PullWithTimestamp(); ok {
			return *group, nil
		}

		if s.eof {
			return tracemodel.TimestampedTracePackets{}, io.EOF
		}

		buf := make([]byte, rawReadChunk)

		n, err := s.file.Read(buf)
		if n > 0 {
			s.decoder.Push(buf[:n])
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true

				continue
			}

			return tracemodel.TimestampedTracePackets{}, tracerr.SourceError(fmt.Sprintf("read raw trace file %s", s.path), err)
		}
	}
}

// AvailBuffer implements Source. Replay has no bounded buffer to warn about.
func (s *RawFileSource) AvailBuffer() BufferStatus {
	return NotApplicable()
}

// Describe implements Source.
func (s *RawFileSource) Describe() string {
	return fmt.Sprintf("raw-file(%s)", s.path)
}

// Close implements Source.
func (s *RawFileSource) Close() error {
	return s.file.Close()
}
