package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/tracescope/tracescope/pkg/tracefile"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// FileSource replays a previously recorded trace file record by record.
// Its buffer has no meaningful availability concept, since nothing is
// racing to overflow it.
type FileSource struct {
	noopResetTarget

	path   string
	reader *tracefile.Reader
	meta   tracemodel.TraceMetadata
}

// OpenFileSource opens path and reads its header metadata record.
func OpenFileSource(path string) (*FileSource, error) {
	reader, err := tracefile.Open(path)
	if err != nil {
		return nil, tracerr.SourceError(fmt.Sprintf("open trace file %s", path), err)
	}

	meta, err := reader.ReadMetadata()
	if err != nil {
		reader.Close()

		return nil, tracerr.SourceError(fmt.Sprintf("read metadata from %s", path), err)
	}

	return &FileSource{path: path, reader: reader, meta: meta}, nil
}

// Metadata returns the header record read at open time, for the
// orchestrator to seed a replay session's task maps and reset time.
func (s *FileSource) Metadata() tracemodel.TraceMetadata {
	return s.meta
}

// Next implements Source.
func (s *FileSource) Next() (tracemodel.TimestampedTracePackets, error) {
	packets, err := s.reader.ReadPackets()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return packets, io.EOF
		}

		return packets, tracerr.SourceError(fmt.Sprintf("read packets from %s", s.path), err)
	}

	return packets, nil
}

// AvailBuffer implements Source. Replay has no bounded buffer to warn about.
func (s *FileSource) AvailBuffer() BufferStatus {
	return NotApplicable()
}

// Describe implements Source.
func (s *FileSource) Describe() string {
	return fmt.Sprintf("file(%s)", s.path)
}

// Close implements Source.
func (s *FileSource) Close() error {
	return s.reader.Close()
}
