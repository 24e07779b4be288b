package sink

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tracescope/tracescope/pkg/tracefile"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// FileSink writes framed records to an on-disk trace file, named per
// tracefile.FileName. The enriched EventChunk is never persisted — it is
// reconstructable from the maps on replay — only the raw packet group is.
type FileSink struct {
	path   string
	writer *tracefile.Writer
}

// NewFileSink constructs the trace file's name from program's git
// revision (via tracefile.GitDescribe against workDir) and creates it
// under dir.
func NewFileSink(ctx context.Context, dir, workDir, program string, when time.Time) (*FileSink, error) {
	shortCommit, dirty, err := tracefile.GitDescribe(ctx, workDir)
	if err != nil {
		return nil, tracerr.SinkError("describe git revision for trace file name", err)
	}

	path := filepath.Join(dir, tracefile.FileName(program, shortCommit, dirty, when))

	writer, err := tracefile.Create(path)
	if err != nil {
		return nil, tracerr.SinkError(fmt.Sprintf("create trace file %s", path), err)
	}

	return &FileSink{path: path, writer: writer}, nil
}

// DrainMetadata implements Sink.
func (s *FileSink) DrainMetadata(meta tracemodel.TraceMetadata) error {
	if err := s.writer.WriteMetadata(meta); err != nil {
		return tracerr.SinkError("write trace metadata", err)
	}

	return nil
}

// Drain implements Sink. Only the raw packet group is persisted.
func (s *FileSink) Drain(raw tracemodel.TimestampedTracePackets, _ tracemodel.EventChunk) error {
	if err := s.writer.WritePackets(raw); err != nil {
		return tracerr.SinkError("write trace packets", err)
	}

	return nil
}

// Describe implements Sink.
func (s *FileSink) Describe() string {
	return fmt.Sprintf("file(%s)", s.path)
}

// Close implements Sink.
func (s *FileSink) Close() error {
	return s.writer.Close()
}
