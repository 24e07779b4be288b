package orchestrate_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracescope/tracescope/pkg/enrich"
	"github.com/tracescope/tracescope/pkg/orchestrate"
	"github.com/tracescope/tracescope/pkg/sink"
	"github.com/tracescope/tracescope/pkg/source"
	"github.com/tracescope/tracescope/pkg/tracemodel"
)

type fakeSource struct {
	groups []tracemodel.TimestampedTracePackets
	i      int
}

func (s *fakeSource) Next() (tracemodel.TimestampedTracePackets, error) {
	if s.i >= len(s.groups) {
		return tracemodel.TimestampedTracePackets{}, io.EOF
	}

	g := s.groups[s.i]
	s.i++

	return g, nil
}

func (s *fakeSource) ResetTarget(bool) error           { return nil }
func (s *fakeSource) AvailBuffer() source.BufferStatus { return source.NotApplicable() }
func (s *fakeSource) Describe() string                { return "fake" }
func (s *fakeSource) Close() error                     { return nil }

type fakeSink struct {
	mu       sync.Mutex
	drained  int
	failAt   int
	metaErr  error
	drainErr error
}

func (s *fakeSink) DrainMetadata(tracemodel.TraceMetadata) error { return s.metaErr }

func (s *fakeSink) Drain(tracemodel.TimestampedTracePackets, tracemodel.EventChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drained++

	if s.failAt != 0 && s.drained >= s.failAt {
		return s.drainErr
	}

	return nil
}

func (s *fakeSink) Describe() string { return "fake-sink" }
func (s *fakeSink) Close() error     { return nil }

func overflowGroup() tracemodel.TimestampedTracePackets {
	return tracemodel.TimestampedTracePackets{Packets: []tracemodel.TracePacket{tracemodel.OverflowPacket()}}
}

func TestRun_DrainsAllGroupsThenExitsCleanly(t *testing.T) {
	t.Parallel()

	src := &fakeSource{groups: []tracemodel.TimestampedTracePackets{overflowGroup(), overflowGroup(), overflowGroup()}}
	sk := &fakeSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := orchestrate.Run(ctx, orchestrate.Options{
		Action:      "trace",
		ProgramName: "blink",
		Source:      src,
		Sinks:       []sink.Sink{sk},
		Maps:        enrich.Maps{Software: tracemodel.NewSoftwareTaskMap()},
	})
	require.NoError(t, err)

	sk.mu.Lock()
	defer sk.mu.Unlock()
	assert.Equal(t, 3, sk.drained)
}

func TestRun_AllSinksBrokenIsFatal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{groups: []tracemodel.TimestampedTracePackets{overflowGroup(), overflowGroup()}}
	sk := &fakeSink{failAt: 1, drainErr: errors.New("disk full")}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := orchestrate.Run(ctx, orchestrate.Options{
		Action:      "trace",
		ProgramName: "blink",
		Source:      src,
		Sinks:       []sink.Sink{sk},
		Maps:        enrich.Maps{Software: tracemodel.NewSoftwareTaskMap()},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrate.ErrAllSinksBroken)
}

func TestRun_BrokenMetadataSinkIsExcludedFromStart(t *testing.T) {
	t.Parallel()

	src := &fakeSource{groups: []tracemodel.TimestampedTracePackets{overflowGroup()}}
	good := &fakeSink{}
	bad := &fakeSink{metaErr: errors.New("connection refused")}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := orchestrate.Run(ctx, orchestrate.Options{
		Action:      "trace",
		ProgramName: "blink",
		Source:      src,
		Sinks:       []sink.Sink{good, bad},
		Maps:        enrich.Maps{Software: tracemodel.NewSoftwareTaskMap()},
	})
	require.NoError(t, err)

	good.mu.Lock()
	defer good.mu.Unlock()
	assert.Equal(t, 1, good.drained)

	bad.mu.Lock()
	defer bad.mu.Unlock()
	assert.Equal(t, 0, bad.drained)
}
