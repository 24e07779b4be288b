package tracefile_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracescope/tracescope/pkg/tracefile"
	"github.com/tracescope/tracescope/pkg/tracemodel"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blink.trace")

	tickID, err := tracemodel.NewTaskIdentity("app", "tick")
	require.NoError(t, err)

	meta := tracemodel.TraceMetadata{
		ProgramName:   "blink",
		Hardware:      tracemodel.HardwareTaskMap{tracemodel.CoreExceptionSource(tracemodel.SysTick): tickID},
		Software:      tracemodel.NewSoftwareTaskMap(),
		ResetWallTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		TPIUFreq:      16_000_000,
		Comment:       "bench run",
	}

	writer, err := tracefile.Create(path)
	require.NoError(t, err)

	require.NoError(t, writer.WriteMetadata(meta))

	base := uint64(0)
	packets := tracemodel.TimestampedTracePackets{
		Timestamp: tracemodel.Timestamp{Base: &base, Delta: 16_000_000},
		Packets:   []tracemodel.TracePacket{tracemodel.OverflowPacket()},
		Consumed:  4,
	}

	require.NoError(t, writer.WritePackets(packets))
	require.NoError(t, writer.Close())

	reader, err := tracefile.Open(path)
	require.NoError(t, err)

	defer reader.Close()

	gotMeta, err := reader.ReadMetadata()
	require.NoError(t, err)

	assert.Equal(t, meta.ProgramName, gotMeta.ProgramName)
	assert.Equal(t, meta.Comment, gotMeta.Comment)
	assert.True(t, meta.ResetWallTime.Equal(gotMeta.ResetWallTime))
	assert.Equal(t, tickID, gotMeta.Hardware[tracemodel.CoreExceptionSource(tracemodel.SysTick)])

	gotPackets, err := reader.ReadPackets()
	require.NoError(t, err)
	assert.Equal(t, packets.Consumed, gotPackets.Consumed)
	assert.Len(t, gotPackets.Packets, 1)

	_, err = reader.ReadPackets()
	require.ErrorIs(t, err, io.EOF)
}

func TestWriter_MetadataOnceBeforePackets(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blink.trace")

	writer, err := tracefile.Create(path)
	require.NoError(t, err)

	defer writer.Close()

	err = writer.WritePackets(tracemodel.TimestampedTracePackets{})
	require.Error(t, err)

	require.NoError(t, writer.WriteMetadata(tracemodel.TraceMetadata{ProgramName: "blink"}))

	err = writer.WriteMetadata(tracemodel.TraceMetadata{ProgramName: "blink"})
	require.Error(t, err)
}

func TestFileName_Pattern(t *testing.T) {
	t.Parallel()

	when := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	assert.Equal(t, "blink-gabc1234-2026-03-04T05-06-07.trace", tracefile.FileName("blink", "abc1234", false, when))
	assert.Equal(t, "blink-gabc1234-dirty-2026-03-04T05-06-07.trace", tracefile.FileName("blink", "abc1234", true, when))
}

func TestGitDescribe_OutsideRepoIsNonFatal(t *testing.T) {
	t.Parallel()

	// t.TempDir() is never inside a git repository, so gitlib.OpenRepository
	// fails to discover one and GitDescribe falls back to "unknown".
	shortCommit, dirty, err := tracefile.GitDescribe(context.Background(), t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, "unknown", shortCommit)
	assert.False(t, dirty)
}
