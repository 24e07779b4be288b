package tracedecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracescope/tracescope/pkg/tracedecode"
	"github.com/tracescope/tracescope/pkg/tracemodel"
)

func TestITMDecoder_DecodesSimpleGroup(t *testing.T) {
	t.Parallel()

	var buf []byte

	buf = tracedecode.EncodePacket(buf, tracemodel.OverflowPacket())
	buf = tracedecode.EncodePacket(buf, tracemodel.ExceptionTracePacket(
		tracemodel.CoreExceptionSource(tracemodel.SysTick), tracemodel.ActionEntered))

	base := uint64(100)
	buf = tracedecode.EncodeTimestamp(buf, tracemodel.Timestamp{Base: &base, Delta: 16_000_000, Relation: tracemodel.RelationSync})

	d := tracedecode.NewITMDecoder()
	d.Push(buf)

	group, ok := d.PullWithTimestamp()
	require.True(t, ok)
	require.Len(t, group.Packets, 2)

	assert.Equal(t, tracemodel.PacketOverflow, group.Packets[0].Kind)
	assert.Equal(t, tracemodel.PacketExceptionTrace, group.Packets[1].Kind)
	assert.Equal(t, tracemodel.SysTick, group.Packets[1].Source.Core)
	assert.Equal(t, uint64(100), *group.Timestamp.Base)
	assert.Equal(t, uint64(16_000_000), group.Timestamp.Delta)
	assert.Empty(t, group.Malformed)
	assert.Equal(t, uint(len(buf)), group.Consumed)
}

func TestITMDecoder_WaitsForMoreBytes(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = tracedecode.EncodePacket(buf, tracemodel.OverflowPacket())
	buf = tracedecode.EncodeTimestamp(buf, tracemodel.Timestamp{Delta: 1})

	d := tracedecode.NewITMDecoder()
	d.Push(buf[:len(buf)-2]) // withhold the trailer's final bytes

	_, ok := d.PullWithTimestamp()
	assert.False(t, ok)

	d.Push(buf[len(buf)-2:])

	group, ok := d.PullWithTimestamp()
	require.True(t, ok)
	assert.Len(t, group.Packets, 1)
}

func TestITMDecoder_RecordsMalformedByteRuns(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = tracedecode.EncodePacket(buf, tracemodel.SyncPacket())
	buf = append(buf, 0xAA, 0xBB, 0xCC) // unrecognized header bytes
	buf = tracedecode.EncodeTimestamp(buf, tracemodel.Timestamp{Delta: 1})

	d := tracedecode.NewITMDecoder()
	d.Push(buf)

	group, ok := d.PullWithTimestamp()
	require.True(t, ok)
	require.Len(t, group.Malformed, 1)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, group.Malformed[0].Bytes)
	assert.Len(t, group.Packets, 1)
}

func TestITMDecoder_SecondGroupStartsClean(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = tracedecode.EncodePacket(buf, tracemodel.OverflowPacket())
	buf = tracedecode.EncodeTimestamp(buf, tracemodel.Timestamp{Delta: 1})
	buf = tracedecode.EncodePacket(buf, tracemodel.SyncPacket())
	buf = tracedecode.EncodeTimestamp(buf, tracemodel.Timestamp{Delta: 2})

	d := tracedecode.NewITMDecoder()
	d.Push(buf)

	first, ok := d.PullWithTimestamp()
	require.True(t, ok)
	assert.Len(t, first.Packets, 1)

	second, ok := d.PullWithTimestamp()
	require.True(t, ok)
	assert.Len(t, second.Packets, 1)
	assert.Empty(t, second.Malformed)
}
