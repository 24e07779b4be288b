// Package enrich resolves a decoder-produced TimestampedTracePackets
// group against the immutable task maps into an EventChunk, implementing
// spec's per-packet rules verbatim including its permissive reading of an
// all-zero DataTraceValue (maps to software task ID 0 when present,
// otherwise Unmappable).
package enrich

import (
	"math"
	"time"

	"github.com/tracescope/tracescope/pkg/tracemodel"
)

// Maps bundles the two immutable, startup-populated task maps enrichment
// looks packets up against.
type Maps struct {
	Hardware tracemodel.HardwareTaskMap
	Software tracemodel.SoftwareTaskMap
}

// Enrich maps raw's packets to events against maps, anchored at
// resetWallTime and scaled by tpiuFreq, and appends raw's malformed
// records as Invalid events at the end, preserving packet order.
func Enrich(raw tracemodel.TimestampedTracePackets, maps Maps, resetWallTime time.Time, tpiuFreq uint32) tracemodel.EventChunk {
	events := make([]tracemodel.EventType, 0, len(raw.Packets)+len(raw.Malformed))

	for _, p := range raw.Packets {
		if p.Kind == tracemodel.PacketSync {
			continue
		}

		events = append(events, enrichPacket(p, maps))
	}

	for _, m := range raw.Malformed {
		events = append(events, tracemodel.InvalidEvent(m))
	}

	return tracemodel.EventChunk{
		WallTimestamp: wallTimestamp(raw.Timestamp, resetWallTime, tpiuFreq),
		Events:        events,
	}
}

func enrichPacket(p tracemodel.TracePacket, maps Maps) tracemodel.EventType {
	switch p.Kind {
	case tracemodel.PacketOverflow:
		return tracemodel.OverflowEvent()
	case tracemodel.PacketExceptionTrace:
		return enrichExceptionTrace(p, maps)
	case tracemodel.PacketDataTraceValue:
		return enrichDataTraceValue(p, maps)
	default:
		return tracemodel.UnknownEvent(p)
	}
}

func enrichExceptionTrace(p tracemodel.TracePacket, maps Maps) tracemodel.EventType {
	if maps.Software.IsDispatcher(p.Source) {
		return tracemodel.UnknownEvent(p)
	}

	name, ok := maps.Hardware[p.Source]
	if !ok {
		return tracemodel.UnmappableEvent(p, "missing hardware mapping")
	}

	return tracemodel.TaskEvent(name, p.Action)
}

func enrichDataTraceValue(p tracemodel.TracePacket, maps Maps) tracemodel.EventType {
	if p.Access != tracemodel.AccessWrite {
		return tracemodel.UnknownEvent(p)
	}

	action, ok := maps.Software.Comparators[p.Comparator]
	if !ok {
		return tracemodel.UnknownEvent(p)
	}

	taskID, ok := decodeTaskID(p.Value)
	if !ok {
		return tracemodel.UnmappableEvent(p, "invalid software value")
	}

	name, ok := maps.Software.Tasks[taskID]
	if !ok {
		return tracemodel.UnmappableEvent(p, "missing software mapping")
	}

	return tracemodel.TaskEvent(name, action)
}

// decodeTaskID applies the permissive all-zero reading: a value with
// zero length or more than one non-zero byte is rejected; an all-zero
// value decodes to task ID 0; otherwise the lone non-zero byte's index
// is irrelevant — value[0] is the task ID per spec, so a well-formed
// value always carries its non-zero byte at index 0.
func decodeTaskID(value []byte) (uint8, bool) {
	if len(value) == 0 {
		return 0, false
	}

	nonZero := 0

	for _, b := range value {
		if b != 0 {
			nonZero++
		}
	}

	if nonZero > 1 {
		return 0, false
	}

	return value[0], true
}

func wallTimestamp(ts tracemodel.Timestamp, resetWallTime time.Time, tpiuFreq uint32) time.Time {
	base := uint64(0)
	if ts.Base != nil {
		base = *ts.Base
	}

	if tpiuFreq == 0 {
		return resetWallTime
	}

	secondsSince := float64(base+ts.Delta) / float64(tpiuFreq)
	nanos := math.Round(secondsSince * 1e9)

	return resetWallTime.Add(time.Duration(nanos))
}
