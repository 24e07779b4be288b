package tracemodel

import "time"

// PacketKind discriminates the TracePacket sum type.
type PacketKind int

// The recognized packet kinds. PCSample, EventCounterWrap, and DataTracePC
// carry no payload the core interprets; they classify as Unknown at the
// enrichment stage.
const (
	PacketSync PacketKind = iota
	PacketOverflow
	PacketExceptionTrace
	PacketDataTraceValue
	PacketPCSample
	PacketEventCounterWrap
	PacketDataTracePC
)

// MemoryAccess distinguishes a DataTraceValue read from a write.
type MemoryAccess int

// The recognized memory access kinds.
const (
	AccessRead MemoryAccess = iota
	AccessWrite
)

// TracePacket is the sum type emitted by the packet decoder: Sync,
// Overflow, ExceptionTrace{source,action}, DataTraceValue{comparator,
// access,value}, or one of the variants the core does not interpret
// (PCSample, EventCounterWrap, DataTracePC).
type TracePacket struct {
	Kind PacketKind

	// Valid when Kind == PacketExceptionTrace.
	Source InterruptSource
	Action TaskAction

	// Valid when Kind == PacketDataTraceValue.
	Comparator uint8
	Access     MemoryAccess
	Value      []byte
}

// SyncPacket builds a Sync packet.
func SyncPacket() TracePacket { return TracePacket{Kind: PacketSync} }

// OverflowPacket builds an Overflow packet.
func OverflowPacket() TracePacket { return TracePacket{Kind: PacketOverflow} }

// ExceptionTracePacket builds an ExceptionTrace packet.
func ExceptionTracePacket(source InterruptSource, action TaskAction) TracePacket {
	return TracePacket{Kind: PacketExceptionTrace, Source: source, Action: action}
}

// DataTraceValuePacket builds a DataTraceValue packet.
func DataTraceValuePacket(comparator uint8, access MemoryAccess, value []byte) TracePacket {
	return TracePacket{Kind: PacketDataTraceValue, Comparator: comparator, Access: access, Value: value}
}

// MalformedPacket describes an undecodable run of bytes. Opaque beyond its
// diagnostic fields; never aborts decoding of subsequent packets.
type MalformedPacket struct {
	Offset uint64
	Bytes  []byte
	Reason string
}

// TimestampRelation describes how a timestamp's delta relates to the
// preceding one.
type TimestampRelation int

// The recognized timestamp relations.
const (
	RelationSync TimestampRelation = iota
	RelationUnknownDelay
	RelationAssocEventDelay
	RelationUnknownAssocEventDelay
)

// Timestamp is a decoder-relative time: an optional absolute base, a delta
// from it (or from the previous timestamp), a relation tag, and a
// divergence flag.
type Timestamp struct {
	Base     *uint64
	Delta    uint64
	Relation TimestampRelation
	Diverged bool
}

// TimestampedTracePackets is one assembled timestamp group: zero or more
// decoded packets, zero or more malformed byte runs, and the count of
// input bytes consumed to produce the group.
type TimestampedTracePackets struct {
	Timestamp Timestamp
	Packets   []TracePacket
	Malformed []MalformedPacket
	Consumed  uint
}

// EventKind discriminates the EventType sum type.
type EventKind int

// The recognized event kinds.
const (
	EventOverflow EventKind = iota
	EventTask
	EventUnknown
	EventUnmappable
	EventInvalid
)

// EventType is the enriched, symbol-resolved counterpart to a TracePacket.
type EventType struct {
	Kind EventKind

	// Valid when Kind == EventTask.
	TaskName TaskIdentity
	Action   TaskAction

	// Valid when Kind == EventUnknown or EventUnmappable.
	Packet TracePacket

	// Valid when Kind == EventUnmappable.
	Reason string

	// Valid when Kind == EventInvalid.
	Malformed MalformedPacket
}

// TaskEvent builds a Task event.
func TaskEvent(name TaskIdentity, action TaskAction) EventType {
	return EventType{Kind: EventTask, TaskName: name, Action: action}
}

// UnknownEvent builds an Unknown event wrapping the source packet.
func UnknownEvent(packet TracePacket) EventType {
	return EventType{Kind: EventUnknown, Packet: packet}
}

// UnmappableEvent builds an Unmappable event wrapping the source packet and a reason.
func UnmappableEvent(packet TracePacket, reason string) EventType {
	return EventType{Kind: EventUnmappable, Packet: packet, Reason: reason}
}

// InvalidEvent builds an Invalid event wrapping a malformed byte run.
func InvalidEvent(m MalformedPacket) EventType {
	return EventType{Kind: EventInvalid, Malformed: m}
}

// OverflowEvent builds an Overflow event.
func OverflowEvent() EventType { return EventType{Kind: EventOverflow} }

// EventChunk is one enriched batch: an absolute wall-clock timestamp and
// the ordered events decoded from a single TimestampedTracePackets group.
type EventChunk struct {
	WallTimestamp time.Time
	Events        []EventType
}

// TraceMetadata is the first record of a trace file: the program name, the
// immutable maps built by symbol recovery, the wall-clock time of the
// target reset, the TPIU clock frequency used for timestamp arithmetic,
// and an optional free-form comment.
type TraceMetadata struct {
	ProgramName   string
	Hardware      HardwareTaskMap
	Software      SoftwareTaskMap
	ResetWallTime time.Time
	TPIUFreq      uint32
	Comment       string
}

// HardwareTaskCount returns the number of hardware tasks in the metadata's maps.
func (m TraceMetadata) HardwareTaskCount() int {
	return len(m.Hardware)
}

// SoftwareTaskCount returns the number of software tasks in the metadata's maps.
func (m TraceMetadata) SoftwareTaskCount() int {
	return len(m.Software.Tasks)
}
