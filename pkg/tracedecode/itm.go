package tracedecode

import (
	"encoding/binary"

	"github.com/tracescope/tracescope/pkg/tracemodel"
)

// ITMDecoder is a reference Decoder for the wire format defined in
// wire.go. It never blocks: PullWithTimestamp returns ok=false whenever
// the buffered bytes don't yet contain a complete group, and Push simply
// appends.
type ITMDecoder struct {
	buf    []byte
	offset uint64

	packets   []tracemodel.TracePacket
	malformed []tracemodel.MalformedPacket
	consumed  uint

	malformedRun      []byte
	malformedRunStart uint64
}

// NewITMDecoder returns a ready-to-use ITMDecoder.
func NewITMDecoder() *ITMDecoder {
	return &ITMDecoder{}
}

// Push appends b to the decode buffer.
func (d *ITMDecoder) Push(b []byte) {
	d.buf = append(d.buf, b...)
}

// PullWithTimestamp implements Decoder.
func (d *ITMDecoder) PullWithTimestamp() (*tracemodel.TimestampedTracePackets, bool) {
	for len(d.buf) > 0 {
		header := d.buf[0]

		switch header {
		case headerSync:
			d.flushMalformed()
			d.packets = append(d.packets, tracemodel.SyncPacket())
			d.consume(1)
		case headerOverflow:
			d.flushMalformed()
			d.packets = append(d.packets, tracemodel.OverflowPacket())
			d.consume(1)
		case headerExceptionTrace:
			if !d.decodeExceptionTrace() {
				return nil, false
			}
		case headerDataTraceValue:
			if !d.decodeDataTraceValue() {
				return nil, false
			}
		case headerPCSample:
			d.flushMalformed()
			d.packets = append(d.packets, tracemodel.TracePacket{Kind: tracemodel.PacketPCSample})
			d.consume(1)
		case headerEventCtrWrap:
			d.flushMalformed()
			d.packets = append(d.packets, tracemodel.TracePacket{Kind: tracemodel.PacketEventCounterWrap})
			d.consume(1)
		case headerDataTracePC:
			d.flushMalformed()
			d.packets = append(d.packets, tracemodel.TracePacket{Kind: tracemodel.PacketDataTracePC})
			d.consume(1)
		case groupTrailer:
			group, ok := d.decodeTrailer()
			if !ok {
				return nil, false
			}

			return group, true
		default:
			d.appendMalformedByte(header)
			d.consume(1)
		}
	}

	return nil, false
}

func (d *ITMDecoder) decodeExceptionTrace() bool {
	const minLen = 1 + 1 + 1 // header + sourceKind + action, plus source payload below

	if len(d.buf) < minLen {
		return false
	}

	sourceKind := d.buf[1]

	var (
		source  tracemodel.InterruptSource
		payload int
	)

	switch sourceKind {
	case sourceKindCore:
		if len(d.buf) < 4 {
			return false
		}

		source = tracemodel.CoreExceptionSource(tracemodel.CoreException(d.buf[2]))
		payload = 1
	case sourceKindDevice:
		if len(d.buf) < 5 {
			return false
		}

		device := binary.LittleEndian.Uint16(d.buf[2:4])
		source = tracemodel.DeviceInterruptSource(device)
		payload = 2
	default:
		d.appendMalformedByte(d.buf[0])
		d.consume(1)

		return true
	}

	action := tracemodel.TaskAction(d.buf[2+payload])

	d.flushMalformed()
	d.packets = append(d.packets, tracemodel.ExceptionTracePacket(source, action))
	d.consume(2 + payload + 1)

	return true
}

func (d *ITMDecoder) decodeDataTraceValue() bool {
	const headerLen = 4 // header + comparator + access + length

	if len(d.buf) < headerLen {
		return false
	}

	comparator := d.buf[1]
	access := tracemodel.MemoryAccess(d.buf[2])
	valueLen := int(d.buf[3])

	if len(d.buf) < headerLen+valueLen {
		return false
	}

	value := make([]byte, valueLen)
	copy(value, d.buf[headerLen:headerLen+valueLen])

	d.flushMalformed()
	d.packets = append(d.packets, tracemodel.DataTraceValuePacket(comparator, access, value))
	d.consume(headerLen + valueLen)

	return true
}

func (d *ITMDecoder) decodeTrailer() (*tracemodel.TimestampedTracePackets, bool) {
	if len(d.buf) < 2 {
		return nil, false
	}

	hasBase := d.buf[1] != 0
	offset := 2

	var base *uint64

	if hasBase {
		if len(d.buf) < offset+8 {
			return nil, false
		}

		v := binary.LittleEndian.Uint64(d.buf[offset : offset+8])
		base = &v
		offset += 8
	}

	if len(d.buf) < offset+8+1+1 {
		return nil, false
	}

	delta := binary.LittleEndian.Uint64(d.buf[offset : offset+8])
	offset += 8

	relation := tracemodel.TimestampRelation(d.buf[offset])
	offset++

	diverged := d.buf[offset] != 0
	offset++

	d.flushMalformed()
	d.consume(offset)

	group := &tracemodel.TimestampedTracePackets{
		Timestamp: tracemodel.Timestamp{Base: base, Delta: delta, Relation: relation, Diverged: diverged},
		Packets:   d.packets,
		Malformed: d.malformed,
		Consumed:  d.consumed,
	}

	d.packets = nil
	d.malformed = nil
	d.consumed = 0

	return group, true
}

// consume drops n bytes from the front of the buffer and advances the
// group's consumed-byte counter and the absolute stream offset.
func (d *ITMDecoder) consume(n int) {
	d.buf = d.buf[n:]
	d.offset += uint64(n)
	d.consumed += uint(n)
}

func (d *ITMDecoder) appendMalformedByte(b byte) {
	if len(d.malformedRun) == 0 {
		d.malformedRunStart = d.offset
	}

	d.malformedRun = append(d.malformedRun, b)
}

// flushMalformed closes out any in-progress malformed byte run into a
// MalformedPacket so a recognized packet or group trailer can follow it.
func (d *ITMDecoder) flushMalformed() {
	if len(d.malformedRun) == 0 {
		return
	}

	d.malformed = append(d.malformed, tracemodel.MalformedPacket{
		Offset: d.malformedRunStart,
		Bytes:  d.malformedRun,
		Reason: "unrecognized byte sequence",
	})

	d.malformedRun = nil
}
