package tracedecode

import (
	"encoding/binary"

	"github.com/tracescope/tracescope/pkg/tracemodel"
)

// Wire framing for ITMDecoder's reference implementation. This is a
// compact, self-delimiting encoding of the TracePacket/Timestamp model —
// not a bit-for-bit reproduction of the ARM CoreSight ITM/DWT protocol,
// which is an external, vendor-documented wire format out of scope here.
// A production decoder swapped in at the Decoder interface may implement
// the real protocol however it likes; the core never inspects these bytes.
const (
	headerSync           byte = 0x00
	headerOverflow       byte = 0x01
	headerExceptionTrace byte = 0x02
	headerDataTraceValue byte = 0x03
	headerPCSample       byte = 0x04
	headerEventCtrWrap   byte = 0x05
	headerDataTracePC    byte = 0x06
	groupTrailer         byte = 0xFF

	sourceKindCore   byte = 0
	sourceKindDevice byte = 1
)

// EncodePacket appends p's wire encoding to buf, for use by test fixtures
// and any producer feeding ITMDecoder directly.
func EncodePacket(buf []byte, p tracemodel.TracePacket) []byte {
	switch p.Kind {
	case tracemodel.PacketSync:
		return append(buf, headerSync)
	case tracemodel.PacketOverflow:
		return append(buf, headerOverflow)
	case tracemodel.PacketExceptionTrace:
		buf = append(buf, headerExceptionTrace)
		buf = encodeSource(buf, p.Source)

		return append(buf, byte(p.Action))
	case tracemodel.PacketDataTraceValue:
		buf = append(buf, headerDataTraceValue)
		buf = append(buf, p.Comparator, byte(p.Access), byte(len(p.Value)))

		return append(buf, p.Value...)
	case tracemodel.PacketPCSample:
		return append(buf, headerPCSample)
	case tracemodel.PacketEventCounterWrap:
		return append(buf, headerEventCtrWrap)
	case tracemodel.PacketDataTracePC:
		return append(buf, headerDataTracePC)
	default:
		return buf
	}
}

func encodeSource(buf []byte, s tracemodel.InterruptSource) []byte {
	if s.Kind == tracemodel.SourceCoreException {
		return append(buf, sourceKindCore, byte(s.Core))
	}

	device := make([]byte, 2)
	binary.LittleEndian.PutUint16(device, s.Device)

	return append(append(buf, sourceKindDevice), device...)
}

// EncodeTimestamp appends ts's wire encoding (the group trailer) to buf.
func EncodeTimestamp(buf []byte, ts tracemodel.Timestamp) []byte {
	buf = append(buf, groupTrailer)

	if ts.Base != nil {
		base := make([]byte, 9)
		base[0] = 1
		binary.LittleEndian.PutUint64(base[1:], *ts.Base)
		buf = append(buf, base...)
	} else {
		buf = append(buf, 0)
	}

	delta := make([]byte, 8)
	binary.LittleEndian.PutUint64(delta, ts.Delta)
	buf = append(buf, delta...)

	diverged := byte(0)
	if ts.Diverged {
		diverged = 1
	}

	return append(buf, byte(ts.Relation), diverged)
}
