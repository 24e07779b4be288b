package source_test

import "github.com/tracescope/tracescope/pkg/tracemodel"

// fakeDecoder completes a group once it has been pushed at least
// threshold bytes, consuming them all into a single group. It stands in
// for pkg/tracedecode.Decoder without depending on a real wire format.
type fakeDecoder struct {
	threshold int
	buf       []byte
}

func (d *fakeDecoder) Push(b []byte) {
	d.buf = append(d.buf, b...)
}

func (d *fakeDecoder) PullWithTimestamp() (*tracemodel.TimestampedTracePackets, bool) {
	if len(d.buf) < d.threshold {
		return nil, false
	}

	group := tracemodel.TimestampedTracePackets{
		Packets:  []tracemodel.TracePacket{tracemodel.OverflowPacket()},
		Consumed: uint(len(d.buf)),
	}
	d.buf = nil

	return &group, true
}
