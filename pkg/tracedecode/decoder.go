// Package tracedecode implements the packet-decoder side of the external
// collaborator contract: push raw bytes in, pull complete timestamped
// packet groups out. The core pipeline (pkg/orchestrate, pkg/enrich)
// depends only on the Decoder interface; ITMDecoder is one reference
// implementation of the Cortex-M ITM/TPIU/DWT wire format named in the
// trace-packet model, grounded on the framing approach of
// original_source's tty.rs/tracing.rs (push bytes, pull decoded packets
// in a loop, treat undecodable runs as recoverable rather than fatal).
package tracedecode

import "github.com/tracescope/tracescope/pkg/tracemodel"

// Decoder is the external packet-decoder contract. Implementations must
// not share state with the core beyond this interface.
type Decoder interface {
	// Push enqueues raw bytes read from a Source for decoding.
	Push(b []byte)

	// PullWithTimestamp returns the next complete timestamped packet
	// group, or ok=false if none is assembled yet. Malformed byte runs
	// are reported inside the returned group's Malformed field rather
	// than aborting decoding.
	PullWithTimestamp() (group *tracemodel.TimestampedTracePackets, ok bool)
}
