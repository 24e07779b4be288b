// Package sink implements the Sink contract: FileSink persists raw
// packet groups to an on-disk trace file via pkg/tracefile; SocketSink
// forwards enriched chunks as newline-delimited JSON to a connected
// consumer.
package sink

import (
	"github.com/tracescope/tracescope/pkg/tracemodel"
)

// Sink is the fan-out target of the orchestration loop.
type Sink interface {
	// DrainMetadata writes meta as the sink's header record. Must be
	// called at most once, before any Drain call.
	DrainMetadata(meta tracemodel.TraceMetadata) error

	// Drain persists or forwards one record. Idempotent on success; does
	// not retry internally.
	Drain(raw tracemodel.TimestampedTracePackets, enriched tracemodel.EventChunk) error

	// Describe returns a human-readable identifier for diagnostics.
	Describe() string

	// Close releases the sink's resources.
	Close() error
}
