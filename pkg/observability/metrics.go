package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricPacketsTotal     = "tracescope.packets.total"
	metricMalformedTotal   = "tracescope.packets.malformed"
	metricUnmappableTotal  = "tracescope.packets.unmappable"
	metricSinksOperational = "tracescope.sinks.operational"
	metricBufferWarnings   = "tracescope.source.buffer_warnings"

	attrSink = "sink"
)

// PipelineMetrics holds the OTel instruments published by the orchestration
// loop: packet throughput, decode quality, and sink health.
type PipelineMetrics struct {
	packetsTotal     metric.Int64Counter
	malformedTotal   metric.Int64Counter
	unmappableTotal  metric.Int64Counter
	sinksOperational metric.Int64UpDownCounter
	bufferWarnings   metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline metric instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	packetsTotal, err := mt.Int64Counter(metricPacketsTotal,
		metric.WithDescription("Total number of decoded trace packets processed"),
		metric.WithUnit("{packet}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPacketsTotal, err)
	}

	malformedTotal, err := mt.Int64Counter(metricMalformedTotal,
		metric.WithDescription("Total number of malformed byte runs encountered"),
		metric.WithUnit("{packet}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMalformedTotal, err)
	}

	unmappableTotal, err := mt.Int64Counter(metricUnmappableTotal,
		metric.WithDescription("Total number of packets that could not be mapped to a task"),
		metric.WithUnit("{packet}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricUnmappableTotal, err)
	}

	sinksOperational, err := mt.Int64UpDownCounter(metricSinksOperational,
		metric.WithDescription("Number of sinks currently accepting drains"),
		metric.WithUnit("{sink}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSinksOperational, err)
	}

	bufferWarnings, err := mt.Int64Counter(metricBufferWarnings,
		metric.WithDescription("Number of source buffer-near-full warnings emitted"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBufferWarnings, err)
	}

	return &PipelineMetrics{
		packetsTotal:     packetsTotal,
		malformedTotal:   malformedTotal,
		unmappableTotal:  unmappableTotal,
		sinksOperational: sinksOperational,
		bufferWarnings:   bufferWarnings,
	}, nil
}

// RecordChunk records the packets, malformed runs, and unmappable events
// contributed by a single enriched chunk.
func (pm *PipelineMetrics) RecordChunk(ctx context.Context, packets, malformed, unmappable int64) {
	pm.packetsTotal.Add(ctx, packets)
	pm.malformedTotal.Add(ctx, malformed)
	pm.unmappableTotal.Add(ctx, unmappable)
}

// SetSinksOperational records a delta in the number of sinks still accepting drains.
func (pm *PipelineMetrics) SetSinksOperational(ctx context.Context, delta int64, sink string) {
	pm.sinksOperational.Add(ctx, delta, metric.WithAttributes(attribute.String(attrSink, sink)))
}

// RecordBufferWarning records one source buffer-near-full warning.
func (pm *PipelineMetrics) RecordBufferWarning(ctx context.Context) {
	pm.bufferWarnings.Add(ctx, 1)
}
