package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tracescope/tracescope/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.PipelineMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	pm, err := observability.NewPipelineMetrics(meter)
	require.NoError(t, err)

	return pm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func TestPipelineMetrics_RecordChunk(t *testing.T) {
	t.Parallel()
	pm, reader := setupTestMeter(t)
	ctx := context.Background()

	pm.RecordChunk(ctx, 10, 1, 2)

	rm := collectMetrics(t, reader)

	packets := findMetric(rm, "tracescope.packets.total")
	require.NotNil(t, packets, "tracescope.packets.total metric not found")

	malformed := findMetric(rm, "tracescope.packets.malformed")
	require.NotNil(t, malformed, "tracescope.packets.malformed metric not found")

	unmappable := findMetric(rm, "tracescope.packets.unmappable")
	require.NotNil(t, unmappable, "tracescope.packets.unmappable metric not found")
}

func TestPipelineMetrics_SetSinksOperational(t *testing.T) {
	t.Parallel()
	pm, reader := setupTestMeter(t)
	ctx := context.Background()

	pm.SetSinksOperational(ctx, 1, "file")
	pm.SetSinksOperational(ctx, -1, "socket")

	rm := collectMetrics(t, reader)

	sinks := findMetric(rm, "tracescope.sinks.operational")
	require.NotNil(t, sinks, "tracescope.sinks.operational metric not found")
}

func TestPipelineMetrics_RecordBufferWarning(t *testing.T) {
	t.Parallel()
	pm, reader := setupTestMeter(t)
	ctx := context.Background()

	pm.RecordBufferWarning(ctx)

	rm := collectMetrics(t, reader)

	warnings := findMetric(rm, "tracescope.source.buffer_warnings")
	require.NotNil(t, warnings, "tracescope.source.buffer_warnings metric not found")
}

func TestNewPipelineMetrics_WithRealProvider(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	pm, err := observability.NewPipelineMetrics(providers.Meter)
	require.NoError(t, err)
	assert.NotNil(t, pm)

	// Should not panic on recording against a no-op meter.
	pm.RecordChunk(context.Background(), 1, 0, 0)
}
