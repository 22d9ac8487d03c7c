package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			out[md.Name] = md
		}
	}
	return out
}

func TestBootstrapMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewBootstrapMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordLayer(ctx, 100, 400)
	m.RecordLayer(ctx, 50, 200)
	m.RecordPull(ctx, "docker.io/library/alpine:latest", 2*time.Second)
	m.RecordRun(ctx, "registry", "ok")

	got := collect(t, reader)

	layers, ok := got["jailrun_layers_pulled_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, layers.DataPoints, 1)
	require.Equal(t, int64(2), layers.DataPoints[0].Value)

	bytes, ok := got["jailrun_layer_bytes_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Equal(t, int64(150), bytes.DataPoints[0].Value)

	extracted, ok := got["jailrun_extracted_bytes_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Equal(t, int64(600), extracted.DataPoints[0].Value)

	pulls, ok := got["jailrun_pull_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Equal(t, uint64(1), pulls.DataPoints[0].Count)

	runs, ok := got["jailrun_runs_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	outcome, found := runs.DataPoints[0].Attributes.Value("outcome")
	require.True(t, found)
	require.Equal(t, "ok", outcome.AsString())
}

func TestBootstrapMetricsNil(t *testing.T) {
	var m *BootstrapMetrics
	ctx := context.Background()

	require.NotPanics(t, func() {
		m.RecordLayer(ctx, 1, 1)
		m.RecordPull(ctx, "x", time.Second)
		m.RecordRun(ctx, "local", "ok")
	})
}
