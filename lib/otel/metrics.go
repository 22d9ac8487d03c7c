package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BootstrapMetrics holds metrics for a bootstrap run.
type BootstrapMetrics struct {
	RunsTotal      metric.Int64Counter
	LayersTotal    metric.Int64Counter
	LayerBytes     metric.Int64Counter
	PullDuration   metric.Float64Histogram
	ExtractedBytes metric.Int64Counter
}

// NewBootstrapMetrics creates metrics for the bootstrap pipeline.
func NewBootstrapMetrics(meter metric.Meter) (*BootstrapMetrics, error) {
	runsTotal, err := meter.Int64Counter(
		"jailrun_runs_total",
		metric.WithDescription("Total number of bootstrap runs by source and outcome"),
	)
	if err != nil {
		return nil, err
	}

	layersTotal, err := meter.Int64Counter(
		"jailrun_layers_pulled_total",
		metric.WithDescription("Total number of layers fetched from registries"),
	)
	if err != nil {
		return nil, err
	}

	layerBytes, err := meter.Int64Counter(
		"jailrun_layer_bytes_total",
		metric.WithDescription("Compressed bytes downloaded for layers"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	pullDuration, err := meter.Float64Histogram(
		"jailrun_pull_duration_seconds",
		metric.WithDescription("Time to pull and flatten an image"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	extractedBytes, err := meter.Int64Counter(
		"jailrun_extracted_bytes_total",
		metric.WithDescription("Uncompressed bytes written to staging roots"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &BootstrapMetrics{
		RunsTotal:      runsTotal,
		LayersTotal:    layersTotal,
		LayerBytes:     layerBytes,
		PullDuration:   pullDuration,
		ExtractedBytes: extractedBytes,
	}, nil
}

// RecordLayer records one applied layer. Safe on a nil receiver.
func (m *BootstrapMetrics) RecordLayer(ctx context.Context, compressed, extracted int64) {
	if m == nil {
		return
	}
	m.LayersTotal.Add(ctx, 1)
	m.LayerBytes.Add(ctx, compressed)
	m.ExtractedBytes.Add(ctx, extracted)
}

// RecordPull records the wall time of a full image pull. Safe on a nil receiver.
func (m *BootstrapMetrics) RecordPull(ctx context.Context, image string, d time.Duration) {
	if m == nil {
		return
	}
	m.PullDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("image", image)))
}

// RecordRun counts a finished run. Safe on a nil receiver.
func (m *BootstrapMetrics) RecordRun(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}
