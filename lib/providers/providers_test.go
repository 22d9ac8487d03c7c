package providers

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/onkernel/jailrun/cmd/jailrun/config"
	"github.com/onkernel/jailrun/lib/otel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		in    string
		slog  slog.Level
		charm charmlog.Level
	}{
		{"debug", slog.LevelDebug, charmlog.DebugLevel},
		{"info", slog.LevelInfo, charmlog.InfoLevel},
		{"warn", slog.LevelWarn, charmlog.WarnLevel},
		{"error", slog.LevelError, charmlog.ErrorLevel},
		{"nonsense", slog.LevelWarn, charmlog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.slog, slogLevel(tt.in))
			assert.Equal(t, tt.charm, charmLevel(tt.in))
		})
	}
}

func TestProvideBootstrapper(t *testing.T) {
	cfg := &config.Config{
		DataDir:       t.TempDir(),
		VerifyDigests: true,
		LogLevel:      "warn",
		HTTPTimeout:   5 * time.Second,
	}

	telemetry, cleanup, err := ProvideTelemetry(cfg)
	require.NoError(t, err)
	defer cleanup()
	logger := ProvideLogger(cfg, telemetry)

	metrics, err := ProvideMetrics(telemetry)
	require.NoError(t, err)

	b := ProvideBootstrapper(
		ProvidePaths(cfg),
		ProvideJail(logger),
		ProvideIsolator(logger),
		ProvideLauncher(cfg, logger),
		logger,
		metrics,
		ProvideTracer(telemetry),
	)
	assert.NotNil(t, b)
	assert.NotNil(t, ProvideRegistryClient(cfg, logger))
}

// recordingExporter keeps the bodies of exported log records.
type recordingExporter struct {
	mu     sync.Mutex
	bodies []string
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.bodies = append(e.bodies, r.Body().AsString())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestProvideLoggerBridgesToOTLP(t *testing.T) {
	exporter := &recordingExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	logger := ProvideLogger(&config.Config{LogLevel: "info"}, &otel.Provider{LoggerProvider: lp})
	logger.Debug("below level")
	logger.Info("layer extracted", "digest", "sha256:abc")

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	assert.Equal(t, []string{"layer extracted"}, exporter.bodies)
}

func TestProvideLoggerWithoutExport(t *testing.T) {
	logger := ProvideLogger(&config.Config{LogLevel: "warn"}, &otel.Provider{})
	_, isFanout := logger.Handler().(fanout)
	assert.False(t, isFanout)
}

func TestFanout(t *testing.T) {
	var debug, warn bytes.Buffer
	h := fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	logger := slog.New(h).With("run_id", "r1").WithGroup("pull")

	logger.Info("fetching manifest", "image", "alpine")
	logger.Warn("stale staging root")

	assert.Contains(t, debug.String(), "fetching manifest")
	assert.Contains(t, debug.String(), "pull.image=alpine")
	assert.Contains(t, debug.String(), "run_id=r1")
	assert.NotContains(t, warn.String(), "fetching manifest")
	assert.Contains(t, warn.String(), "stale staging root")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}
