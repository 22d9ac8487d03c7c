package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/nrednav/cuid2"
	"github.com/onkernel/jailrun/cmd/jailrun/config"
	"github.com/onkernel/jailrun/lib/bootstrap"
	"github.com/onkernel/jailrun/lib/jail"
	"github.com/onkernel/jailrun/lib/launcher"
	"github.com/onkernel/jailrun/lib/namespace"
	"github.com/onkernel/jailrun/lib/otel"
	"github.com/onkernel/jailrun/lib/paths"
	"github.com/onkernel/jailrun/lib/registry"
	"github.com/onkernel/jailrun/lib/version"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"
)

const telemetryFlushTimeout = 5 * time.Second

// ProvideConfig provides the application configuration
func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

// ProvideLogger provides a structured logger writing to stderr.
// Terminals get charmbracelet's handler, everything else gets JSON.
// When telemetry exports, records are also sent through the OTLP log bridge.
// Every record carries the id of this run.
func ProvideLogger(cfg *config.Config, p *otel.Provider) *slog.Logger {
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			Level:           charmLevel(cfg.LogLevel),
			ReportTimestamp: true,
			Prefix:          "jailrun",
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slogLevel(cfg.LogLevel),
		})
	}
	if p != nil && p.LoggerProvider != nil {
		bridge := otelslog.NewHandler(otel.ServiceName, otelslog.WithLoggerProvider(p.LoggerProvider))
		handler = fanout{handler, leveled{bridge, slogLevel(cfg.LogLevel)}}
	}
	return slog.New(handler).With("run_id", cuid2.Generate())
}

// fanout hands every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// leveled applies the configured log level to a handler that has none.
type leveled struct {
	slog.Handler
	level slog.Level
}

func (l leveled) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= l.level && l.Handler.Enabled(ctx, level)
}

func (l leveled) WithAttrs(attrs []slog.Attr) slog.Handler {
	return leveled{l.Handler.WithAttrs(attrs), l.level}
}

func (l leveled) WithGroup(name string) slog.Handler {
	return leveled{l.Handler.WithGroup(name), l.level}
}

func slogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelWarn
	}
	return level
}

func charmLevel(s string) charmlog.Level {
	level, err := charmlog.ParseLevel(s)
	if err != nil {
		return charmlog.WarnLevel
	}
	return level
}

// ProvidePaths provides the data directory layout
func ProvidePaths(cfg *config.Config) *paths.Paths {
	return paths.New(cfg.DataDir)
}

// ProvideTelemetry provides the meter, tracer and logger providers, exporting
// over OTLP when an endpoint is configured. The cleanup flushes pending data.
func ProvideTelemetry(cfg *config.Config) (*otel.Provider, func(), error) {
	provider, err := otel.Setup(context.Background(), otel.Config{
		Endpoint: cfg.OtelEndpoint,
		Insecure: cfg.OtelInsecure,
		Version:  version.Version,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		// the log exporter is shutting down too, so this only reaches stderr
		if err := provider.Shutdown(ctx); err != nil {
			slog.Default().Warn("failed to flush telemetry", "error", err)
		}
	}
	return provider, cleanup, nil
}

// ProvideMetrics provides bootstrap metrics
func ProvideMetrics(p *otel.Provider) (*otel.BootstrapMetrics, error) {
	return otel.NewBootstrapMetrics(p.Meter())
}

// ProvideTracer provides the pipeline tracer
func ProvideTracer(p *otel.Provider) trace.Tracer {
	return p.Tracer()
}

// ProvideRegistryClient provides the registry client
func ProvideRegistryClient(cfg *config.Config, logger *slog.Logger) *registry.Client {
	return registry.NewClient(registry.Config{
		RegistryURL:   cfg.RegistryURL,
		AuthURL:       cfg.AuthURL,
		Service:       cfg.RegistryService,
		Namespace:     cfg.RegistryNamespace,
		VerifyDigests: cfg.VerifyDigests,
		HTTPClient:    &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:        logger,
	})
}

// ProvideJail provides the filesystem jail builder
func ProvideJail(logger *slog.Logger) *jail.Builder {
	return jail.New(logger)
}

// ProvideIsolator provides the PID namespace isolator
func ProvideIsolator(logger *slog.Logger) *namespace.Isolator {
	return namespace.New(logger)
}

// ProvideLauncher provides a launcher bound to the process stdio
func ProvideLauncher(cfg *config.Config, logger *slog.Logger) *launcher.Launcher {
	return launcher.New(cfg.CaptureOutput, logger)
}

// ProvideBootstrapper provides the pipeline
func ProvideBootstrapper(
	p *paths.Paths,
	j *jail.Builder,
	isolator *namespace.Isolator,
	l *launcher.Launcher,
	logger *slog.Logger,
	metrics *otel.BootstrapMetrics,
	tracer trace.Tracer,
) *bootstrap.Bootstrapper {
	return bootstrap.New(p, j, isolator, l, logger, metrics, tracer)
}
