// Package bootstrap runs the full jail pipeline for one command: populate a
// staging root, place the command in it, isolate, enter the root and launch.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onkernel/jailrun/lib/jail"
	"github.com/onkernel/jailrun/lib/launcher"
	"github.com/onkernel/jailrun/lib/otel"
	"github.com/onkernel/jailrun/lib/paths"
	"github.com/onkernel/jailrun/lib/rootfs"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Jail prepares and enters a staging root.
type Jail interface {
	Prepare(root *rootfs.Staging, hostPath, placement string) error
	Commit(root *rootfs.Staging) error
}

// Isolator moves future children into a new PID namespace.
type Isolator interface {
	Isolate() error
}

// Runner starts the jailed command and waits for it.
type Runner interface {
	Run(path string, args []string) error
}

// Bootstrapper wires the pipeline stages together. Runs are strictly
// sequential and a Bootstrapper is meant for a single run per process, since
// a successful run changes the process root.
type Bootstrapper struct {
	paths    *paths.Paths
	jail     Jail
	isolator Isolator
	runner   Runner
	logger   *slog.Logger
	metrics  *otel.BootstrapMetrics
	tracer   trace.Tracer

	resolve func(command string) (string, error)
}

// New creates a Bootstrapper. metrics and tracer may be nil.
func New(p *paths.Paths, j Jail, isolator Isolator, runner Runner, logger *slog.Logger, metrics *otel.BootstrapMetrics, tracer trace.Tracer) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		paths:    p,
		jail:     j,
		isolator: isolator,
		runner:   runner,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		resolve:  jail.ResolveCommand,
	}
}

// Run executes command with args inside a root populated by source.
//
// The first failing stage aborts the run and its error is returned as is. A
// command that exits non-zero surfaces as *launcher.ExitError.
func (b *Bootstrapper) Run(ctx context.Context, source rootfs.Source, command string, args []string) (err error) {
	log := b.logger.With("source", source.Kind(), "command", command)

	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, "Bootstrap")
		defer func() { endSpan(span, err) }()
	}
	defer func() { b.metrics.RecordRun(ctx, source.Kind(), outcome(err)) }()

	// 1. Resolve the command on the host before anything touches disk
	hostPath, err := b.resolve(command)
	if err != nil {
		log.ErrorContext(ctx, "failed to resolve command", "error", err)
		return err
	}

	// 2. Fresh staging root, removed on every exit path until committed
	root, err := rootfs.Prepare(b.paths.Staging(), log)
	if err != nil {
		log.ErrorContext(ctx, "failed to prepare staging root", "error", err)
		return err
	}
	defer func() {
		if err := root.Cleanup(); err != nil {
			log.WarnContext(ctx, "failed to clean up staging root", "error", err)
		}
	}()

	// 3. Populate from the source
	if err := b.stage(ctx, "Populate", func(ctx context.Context) error {
		return source.Populate(ctx, root)
	}); err != nil {
		log.ErrorContext(ctx, "failed to populate staging root", "error", err)
		return err
	}

	// 4. dev/null and the command binary
	placement := source.Placement(hostPath)
	if err := b.stage(ctx, "PrepareJail", func(context.Context) error {
		return b.jail.Prepare(root, hostPath, placement)
	}); err != nil {
		log.ErrorContext(ctx, "failed to prepare jail", "error", err)
		return err
	}

	// 5. New PID namespace for the child
	if err := b.stage(ctx, "Isolate", func(context.Context) error {
		return b.isolator.Isolate()
	}); err != nil {
		log.ErrorContext(ctx, "failed to isolate", "error", err)
		return err
	}

	// 6. Enter the root; no host paths are valid past this point
	if err := b.stage(ctx, "CommitJail", func(context.Context) error {
		return b.jail.Commit(root)
	}); err != nil {
		log.ErrorContext(ctx, "failed to enter jail", "error", err)
		return err
	}

	// 7. Launch
	log.DebugContext(ctx, "launching", "placement", placement, "args", args)
	return b.stage(ctx, "Launch", func(context.Context) error {
		return b.runner.Run(placement, args)
	})
}

func (b *Bootstrapper) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, name)
		defer func() { endSpan(span, err) }()
	}
	return fn(ctx)
}

func endSpan(span trace.Span, err error) {
	var exitErr *launcher.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func outcome(err error) string {
	var exitErr *launcher.ExitError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &exitErr):
		return "exit_nonzero"
	default:
		return "failed"
	}
}
