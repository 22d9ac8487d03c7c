//go:build wireinject

package main

import (
	"log/slog"

	"github.com/google/wire"
	"github.com/onkernel/jailrun/cmd/jailrun/config"
	"github.com/onkernel/jailrun/lib/bootstrap"
	"github.com/onkernel/jailrun/lib/otel"
	"github.com/onkernel/jailrun/lib/paths"
	"github.com/onkernel/jailrun/lib/providers"
	"github.com/onkernel/jailrun/lib/registry"
)

// application struct to hold initialized components
type application struct {
	Config       *config.Config
	Logger       *slog.Logger
	Paths        *paths.Paths
	Registry     *registry.Client
	Metrics      *otel.BootstrapMetrics
	Bootstrapper *bootstrap.Bootstrapper
}

// initializeApp is the injector function
func initializeApp() (*application, func(), error) {
	panic(wire.Build(
		providers.ProvideConfig,
		providers.ProvideTelemetry,
		providers.ProvideLogger,
		providers.ProvidePaths,
		providers.ProvideMetrics,
		providers.ProvideTracer,
		providers.ProvideRegistryClient,
		providers.ProvideJail,
		providers.ProvideIsolator,
		providers.ProvideLauncher,
		providers.ProvideBootstrapper,
		wire.Struct(new(application), "*"),
	))
}
