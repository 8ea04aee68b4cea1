// Package telemetry provides OpenTelemetry span instrumentation with
// configuration loaded from standard environment variables. It sets up a
// global TracerProvider that the scheduler engine (internal/scheduler) uses
// via otel.Tracer(...).
//
// Environment Variables:
//
//	CUMULUS_OTEL_ENABLED                 - Enable/disable span recording (default: false)
//	CUMULUS_OTEL_SERVICE_NAME            - Service name (default: cumulus-scheduler)
//	CUMULUS_OTEL_SERVICE_VERSION         - Service version (default: unknown)
//	CUMULUS_OTEL_SAMPLER                 - Sampler type (default: always_on)
//	CUMULUS_OTEL_SAMPLER_ARG             - Sampler argument (e.g., ratio)
//	CUMULUS_OTEL_RESOURCE_ATTRIBUTES     - Additional resource attributes
//
// Usage:
//
//	func main() {
//	    ctx := context.Background()
//	    shutdown, err := telemetry.Init(ctx, nil)
//	    if err != nil {
//	        log.Printf("failed to initialize telemetry: %v", err)
//	    }
//	    defer shutdown(ctx)
//
//	    ctx, span := otel.Tracer("cumulus").Start(ctx, "operation")
//	    defer span.End()
//	}
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fora-lang/cumulus/pkg/utils"
)

var (
	globalConfig *Config
	configOnce   sync.Once
)

// ShutdownFunc is a function that shuts down the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error {
	return nil
}

// Init initializes OpenTelemetry and sets up the global TracerProvider.
// If CUMULUS_OTEL_ENABLED is not "true", it returns a no-op shutdown
// function and the default no-op provider remains installed.
//
// Safe to call multiple times: the environment is read only on the first
// call, but every call with span recording enabled builds and installs a
// new TracerProvider.
func Init(ctx context.Context, logger utils.Logger) (ShutdownFunc, error) {
	cfg := loadConfig()

	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	exporter := newLoggingExporter(logger)
	sampler := createSampler(cfg)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}, nil
}

// Enabled returns whether span recording is enabled.
func Enabled() bool {
	return loadConfig().Enabled
}

// GetConfig returns the current telemetry configuration.
func GetConfig() *Config {
	return loadConfig()
}

func loadConfig() *Config {
	configOnce.Do(func() {
		globalConfig = LoadFromEnv()
	})
	return globalConfig
}
