package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/steveyegge/agentotel/internal/profile"
)

// Exporter kinds.
const (
	ExporterOTLP    = "otlp"
	ExporterConsole = "console"
	ExporterNone    = "none"
)

// Options configure Init.
type Options struct {
	Profile    profile.Profile
	AppVersion string

	Exporter string // otlp, console or none

	// Endpoint is the OTLP/HTTP base URL; /v1/metrics and /v1/logs are
	// appended unless the signal-specific endpoint is set. Empty defers to
	// the exporters' own OTEL_EXPORTER_OTLP_* environment handling.
	Endpoint        string
	MetricsEndpoint string
	LogsEndpoint    string
	Headers         map[string]string

	// DeltaTemporality selects delta instead of cumulative counters.
	DeltaTemporality bool

	MetricInterval time.Duration
	LogInterval    time.Duration

	// Console is where the console exporter writes. Defaults to stdout.
	Console io.Writer
}

// Provider owns the SDK providers and the sinks built on them.
type Provider struct {
	Metrics MetricSink
	Logs    LogSink

	mp *sdkmetric.MeterProvider
	lp *sdklog.LoggerProvider

	shutdownOnce sync.Once
	shutdownErr  error
}

// Init builds the meter and logger providers for opts, installs them as the
// OTel globals and returns a Provider. Exporter "none" yields no-op sinks.
func Init(ctx context.Context, opts Options) (*Provider, error) {
	if opts.Exporter == ExporterNone {
		return &Provider{
			Metrics: NewCounters(metricnoop.NewMeterProvider(), opts.Profile),
			Logs:    NewEventLogger(lognoop.NewLoggerProvider(), opts.Profile),
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(opts.Profile.ServiceName),
			semconv.ServiceVersion(opts.AppVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	metricExp, logExp, err := newExporters(ctx, opts)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(orDefault(opts.MetricInterval, 60*time.Second)))),
	)
	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp,
			sdklog.WithExportInterval(orDefault(opts.LogInterval, 5*time.Second)))),
	)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	return &Provider{
		Metrics: NewCounters(mp, opts.Profile),
		Logs:    NewEventLogger(lp, opts.Profile),
		mp:      mp,
		lp:      lp,
	}, nil
}

func newExporters(ctx context.Context, opts Options) (sdkmetric.Exporter, sdklog.Exporter, error) {
	switch opts.Exporter {
	case ExporterConsole:
		w := opts.Console
		if w == nil {
			w = os.Stdout
		}
		me, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("creating console metric exporter: %w", err)
		}
		le, err := stdoutlog.New(stdoutlog.WithWriter(w), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("creating console log exporter: %w", err)
		}
		return me, le, nil

	case ExporterOTLP, "":
		mopts := []otlpmetrichttp.Option{}
		if url := signalURL(opts.MetricsEndpoint, opts.Endpoint, "/v1/metrics"); url != "" {
			mopts = append(mopts, otlpmetrichttp.WithEndpointURL(url))
		}
		if len(opts.Headers) > 0 {
			mopts = append(mopts, otlpmetrichttp.WithHeaders(opts.Headers))
		}
		if opts.DeltaTemporality {
			mopts = append(mopts, otlpmetrichttp.WithTemporalitySelector(deltaTemporality))
		}
		me, err := otlpmetrichttp.New(ctx, mopts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
		}

		lopts := []otlploghttp.Option{}
		if url := signalURL(opts.LogsEndpoint, opts.Endpoint, "/v1/logs"); url != "" {
			lopts = append(lopts, otlploghttp.WithEndpointURL(url))
		}
		if len(opts.Headers) > 0 {
			lopts = append(lopts, otlploghttp.WithHeaders(opts.Headers))
		}
		le, err := otlploghttp.New(ctx, lopts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating OTLP log exporter: %w", err)
		}
		return me, le, nil

	default:
		return nil, nil, fmt.Errorf("unknown exporter %q", opts.Exporter)
	}
}

func deltaTemporality(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.DeltaTemporality
}

// signalURL picks the signal-specific endpoint, else base+path.
func signalURL(specific, base, path string) string {
	if specific != "" {
		return specific
	}
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + path
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Shutdown flushes then closes both providers. Only the first call does any
// work; later calls return the first result.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		var errs []error
		if p.mp != nil {
			errs = append(errs, p.mp.ForceFlush(ctx), p.mp.Shutdown(ctx))
		}
		if p.lp != nil {
			errs = append(errs, p.lp.ForceFlush(ctx), p.lp.Shutdown(ctx))
		}
		p.shutdownErr = errors.Join(errs...)
	})
	return p.shutdownErr
}
