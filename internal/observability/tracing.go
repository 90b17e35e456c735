package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/dishlink-simulator/internal/logging"
)

// TracerName is the instrumentation scope used for session spans.
const TracerName = "github.com/signalsfoundry/dishlink-simulator"

// Tracer returns the session tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(TracerName) }

// Span exporters understood by InitTracing.
const (
	ExporterStdout = "stdout"
	ExporterFile   = "file"
	ExporterOTLP   = "otlp"
)

// TracingConfig governs how session tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string
	// Endpoint is the OTLP collector address; Path is the span file.
	Endpoint    string
	Path        string
	SampleRatio float64
}

// DefaultTracingConfig is tracing off, exporting to stdout when enabled.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "dishlink-simulator",
		Exporter:    ExporterStdout,
		SampleRatio: 1,
	}
}

// TracingConfigFromEnv is DefaultTracingConfig with environment overrides.
func TracingConfigFromEnv() TracingConfig {
	return DefaultTracingConfig().WithEnv()
}

// WithEnv overlays the DISHLINK_TRACING_* and DISHLINK_OTLP_ENDPOINT
// variables that are set. Out-of-range sample ratios are ignored.
func (c TracingConfig) WithEnv() TracingConfig {
	if v, ok := os.LookupEnv("DISHLINK_TRACING_ENABLED"); ok && v != "" {
		c.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("DISHLINK_TRACING_EXPORTER"); v != "" {
		c.Exporter = v
	}
	if v := os.Getenv("DISHLINK_TRACING_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("DISHLINK_TRACING_FILE"); v != "" {
		c.Path = v
	}
	if v := os.Getenv("DISHLINK_OTLP_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("DISHLINK_TRACING_SAMPLE_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0 && ratio <= 1 {
			c.SampleRatio = ratio
		}
	}
	c.Exporter = strings.ToLower(strings.TrimSpace(c.Exporter))
	return c
}

// InitTracing installs a global tracer provider for cfg and returns the
// function that flushes and releases it. Disabled tracing installs a noop
// provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, closer, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "dishlink"),
	))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create resource: %w", err), closer.Close())
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), closer.Close())
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, io.Closer, error) {
	switch cfg.Exporter {
	case ExporterStdout, "":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithoutTimestamps())
		return exp, nopCloser{}, err
	case ExporterFile:
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("file span exporter needs a path")
		}
		f, err := os.Create(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open span file: %w", err)
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
		if err != nil {
			return nil, nil, errors.Join(err, f.Close())
		}
		return exp, f, nil
	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		exp, err := otlptrace.New(ctx, client)
		return exp, nopCloser{}, err
	default:
		return nil, nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes tracing with a five second budget. Failures
// are logged, not returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
