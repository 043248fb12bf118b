// Package observability wires OpenTelemetry tracing and metrics exported over OTLP/HTTP.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/altiplano/parasearch/internal/config"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	metricExportInterval   = 30 * time.Second
)

// ShutdownFunc flushes and stops the providers installed by Init.
type ShutdownFunc func(context.Context) error

// Init installs global tracer and meter providers and the W3C propagator.
// When telemetry is disabled the providers never sample and export nothing.
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		mp := sdkmetric.NewMeterProvider()
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		return newShutdownFunc(tp, mp, logger), nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource: %w", err)
	}

	traceURL, err := normalizeOTLPHTTPPath(cfg.Endpoint, "/v1/traces")
	if err != nil {
		return nil, fmt.Errorf("observability: invalid OTLP endpoint: %w", err)
	}
	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(traceURL)}
	if strings.HasPrefix(traceURL, "http://") {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to create trace exporter: %w", err)
	}

	metricURL, err := normalizeOTLPHTTPPath(cfg.Endpoint, "/v1/metrics")
	if err != nil {
		return nil, fmt.Errorf("observability: invalid OTLP endpoint: %w", err)
	}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(metricURL)}
	if strings.HasPrefix(metricURL, "http://") {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatioOrDefault()))),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricExportInterval))),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	logger.Debug("telemetry enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_ratio", cfg.SampleRatioOrDefault()))
	return newShutdownFunc(tp, mp, logger), nil
}

func newShutdownFunc(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider, logger *zap.Logger) ShutdownFunc {
	return func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
			defer cancel()
		}
		var errs []error
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("failed to shutdown tracer provider", zap.Error(err))
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			logger.Warn("failed to shutdown meter provider", zap.Error(err))
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
		return errors.Join(errs...)
	}
}

// normalizeOTLPHTTPPath appends the signal suffix (e.g. /v1/traces) to endpoint unless
// it is already present. An endpoint without a scheme is treated as plain http.
func normalizeOTLPHTTPPath(endpoint, suffix string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("endpoint must include host")
	}
	suffix = "/" + strings.Trim(suffix, "/")
	trimmed := strings.TrimSuffix(parsed.Path, "/")
	switch {
	case trimmed == "":
		parsed.Path = suffix
	case strings.HasSuffix(trimmed, suffix):
		parsed.Path = trimmed
	default:
		parsed.Path = trimmed + suffix
	}
	return parsed.String(), nil
}
