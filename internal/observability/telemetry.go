// Package observability подключает трассировку OpenTelemetry.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/voxel-server/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Options — параметры экспорта трасс
type Options struct {
	ServiceName string
	Version     string
	// Endpoint в виде host:port; пусто — значение из OTEL_EXPORTER_OTLP_ENDPOINT или localhost:4318
	Endpoint string
	Insecure bool
	// SampleRatio — доля корневых трасс, 0..1
	SampleRatio float64
}

// ShutdownFunc сбрасывает буфер экспортера и останавливает провайдер
type ShutdownFunc func(context.Context) error

// newSampler уважает решение родителя, а корневые трассы отбирает по доле
func newSampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

// InitTelemetry ставит глобальный TracerProvider с OTLP/HTTP экспортером
func InitTelemetry(ctx context.Context, opts Options) (ShutdownFunc, error) {
	var expOpts []otlptracehttp.Option
	if opts.Endpoint != "" {
		expOpts = append(expOpts, otlptracehttp.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		expOpts = append(expOpts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, fmt.Errorf("OTLP экспортер: %w", err)
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(opts.ServiceName))}
	if opts.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(opts.Version)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("ресурс трассировки: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(opts.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "по умолчанию"
	}
	logging.Info("📡 Трассировка включена: service=%s endpoint=%s sample=%.2f", opts.ServiceName, endpoint, opts.SampleRatio)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}
