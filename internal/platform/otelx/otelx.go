// Package otelx wires span instrumentation around contractdesk's I/O
// boundaries: the scanner subprocess, the solver subprocess, the LLM
// cross-check call, and the persist write-ahead log. Grounded on the
// teacher's internal/observability/otel.go (same tracer-provider-plus-OTLP-
// or-stdout-exporter shape, same OTEL_ENABLED/OTEL_SAMPLER_RATIO/
// OTEL_EXPORTER_OTLP_* env surface), trimmed of the gin/grpc HTTP
// middleware this system has no use for.
package otelx

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// Config names the service identity attached to every span.
type Config struct {
	ServiceName string
	Environment string
	Version     string
}

var (
	initOnce sync.Once
	shutdown func(context.Context) error
)

// Init installs a global TracerProvider when OTEL_ENABLED is set, otherwise
// leaves the no-op provider otel ships with by default. Safe to call
// multiple times; only the first call takes effect. The returned shutdown
// func flushes and stops the provider and should be deferred by the caller.
func Init(ctx context.Context, log *logger.Logger, cfg Config) func(context.Context) error {
	initOnce.Do(func() {
		if !enabled() {
			shutdown = func(context.Context) error { return nil }
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "contractdesk"
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceNameKey.String(name),
				semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
				attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
			),
		)
		if err != nil && log != nil {
			log.Warnw("otel resource init failed, continuing", "error", err)
		}

		exporter, err := buildExporter(ctx, log)
		if err != nil && log != nil {
			log.Warnw("otel exporter init failed, continuing without export", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
			sdktrace.WithResource(res),
		}
		if exporter != nil {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdown = tp.Shutdown
		if log != nil {
			log.Infow("otel tracing initialized", "service", name, "endpoint", endpoint())
		}
	})
	if shutdown == nil {
		return func(context.Context) error { return nil }
	}
	return shutdown
}

// StartIOSpan starts a span named boundary.operation, the convention used
// at each of the four I/O boundaries (scanner, solver, llm, persist). The
// returned end func records err (if non-nil) as the span's status before
// ending it; call it via defer.
func StartIOSpan(ctx context.Context, boundary, operation string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	tracer := otel.Tracer("contractdesk/" + boundary)
	spanCtx, span := tracer.Start(ctx, boundary+"."+operation, trace.WithAttributes(attrs...))
	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func enabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func sampleRatio() float64 {
	v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO"))
	if v == "" {
		return 1.0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 1.0
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func endpoint() string {
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func insecure() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func headers() map[string]string {
	raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			continue
		}
		out[kv[0]] = kv[1]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func buildExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	if ep := endpoint(); ep != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(ep)}
		if insecure() {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if h := headers(); h != nil {
			opts = append(opts, otlptracehttp.WithHeaders(h))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	if log != nil {
		log.Infow("otel exporting to stdout, no OTEL_EXPORTER_OTLP_ENDPOINT configured")
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}
