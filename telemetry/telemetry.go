//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry boots the OTLP trace and metric pipeline and installs
// the process-global OpenTelemetry providers the engine and servers record
// through. Without Start the globals stay no-op, so instrumented code runs
// unchanged in tests and in deployments without a collector.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Default service identity reported to the collector. Options and the
// standard OTEL_* environment variables override it.
const (
	ServiceName      = "trpc-flow-go"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-flow"
)

// OTLP exporter protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// shutdownTimeout bounds the final flush on cleanup.
const shutdownTimeout = 5 * time.Second

// grpcDial is a variable so tests can inject a custom dialer.
var grpcDial = grpc.NewClient

// Option configures the telemetry bootstrap.
type Option func(*options)

type options struct {
	endpoint           string
	protocol           string
	serviceName        string
	serviceVersion     string
	serviceNamespace   string
	resourceAttributes []attribute.KeyValue
}

// WithEndpoint sets the collector endpoint (host and port, no scheme) for
// both signals. When unset, the OTEL_EXPORTER_OTLP_{TRACES,METRICS}_ENDPOINT
// and OTEL_EXPORTER_OTLP_ENDPOINT variables apply, then the local collector
// default for the protocol.
func WithEndpoint(endpoint string) Option {
	return func(opts *options) {
		opts.endpoint = endpoint
	}
}

// WithProtocol selects the exporter protocol, "grpc" (default) or "http".
func WithProtocol(protocol string) Option {
	return func(opts *options) {
		if protocol != "" {
			opts.protocol = protocol
		}
	}
}

// WithServiceName overrides the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(opts *options) {
		if name != "" {
			opts.serviceName = name
		}
	}
}

// WithServiceVersion overrides the service.version resource attribute.
func WithServiceVersion(version string) Option {
	return func(opts *options) {
		if version != "" {
			opts.serviceVersion = version
		}
	}
}

// WithServiceNamespace overrides the service.namespace resource attribute.
func WithServiceNamespace(namespace string) Option {
	return func(opts *options) {
		if namespace != "" {
			opts.serviceNamespace = namespace
		}
	}
}

// WithResourceAttributes appends custom resource attributes.
func WithResourceAttributes(attrs ...attribute.KeyValue) Option {
	return func(opts *options) {
		opts.resourceAttributes = append(opts.resourceAttributes, attrs...)
	}
}

// Start boots OTLP trace and metric exporters over the configured protocol
// and installs them as the global tracer and meter providers. The returned
// cleanup flushes both pipelines and closes the collector connections.
func Start(ctx context.Context, opts ...Option) (func() error, error) {
	options := &options{
		serviceName:      ServiceName,
		serviceVersion:   ServiceVersion,
		serviceNamespace: ServiceNamespace,
		protocol:         ProtocolGRPC,
	}
	for _, opt := range opts {
		opt(options)
	}

	res, err := buildResource(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	tp, closeTraces, err := newTracerProvider(ctx, res, options)
	if err != nil {
		return nil, err
	}
	mp, closeMetrics, err := newMeterProvider(ctx, res, options)
	if err != nil {
		_ = tp.Shutdown(ctx)
		closeTraces()
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	cleanup := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
		closeTraces()
		closeMetrics()
		return errors.Join(errs...)
	}
	return cleanup, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource,
	options *options) (*sdktrace.TracerProvider, func(), error) {
	endpoint := options.endpoint
	if endpoint == "" {
		endpoint = tracesEndpoint(options.protocol)
	}
	if options.protocol == ProtocolHTTP {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("create HTTP trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		return tp, func() {}, nil
	}

	conn, err := newGRPCConn(endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace collector connection: %w", err)
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("create gRPC trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, func() { _ = conn.Close() }, nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource,
	options *options) (*sdkmetric.MeterProvider, func(), error) {
	endpoint := options.endpoint
	if endpoint == "" {
		endpoint = metricsEndpoint(options.protocol)
	}
	if options.protocol == ProtocolHTTP {
		exporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("create HTTP metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		return mp, func() {}, nil
	}

	conn, err := newGRPCConn(endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric collector connection: %w", err)
	}
	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("create gRPC metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	return mp, func() { _ = conn.Close() }, nil
}

// tracesEndpoint resolves the trace collector endpoint: the signal-specific
// variable wins over the generic one, then the local default applies.
func tracesEndpoint(protocol string) string {
	return endpointFromEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", protocol)
}

// metricsEndpoint resolves the metric collector endpoint the same way.
func metricsEndpoint(protocol string) string {
	return endpointFromEnv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", protocol)
}

func endpointFromEnv(signalVar, protocol string) string {
	if endpoint := os.Getenv(signalVar); endpoint != "" {
		return endpoint
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if protocol == ProtocolHTTP {
		// otlp http exporters append /v1/<signal> themselves.
		return "localhost:4318"
	}
	return "localhost:4317"
}

// newGRPCConn opens the collector connection. Transport is insecure; front
// the collector with TLS termination in production.
func newGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	conn, err := grpcDial(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to collector: %w", err)
	}
	return conn, nil
}

func buildResource(ctx context.Context, options *options) (*resource.Resource, error) {
	resourceOpts := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceNamespace(options.serviceNamespace),
			semconv.ServiceName(options.serviceName),
			semconv.ServiceVersion(options.serviceVersion),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	}
	if len(options.resourceAttributes) > 0 {
		resourceOpts = append(resourceOpts, resource.WithAttributes(options.resourceAttributes...))
	}
	return resource.New(ctx, resourceOpts...)
}
