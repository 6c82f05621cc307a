// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing wires a local-only OpenTelemetry tracer provider: spans
// are recorded to an in-process/stdout exporter, never shipped over the
// network. Cross-host distribution is an explicit Non-goal, so there is no
// OTLP exporter here — only the local span bookkeeping that lets a single
// kernel process correlate one task's claim → execute → finalize lifecycle.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the process-wide tracer provider and its shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds a tracer provider that writes spans to w (os.Stdout in
// production, io.Discard in tests that don't care about trace output).
func NewProvider(serviceName string, w io.Writer) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating stdout span exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// StartTaskSpan opens a span covering one task's executor run, tagged with
// the task id and role. Callers end it with the returned func, passing the
// resulting outcome status (or "" on error) and any error.
func StartTaskSpan(ctx context.Context, taskID, role string) (context.Context, func(outcomeStatus string, err error)) {
	tracer := otel.Tracer("orchkit/kernel")
	ctx, span := tracer.Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.role", role),
		),
	)
	return ctx, func(outcomeStatus string, err error) {
		if outcomeStatus != "" {
			span.SetAttributes(attribute.String("task.outcome", outcomeStatus))
		}
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
