package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "territory-service"

// Instruments are the counters and histograms recorded by the HTTP server and the membership service.
type Instruments struct {
	authzDecisions metric.Int64Counter
	httpRequests   metric.Int64Counter
	httpDuration   metric.Float64Histogram
}

// NewInstruments registers the service instruments on mp.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(meterName)
	decisions, err := meter.Int64Counter("authz.decisions",
		metric.WithDescription("Authorization engine decisions by operation and outcome."))
	if err != nil {
		return nil, err
	}
	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("HTTP requests by route and status code."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http.server.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("HTTP request latency."))
	if err != nil {
		return nil, err
	}
	return &Instruments{authzDecisions: decisions, httpRequests: requests, httpDuration: duration}, nil
}

// RecordDecision counts one authorization decision. Safe on a nil receiver.
func (i *Instruments) RecordDecision(ctx context.Context, operation, outcome, reason string) {
	if i == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	i.authzDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRequest counts one HTTP request and its latency. Safe on a nil receiver.
func (i *Instruments) RecordRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.response.status_code", status),
	)
	i.httpRequests.Add(ctx, 1, attrs)
	i.httpDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
