// Package observe provides the gateway's OpenTelemetry instruments and the
// provider setup that bridges them to a Prometheus /metrics endpoint.
//
// Every method on [*Metrics] is nil-safe so components can be constructed
// without observability in tests.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// instrumentationName is the scope name used for all gateway instruments.
const instrumentationName = "github.com/2389/membank"

// Metrics holds the instruments recorded by the gateway.
type Metrics struct {
	// ToolCalls counts invocations by tool and status ("ok" / "error").
	ToolCalls metric.Int64Counter

	// ToolDuration tracks handler latency in seconds.
	ToolDuration metric.Float64Histogram

	// ActiveSessions tracks open push-stream sessions.
	ActiveSessions metric.Int64UpDownCounter

	// Deliveries counts frames written to sessions by event name.
	Deliveries metric.Int64Counter

	// PrunedSessions counts sessions removed after a failed write.
	PrunedSessions metric.Int64Counter
}

var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates the instruments using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(instrumentationName)
	var err error
	met := &Metrics{}

	if met.ToolCalls, err = m.Int64Counter("membank.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("membank.tool.duration",
		metric.WithDescription("Latency of tool handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("membank.sessions.active",
		metric.WithDescription("Open push-stream sessions."),
	); err != nil {
		return nil, err
	}
	if met.Deliveries, err = m.Int64Counter("membank.broadcast.deliveries",
		metric.WithDescription("Frames delivered to sessions by event name."),
	); err != nil {
		return nil, err
	}
	if met.PrunedSessions, err = m.Int64Counter("membank.sessions.pruned",
		metric.WithDescription("Sessions removed after a failed write."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// NewNoopMetrics returns instruments that record nothing.
func NewNoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		// The noop provider never fails.
		panic(err)
	}
	return m
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	m.ToolDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
	))
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// RecordBroadcast records the result of one fan-out.
func (m *Metrics) RecordBroadcast(ctx context.Context, event string, delivered, pruned int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.Deliveries.Add(ctx, int64(delivered), metric.WithAttributes(attribute.String("event", event)))
	}
	if pruned > 0 {
		m.PrunedSessions.Add(ctx, int64(pruned))
	}
}
