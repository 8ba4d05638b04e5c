// Package observe holds the OpenTelemetry instruments for the call-center
// server. A Prometheus exporter bridge is installed by [InitProvider] so the
// instruments can be scraped from /metrics. Tests should build their own
// [Metrics] with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/room4-2/callpulse"

// Metrics holds all instruments. Safe for concurrent use.
type Metrics struct {
	// FramesReceived counts inbound frames, attribute "type"
	FramesReceived metric.Int64Counter

	// FramesSent counts frames queued to clients, attribute "type"
	FramesSent metric.Int64Counter

	// FramesDropped counts frames lost to a full client queue
	FramesDropped metric.Int64Counter

	// ActiveClients tracks connected agent and customer sessions, attribute "role"
	ActiveClients metric.Int64UpDownCounter

	// AnalysisDuration tracks analyzer latency, attributes "trigger" and "status"
	AnalysisDuration metric.Float64Histogram
}

var analysisBuckets = []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60}

// NewMetrics creates the instruments on the given provider
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesReceived, err = m.Int64Counter("callpulse.frames.received",
		metric.WithDescription("Inbound websocket frames by type."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("callpulse.frames.sent",
		metric.WithDescription("Outbound websocket frames by type."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("callpulse.frames.dropped",
		metric.WithDescription("Outbound frames dropped because a client queue was full."),
	); err != nil {
		return nil, err
	}
	if met.ActiveClients, err = m.Int64UpDownCounter("callpulse.clients.active",
		metric.WithDescription("Currently connected clients by role."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("callpulse.analysis.duration",
		metric.WithDescription("Latency of transcript analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(analysisBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns instruments on the global meter provider.
// It panics if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

func (m *Metrics) RecordFrameReceived(ctx context.Context, frameType string) {
	m.FramesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("type", frameType)))
}

func (m *Metrics) RecordFrameSent(ctx context.Context, frameType string) {
	m.FramesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("type", frameType)))
}

func (m *Metrics) RecordFrameDropped(ctx context.Context) {
	m.FramesDropped.Add(ctx, 1)
}

// ClientConnected adjusts the active client gauge by delta
func (m *Metrics) ClientConnected(ctx context.Context, role string, delta int64) {
	m.ActiveClients.Add(ctx, delta, metric.WithAttributes(attribute.String("role", role)))
}

// RecordAnalysis records one analyzer call
func (m *Metrics) RecordAnalysis(ctx context.Context, trigger string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AnalysisDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	))
}
