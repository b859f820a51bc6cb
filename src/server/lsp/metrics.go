package lsp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"agents-ide/src/internal/errors"
)

const instrumentationName = "agents-ide/lsp"

// sessionMetrics holds the instruments of one session. Instruments are
// created from the session's MeterProvider so tests can read them back.
type sessionMetrics struct {
	requestLatency     metric.Float64Histogram
	requestTotal       metric.Int64Counter
	pendingRequests    metric.Int64UpDownCounter
	notificationsTotal metric.Int64Counter
	discardedResponses metric.Int64Counter
	serverSpawns       metric.Int64Counter
	serverRequests     metric.Int64Counter
}

func newSessionMetrics(provider metric.MeterProvider) (*sessionMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	m := &sessionMetrics{}
	var err error

	m.requestLatency, err = meter.Float64Histogram(
		"lsp_request_duration_seconds",
		metric.WithDescription("Duration of language server requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.requestTotal, err = meter.Int64Counter(
		"lsp_requests_total",
		metric.WithDescription("Language server requests by method and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.pendingRequests, err = meter.Int64UpDownCounter(
		"lsp_pending_requests",
		metric.WithDescription("Requests awaiting a response"),
	)
	if err != nil {
		return nil, err
	}

	m.notificationsTotal, err = meter.Int64Counter(
		"lsp_notifications_total",
		metric.WithDescription("Notifications received from the language server"),
	)
	if err != nil {
		return nil, err
	}

	m.discardedResponses, err = meter.Int64Counter(
		"lsp_discarded_responses_total",
		metric.WithDescription("Responses for unknown or expired request ids"),
	)
	if err != nil {
		return nil, err
	}

	m.serverSpawns, err = meter.Int64Counter(
		"lsp_server_spawns_total",
		metric.WithDescription("Language server process spawns"),
	)
	if err != nil {
		return nil, err
	}

	m.serverRequests, err = meter.Int64Counter(
		"lsp_server_requests_total",
		metric.WithDescription("Requests initiated by the language server"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *sessionMetrics) recordRequest(ctx context.Context, method string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", errors.Kind(err)),
	)
	m.requestLatency.Record(ctx, duration.Seconds(), attrs)
	m.requestTotal.Add(ctx, 1, attrs)
}

func (m *sessionMetrics) recordSpawn(ctx context.Context, success bool) {
	m.serverSpawns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func (m *sessionMetrics) recordNotification(ctx context.Context, method string) {
	m.notificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

func (m *sessionMetrics) recordServerRequest(ctx context.Context, method string) {
	m.serverRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// startRequestSpan creates a span for one request
func (s *Session) startRequestSpan(ctx context.Context, method string, timeout time.Duration) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "lsp.request "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("lsp.method", method),
			attribute.String("lsp.session_id", s.id),
			attribute.Int64("lsp.timeout_ms", timeout.Milliseconds()),
		),
	)
}

func endRequestSpan(span trace.Span, id int64, err error) {
	span.SetAttributes(
		attribute.Int64("lsp.request_id", id),
		attribute.String("lsp.outcome", errors.Kind(err)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
