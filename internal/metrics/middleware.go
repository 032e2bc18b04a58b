package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/httppipe/internal/httpmw"
	"github.com/keithlinneman/httppipe/internal/pipeline"
	"github.com/keithlinneman/httppipe/internal/xerrors"
)

// routes nothing claimed share one label value
const unmatchedRoute = "unmatched"

// Middleware tracks exchanges in flight. Install it first so failures that
// escape every boundary still decrement the gauge.
func (m *ServerMetrics) Middleware() pipeline.Middleware {
	return func(c *pipeline.Context, next pipeline.Next) error {
		m.inflight.Inc()
		defer m.inflight.Dec()
		return next()
	}
}

// ObserveExchange is an httpmw.TimingObserver recording totals, latency,
// size and 5xx counts.
func (m *ServerMetrics) ObserveExchange(c *pipeline.Context, rec httpmw.TimingRecord) {
	route := httpmw.RouteFrom(c)
	if route == "" {
		route = unmatchedRoute
	}

	m.reqTotal.WithLabelValues(rec.Method, route, strconv.Itoa(rec.Status)).Inc()

	lat := rec.Elapsed.Seconds()
	obs := m.reqDur.WithLabelValues(rec.Method, route)
	if ex := traceExemplar(c.Context()); ex != nil {
		if eo, ok := obs.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(lat, ex)
		} else {
			obs.Observe(lat)
		}
	} else {
		obs.Observe(lat)
	}

	m.respBytes.WithLabelValues(rec.Method, route).Observe(float64(c.Response.Len()))

	if rec.Status >= http.StatusInternalServerError {
		m.errors.WithLabelValues(rec.Method, route).Inc()
	}
}

// ObserveFailure is an ExceptionBoundary hook counting absorbed failures as
// "panic", "canceled" or "error".
func (m *ServerMetrics) ObserveFailure(_ *pipeline.Context, err error) {
	m.failuresTotal.WithLabelValues(failureKind(err)).Inc()
}

// ObserveKeyRejection is a KeyGuard hook.
func (m *ServerMetrics) ObserveKeyRejection(_ *pipeline.Context, reason string) {
	m.keyRejectedTotal.WithLabelValues(reason).Inc()
}

func failureKind(err error) string {
	var pe *xerrors.PanicError
	switch {
	case errors.As(err, &pe):
		return "panic"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// traceExemplar links a latency sample to its trace when the span is sampled.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
