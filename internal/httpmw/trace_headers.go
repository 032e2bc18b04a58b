package httpmw

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/httppipe/internal/pipeline"
)

// TraceResponseHeaders echoes the active trace and span ids on the response.
// Empty header names default to X-Trace-Id and X-Span-Id.
func TraceResponseHeaders(traceHeader, spanHeader string) pipeline.Middleware {
	if traceHeader == "" {
		traceHeader = "X-Trace-Id"
	}
	if spanHeader == "" {
		spanHeader = "X-Span-Id"
	}

	return func(c *pipeline.Context, next pipeline.Next) error {
		sc := trace.SpanContextFromContext(c.Context())
		if !sc.IsValid() {
			return next()
		}
		if err := c.OnStarting(func() error {
			c.Response.Header().Set(traceHeader, sc.TraceID().String())
			c.Response.Header().Set(spanHeader, sc.SpanID().String())
			return nil
		}); err != nil {
			return err
		}
		return next()
	}
}
