package httpmw

import (
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

// WithLogger stores a request-scoped logger in the exchange context. It
// picks up the correlation id and client address when those middlewares
// ran first, and mirrors the same fields onto the active span.
func WithLogger(base log.Logger) pipeline.Middleware {
	if base == nil {
		base = log.Nop()
	}

	return func(c *pipeline.Context, next pipeline.Next) error {
		r := c.Request
		ctx := c.Context()

		peerAddr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(peerAddr); err == nil {
			peerAddr = host
		}
		clientAddr := ClientIPFrom(c)
		if clientAddr == "" {
			clientAddr = peerAddr
		}
		corrID := CorrelationIDFrom(c)
		scheme := schemeFromRequest(r)

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(
				attribute.String("correlation_id", corrID),
				attribute.String("client.address", clientAddr),
				attribute.String("network.peer.address", peerAddr),
				attribute.String("server.address", r.Host),
				attribute.String("url.scheme", scheme),
			)
		}

		L := base.With(
			"correlation_id", corrID,
			"client.address", clientAddr,
			"network.peer.address", peerAddr,
			"server.address", r.Host,
			"http.request.method", r.Method,
			"url.path", r.URL.Path,
			"url.scheme", scheme,
		)
		c.SetContext(log.WithContext(ctx, L))
		return next()
	}
}

// RequestLog logs each request on the way in and its status on the way out.
func RequestLog() pipeline.Middleware {
	return func(c *pipeline.Context, next pipeline.Next) error {
		ctx := c.Context()
		L := log.FromContext(ctx)
		L.Info(ctx, "processing request")

		if err := next(); err != nil {
			return err
		}

		L.Info(ctx, "request processed", "http.response.status_code", c.Response.EffectiveStatus())
		return nil
	}
}

// schemeFromRequest prefers X-Forwarded-Proto (already stripped by ClientIP
// for untrusted peers), then the URL, then TLS. Anything but http or https
// is ignored.
func schemeFromRequest(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if s := normalizeScheme(first); s != "" {
			return s
		}
	}
	if r.URL != nil {
		if s := normalizeScheme(r.URL.Scheme); s != "" {
			return s
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func normalizeScheme(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http":
		return "http"
	case "https":
		return "https"
	}
	return ""
}
