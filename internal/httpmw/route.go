package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/httppipe/internal/pipeline"
)

// RouteKey is the Context item holding the matched route pattern.
const RouteKey = "Route"

// SetRoute records the route pattern that served the exchange.
func SetRoute(c *pipeline.Context, pattern string) {
	c.Set(RouteKey, pattern)
}

// RouteFrom returns the recorded route pattern, or "" when nothing matched.
func RouteFrom(c *pipeline.Context) string {
	return c.GetString(RouteKey)
}

// AnnotateRoute is chi router middleware. Once routing is done it copies
// chi's route pattern into the exchange and names the active span after it.
func AnnotateRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		ctx := r.Context()
		pattern := ""
		if rc := chi.RouteContext(ctx); rc != nil {
			pattern = rc.RoutePattern()
		}
		if pattern == "" {
			return
		}
		if c, ok := pipeline.FromRequest(r); ok {
			SetRoute(c, pattern)
		}
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.String("http.route", pattern))
			span.SetName(r.Method + " " + pattern)
		}
	})
}
