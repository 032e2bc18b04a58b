package apphttp

import (
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/httppipe/internal/httpmw"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

// New builds the application pipeline. Order matters: the boundary sits
// inside timing and metrics so error responses are still measured, and
// everything after CorrelationID can read the id from the items.
func New(opts *Options) *pipeline.Pipeline {
	o := opts.withDefaults()

	var (
		observe    []httpmw.TimingObserver
		outer      pipeline.Middleware
		onFailure  func(*pipeline.Context, error)
		onRejected func(*pipeline.Context, string)
	)
	if m := o.Metrics; m != nil {
		observe = append(observe, m.ObserveExchange)
		outer = m.Middleware()
		onFailure = m.ObserveFailure
		onRejected = m.ObserveKeyRejection
	}

	b := pipeline.NewBuilder().
		Use(httpmw.Chain(outer, httpmw.Timing(httpmw.TimingOptions{Logger: o.Logger, Observe: observe}))).
		Use(httpmw.ExceptionBoundary(httpmw.ExceptionOptions{Logger: o.Logger, OnFailure: onFailure})).
		Use(httpmw.CorrelationID(httpmw.CorrelationOptions{Header: o.CorrelationHeader, IDs: o.IDs, Logger: o.Logger})).
		Use(httpmw.ClientIP(o.ClientIP)).
		Use(httpmw.WithLogger(o.Logger)).
		Use(httpmw.SecurityHeaders()).
		Use(httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")).
		Use(httpmw.RequestLog()).
		Use(httpmw.RejectDotSegments())

	if o.RateLimiter != nil {
		b.Use(o.RateLimiter.Middleware())
	}

	b.UseWhen(pipeline.PathPrefix(o.SecurePrefix), func(sb *pipeline.Builder) {
		sb.Use(httpmw.KeyGuard(httpmw.KeyGuardOptions{
			Header:     o.APIKeyHeader,
			Key:        o.APIKey,
			Logger:     o.Logger,
			OnRejected: onRejected,
		}))
	})

	b.Map("/health", func(hb *pipeline.Builder) {
		hb.Run(healthTerminal(o.Readiness, o.Now))
	})
	b.Map("/terminal", func(tb *pipeline.Builder) {
		tb.Run(terminalText)
	})

	return b.Run(pipeline.Endpoints(Routes(&o))).Build()
}

// Routes is the endpoint router served at the end of the pipeline.
func Routes(opts *Options) chi.Router {
	o := opts.withDefaults()
	r := chi.NewRouter()
	r.Use(httpmw.AnnotateRoute)

	r.Get("/", pipeline.Endpoint(greeting))
	r.Get("/weatherforecast", pipeline.Endpoint(forecastHandler(o.Rand, o.Now)))
	r.Get(o.SecurePrefix+"/data", pipeline.Endpoint(secureData(o.Now)))
	r.Get("/throw", pipeline.Endpoint(throw))

	r.NotFound(pipeline.Endpoint(pipeline.NotFound))
	return r
}
