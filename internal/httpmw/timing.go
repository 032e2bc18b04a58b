package httpmw

import (
	"time"

	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

// TimingRecord describes one timed exchange. Status is the response status
// as it stood when the timed part of the chain returned.
type TimingRecord struct {
	Method  string
	Path    string
	Started time.Time
	Elapsed time.Duration
	Status  int
}

// ElapsedMillis is Elapsed in fractional milliseconds.
func (r TimingRecord) ElapsedMillis() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

// TimingObserver receives a record for every exchange that completes the
// timed section without failing.
type TimingObserver func(c *pipeline.Context, rec TimingRecord)

type TimingOptions struct {
	// Logger is used when no request logger is in the exchange context.
	Logger  log.Logger
	Observe []TimingObserver
	// Now defaults to time.Now, whose readings carry a monotonic clock.
	Now func() time.Time
}

// Timing measures how long everything after it takes. The start is logged
// at debug before the chain runs. A failure unwinding through it skips the
// completion record; put it outside ExceptionBoundary to
// time error responses too.
func Timing(opts TimingOptions) pipeline.Middleware {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *pipeline.Context, next pipeline.Next) error {
		start := now()
		ctx := c.Context()
		log.FromContextOr(ctx, opts.Logger).Debug(ctx, "http request started",
			"http.request.method", c.Request.Method,
			"url.path", c.Request.URL.Path,
		)

		if err := next(); err != nil {
			return err
		}

		elapsed := now().Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		rec := TimingRecord{
			Method:  c.Request.Method,
			Path:    c.Request.URL.Path,
			Started: start,
			Elapsed: elapsed,
			Status:  c.Response.EffectiveStatus(),
		}

		ctx = c.Context()
		log.FromContextOr(ctx, opts.Logger).Info(ctx, "http request",
			"http.request.method", rec.Method,
			"url.path", rec.Path,
			"http.response.status_code", rec.Status,
			"elapsed_ms", rec.ElapsedMillis(),
		)
		for _, obs := range opts.Observe {
			if obs != nil {
				obs(c, rec)
			}
		}
		return nil
	}
}
