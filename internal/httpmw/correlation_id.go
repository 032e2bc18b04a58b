package httpmw

import (
	"strings"

	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

const (
	// CorrelationIDKey is the Context item holding the exchange's id.
	CorrelationIDKey = "CorrelationId"

	DefaultCorrelationHeader = "X-Correlation-Id"
)

type CorrelationOptions struct {
	// Header is read from the request and echoed on the response.
	// Defaults to X-Correlation-Id.
	Header string
	// IDs generates ids for requests that arrive without one.
	IDs IDSource
	// Logger is used when no request logger is in the exchange context.
	Logger log.Logger
}

// CorrelationID reuses a non-blank inbound id verbatim or generates one,
// stores it under CorrelationIDKey and writes it back on the response when
// headers go out, including on error responses produced further out.
func CorrelationID(opts CorrelationOptions) pipeline.Middleware {
	header := opts.Header
	if header == "" {
		header = DefaultCorrelationHeader
	}
	ids := opts.IDs
	if ids == nil {
		ids = NewRandomIDs(nil)
	}

	return func(c *pipeline.Context, next pipeline.Next) error {
		id := c.Request.Header.Get(header)
		if strings.TrimSpace(id) == "" {
			id = ids.NewID()
		}
		c.Set(CorrelationIDKey, id)

		if err := c.OnStarting(func() error {
			c.Response.Header().Set(header, id)
			return nil
		}); err != nil {
			return err
		}

		ctx := c.Context()
		L := log.FromContextOr(ctx, opts.Logger)
		L.Debug(ctx, "request started",
			"correlation_id", id,
			"http.request.method", c.Request.Method,
			"url.path", c.Request.URL.Path,
		)

		if err := next(); err != nil {
			return err
		}

		L.Debug(ctx, "request finished",
			"correlation_id", id,
			"http.response.status_code", c.Response.EffectiveStatus(),
		)
		return nil
	}
}

// CorrelationIDFrom returns the exchange's correlation id, or "" before
// CorrelationID has run.
func CorrelationIDFrom(c *pipeline.Context) string {
	return c.GetString(CorrelationIDKey)
}
