package httpmw

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/httppipe/internal/cryptoutil"
	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

const DefaultKeyHeader = "X-Api-Key"

type KeyGuardOptions struct {
	// Header carries the client's key. Defaults to X-Api-Key.
	Header string
	// Key is the expected secret. An empty key rejects every request.
	Key string
	// Logger is used when no request logger is in the exchange context.
	Logger log.Logger
	// OnRejected, when set, is called for every rejected request.
	OnRejected func(c *pipeline.Context, reason string)
}

// Unauthorized is the body written for a rejected request.
type Unauthorized struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// KeyGuard lets a request continue only when Header carries Key. Otherwise
// it answers 401 and the rest of the chain does not run.
func KeyGuard(opts KeyGuardOptions) pipeline.Middleware {
	header := opts.Header
	if header == "" {
		header = DefaultKeyHeader
	}
	secret := cryptoutil.NewSecret(opts.Key)
	body := Unauthorized{
		Error:   http.StatusText(http.StatusUnauthorized),
		Message: fmt.Sprintf("A valid '%s' header is required.", header),
	}

	return func(c *pipeline.Context, next pipeline.Next) error {
		provided := c.Request.Header.Get(header)
		if secret.Matches(provided) {
			return next()
		}

		reason := "mismatch"
		switch {
		case !secret.Set():
			reason = "unconfigured"
		case provided == "":
			reason = "missing"
		}

		ctx := c.Context()
		log.FromContextOr(ctx, opts.Logger).Warn(ctx, "api key rejected",
			"reason", reason,
			"url.path", c.Request.URL.Path,
			"correlation_id", CorrelationIDFrom(c),
		)
		if opts.OnRejected != nil {
			opts.OnRejected(c, reason)
		}
		return c.Response.JSON(http.StatusUnauthorized, body)
	}
}
