package httpmw

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/pipeline"
	"github.com/keithlinneman/httppipe/internal/xerrors"
)

type ExceptionOptions struct {
	// Logger is used when no request logger is in the exchange context.
	Logger log.Logger
	// OnFailure, when set, is called for every failure the boundary absorbs.
	OnFailure func(c *pipeline.Context, err error)
}

// ServerFault is the body written for an absorbed failure. CorrelationID is
// null when no id was assigned before the failure.
type ServerFault struct {
	Error         string  `json:"error"`
	Message       string  `json:"message"`
	CorrelationID *string `json:"correlationId"`
}

// ExceptionBoundary absorbs failures returned or panicked by everything
// after it and replaces the response with a 500 ServerFault. Nothing it
// catches propagates further. http.ErrAbortHandler is re-panicked so
// net/http can abort the connection.
func ExceptionBoundary(opts ExceptionOptions) pipeline.Middleware {
	return func(c *pipeline.Context, next pipeline.Next) (err error) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err = absorb(c, xerrors.Recovered(v), opts)
		}()

		if ferr := next(); ferr != nil {
			return absorb(c, ferr, opts)
		}
		return nil
	}
}

func absorb(c *pipeline.Context, failure error, opts ExceptionOptions) error {
	ctx := c.Context()
	id, hasID := c.Get(CorrelationIDKey)

	kv := []any{
		"http.request.method", c.Request.Method,
		"url.path", c.Request.URL.Path,
	}
	if hasID {
		kv = append(kv, "correlation_id", id)
	}
	log.FromContextOr(ctx, opts.Logger).Error(ctx, failure, "unhandled failure", kv...)

	if opts.OnFailure != nil {
		opts.OnFailure(c, failure)
	}

	body := ServerFault{
		Error:   http.StatusText(http.StatusInternalServerError),
		Message: failureMessage(failure),
	}
	if s, ok := id.(string); ok && hasID {
		body.CorrelationID = &s
	}

	c.Response.Reset()
	return c.Response.JSON(http.StatusInternalServerError, body)
}

// failureMessage is the text shown to clients: the error message, or the
// bare panic value for recovered panics.
func failureMessage(err error) string {
	var pe *xerrors.PanicError
	if errors.As(err, &pe) {
		return fmt.Sprint(pe.Value)
	}
	return err.Error()
}
