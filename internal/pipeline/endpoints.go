package pipeline

import (
	"context"
	"net/http"
)

type exchangeKey struct{}

func withExchange(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, exchangeKey{}, c)
}

// FromRequest returns the exchange a request is being served for, when the
// request was dispatched by Endpoints.
func FromRequest(r *http.Request) (*Context, bool) {
	c, ok := r.Context().Value(exchangeKey{}).(*Context)
	return c, ok && c != nil
}

// Endpoints is a terminal that serves h (typically a router) into the
// exchange's buffered response. Failures returned by handlers adapted with
// Endpoint become failures of the exchange.
func Endpoints(h http.Handler) Handler {
	return func(c *Context) error {
		c.endpointErr = nil
		req := c.Request.WithContext(withExchange(c.Context(), c))
		h.ServeHTTP(c.Response, req)

		err := c.endpointErr
		c.endpointErr = nil
		return err
	}
}

// Endpoint adapts a pipeline handler for registration on an http router.
// Outside of Endpoints it runs against a private Context and commits
// straight to w the way Pipeline.ServeHTTP does.
func Endpoint(fn Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, ok := FromRequest(r); ok {
			if err := fn(c); err != nil {
				c.endpointErr = err
			}
			return
		}

		c := NewContext(r)
		transmit(w, c, fn(c))
	}
}
