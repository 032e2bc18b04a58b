package pipeline

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrResponseStarted is returned when an on-start callback is registered
	// after the response has already been committed.
	ErrResponseStarted = errors.New("pipeline: response already started")
)

// Context is the per-exchange state shared by every component of a pipeline.
// It is created once per exchange and owned by it exclusively, so none of
// its fields are guarded.
type Context struct {
	// Request is the inbound request. Components treat it as read-only.
	Request *http.Request
	// Response is the buffered outbound response.
	Response *Response

	ctx        context.Context
	items      map[string]any
	onStarting []func() error
	started    bool

	// set by Endpoint when a routed handler fails, collected by Endpoints
	endpointErr error
}

// NewContext creates the Context for a single exchange.
func NewContext(r *http.Request) *Context {
	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Request:  r,
		Response: newResponse(),
		ctx:      ctx,
		items:    make(map[string]any),
	}
}

// Context returns the context.Context of the exchange. It starts as the
// request context and carries cancellation for the exchange.
func (c *Context) Context() context.Context {
	return c.ctx
}

// SetContext replaces the exchange context, typically with one derived from
// Context() that carries extra request-scoped values.
func (c *Context) SetContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	c.ctx = ctx
}

// Done is closed when the exchange is cancelled (e.g. client disconnect).
func (c *Context) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Err reports why the exchange was cancelled, nil while it is live.
func (c *Context) Err() error {
	return c.ctx.Err()
}

// Set stores an item for components further down the chain.
func (c *Context) Set(key string, v any) {
	c.items[key] = v
}

// Get returns the item stored under key.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.items[key]
	return v, ok
}

// GetString returns the item under key if it is a string, otherwise "".
func (c *Context) GetString(key string) string {
	if v, ok := c.items[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Delete removes the item stored under key.
func (c *Context) Delete(key string) {
	delete(c.items, key)
}

// OnStarting registers fn to run once, right before the response is
// transmitted. Callbacks run last-registered first, mirroring how the chain
// unwinds.
func (c *Context) OnStarting(fn func() error) error {
	if c.started {
		return ErrResponseStarted
	}
	if fn != nil {
		c.onStarting = append(c.onStarting, fn)
	}
	return nil
}

// Started reports whether the response has been committed.
func (c *Context) Started() bool {
	return c.started
}

// start runs the on-start callbacks exactly once.
func (c *Context) start() error {
	if c.started {
		return nil
	}
	c.started = true
	cbs := c.onStarting
	c.onStarting = nil

	var errs []error
	for i := len(cbs) - 1; i >= 0; i-- {
		if err := cbs[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Commit runs the on-start callbacks and then writes the buffered response
// to w. A second call does nothing.
func (c *Context) Commit(w http.ResponseWriter) error {
	if c.started {
		return nil
	}
	cbErr := c.start()

	dst := w.Header()
	for k, vs := range c.Response.header {
		dst[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(c.Response.effectiveStatus())
	if c.Response.body.Len() == 0 {
		return cbErr
	}
	if _, err := w.Write(c.Response.body.Bytes()); err != nil {
		return errors.Join(cbErr, err)
	}
	return cbErr
}
