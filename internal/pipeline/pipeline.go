package pipeline

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/httppipe/internal/log"
)

// ErrNextCalledTwice is returned by a continuation invoked a second time
// within the same exchange. Downstream components do not run again.
var ErrNextCalledTwice = errors.New("pipeline: next invoked more than once")

// Next resumes the rest of the pipeline and returns once everything
// downstream, including its after-phase work, has finished.
type Next func() error

// Middleware is one pipeline component. Work before next() is the
// before-phase, work after it the after-phase; not calling next at all
// short-circuits the chain.
type Middleware func(c *Context, next Next) error

// Handler produces a response and ends the chain.
type Handler func(c *Context) error

// Middleware adapts h into a component that never calls its continuation.
func (h Handler) Middleware() Middleware {
	return func(c *Context, _ Next) error {
		return h(c)
	}
}

// Delegate is a composed chain: calling it runs every component from that
// point to the end.
type Delegate func(c *Context) error

// component receives the delegate for everything after it and returns the
// delegate that starts with itself.
type component func(next Delegate) Delegate

// NotFound is the default terminal when nothing in the chain responds.
func NotFound(c *Context) error {
	return c.Response.WriteString(http.StatusNotFound, "404 page not found\n")
}

// wrap turns a middleware into a component, giving each invocation its own
// single-use continuation.
func wrap(mw Middleware) component {
	return func(next Delegate) Delegate {
		return func(c *Context) error {
			called := false
			return mw(c, func() error {
				if called {
					return ErrNextCalledTwice
				}
				called = true
				return next(c)
			})
		}
	}
}

// Builder collects components in registration order. It is not safe for
// concurrent use and is frozen by Build.
type Builder struct {
	components []component
	built      bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) add(cs ...component) *Builder {
	if b.built {
		panic("pipeline: builder modified after Build")
	}
	b.components = append(b.components, cs...)
	return b
}

// Use appends middlewares; nil entries are skipped.
func (b *Builder) Use(mws ...Middleware) *Builder {
	for _, mw := range mws {
		if mw == nil {
			continue
		}
		b.add(wrap(mw))
	}
	return b
}

// Run appends a terminal handler. Anything registered after it is
// unreachable through this path.
func (b *Builder) Run(h Handler) *Builder {
	if h == nil {
		return b
	}
	return b.Use(h.Middleware())
}

// compose wraps from the last component to the first around end.
func (b *Builder) compose(end Delegate) Delegate {
	d := end
	for i := len(b.components) - 1; i >= 0; i-- {
		d = b.components[i](d)
	}
	return d
}

// Build freezes the builder and returns the composed pipeline. Exchanges
// that fall off the end of the chain get NotFound.
func (b *Builder) Build() *Pipeline {
	b.built = true
	return &Pipeline{root: b.compose(Delegate(NotFound))}
}

// Pipeline is an immutable composed chain, safe for concurrent exchanges.
type Pipeline struct {
	root Delegate
}

// Invoke runs one exchange through the chain. Failures nothing caught are
// returned unchanged; panics are not recovered.
func (p *Pipeline) Invoke(c *Context) error {
	return p.root(c)
}

// ServeHTTP runs the pipeline for r and transmits the buffered response.
// A failure that escaped every boundary gets a bare 500.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := NewContext(r)
	transmit(w, c, p.Invoke(c))
}

// transmit commits c to w, first replacing the response with a bare 500
// when failure is set. Both failures and commit errors are logged through
// the request's logger.
func transmit(w http.ResponseWriter, c *Context, failure error) {
	ctx := c.Context()
	L := log.FromContext(ctx)

	if failure != nil {
		L.Error(ctx, failure, "uncaught pipeline failure",
			"http.request.method", c.Request.Method,
			"url.path", c.Request.URL.Path,
		)
		c.Response.Reset()
		c.Response.Header().Set("X-Content-Type-Options", "nosniff")
		_ = c.Response.WriteString(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)+"\n")
	}

	if err := c.Commit(w); err != nil {
		L.Warn(ctx, "response commit failed", "error", err)
	}
}
