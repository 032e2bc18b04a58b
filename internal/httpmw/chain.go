package httpmw

import "github.com/keithlinneman/httppipe/internal/pipeline"

// Chain folds mws into a single middleware that runs them in order before
// continuing. nil entries are skipped.
func Chain(mws ...pipeline.Middleware) pipeline.Middleware {
	live := make([]pipeline.Middleware, 0, len(mws))
	for _, mw := range mws {
		if mw != nil {
			live = append(live, mw)
		}
	}

	return func(c *pipeline.Context, next pipeline.Next) error {
		var step func(i int) error
		step = func(i int) error {
			if i == len(live) {
				return next()
			}
			called := false
			return live[i](c, func() error {
				if called {
					return pipeline.ErrNextCalledTwice
				}
				called = true
				return step(i + 1)
			})
		}
		return step(0)
	}
}
