package httpmw

import (
	"net/http"

	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/pathutil"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

// RejectDotSegments answers 400 for paths containing "." or ".." segments
// so prefix predicates and the router only ever see canonical paths.
func RejectDotSegments() pipeline.Middleware {
	return func(c *pipeline.Context, next pipeline.Next) error {
		if !pathutil.HasDotSegments(c.Request.URL.Path) {
			return next()
		}
		ctx := c.Context()
		log.FromContext(ctx).Debug(ctx, "rejected dot segment path", "url.path", c.Request.URL.Path)
		return c.Response.WriteString(http.StatusBadRequest, http.StatusText(http.StatusBadRequest)+"\n")
	}
}
