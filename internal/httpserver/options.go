package httpserver

import (
	"net/http"

	"github.com/keithlinneman/httppipe/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int
	// Handler is the application, normally the composed pipeline.
	Handler http.Handler
	// Untraced paths get no server span. Defaults to DefaultUntraced.
	Untraced []string
}

// DefaultUntraced are probe and browser noise paths.
var DefaultUntraced = []string{"/health", "/favicon.ico", "/robots.txt"}
