package opshttp

import (
	"net/http"

	"github.com/keithlinneman/httppipe/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// AllowPublic disables the private-network guard. Leave it off unless
	// the ops port sits behind its own access control.
	AllowPublic bool
}
