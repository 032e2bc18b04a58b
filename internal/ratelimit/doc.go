// Package ratelimit is an in-memory, per-client token bucket limiter that
// plugs into the pipeline as a middleware.
//
// State is local to the process. It blunts single-source floods and gives
// visibility into who is being throttled; distributed abuse has to be
// handled upstream.
package ratelimit
