package apphttp

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/keithlinneman/httppipe/internal/health"
	"github.com/keithlinneman/httppipe/internal/httpmw"
	"github.com/keithlinneman/httppipe/internal/log"
	"github.com/keithlinneman/httppipe/internal/metrics"
	"github.com/keithlinneman/httppipe/internal/ratelimit"
)

const DefaultSecurePrefix = "/secure"

type Options struct {
	Logger log.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.ServerMetrics

	// IDs generates correlation ids. Defaults to crypto randomness.
	IDs               httpmw.IDSource
	CorrelationHeader string

	// APIKey guards everything under SecurePrefix. Empty rejects all.
	APIKey       string
	APIKeyHeader string
	SecurePrefix string

	ClientIP httpmw.ClientIPOptions
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter *ratelimit.Limiter

	// Readiness backs the /health branch. nil always reports healthy.
	Readiness health.Probe

	// Rand drives the weather forecast. Defaults to a randomly seeded source.
	Rand *rand.Rand
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Logger == nil {
		out.Logger = log.Nop()
	}
	// the guard matches on segments; the route must not gain a "//"
	out.SecurePrefix = strings.TrimRight(out.SecurePrefix, "/")
	if out.SecurePrefix == "" {
		out.SecurePrefix = DefaultSecurePrefix
	}
	if out.Rand == nil {
		out.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}
