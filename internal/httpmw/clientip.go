package httpmw

import (
	"net"
	"net/http"
	"strings"

	"github.com/keithlinneman/httppipe/internal/pipeline"
)

// ClientIPKey is the Context item holding the resolved client address.
const ClientIPKey = "ClientIP"

type ClientIPOptions struct {
	// TrustedHops is how many reverse proxies sit in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes its last entry, 2 the one before
	// that, and so on.
	TrustedHops int
}

// ClientIP resolves the client address and stores it under ClientIPKey.
// Forwarded headers from peers that are not trusted are removed from the
// request.
func ClientIP(opts ClientIPOptions) pipeline.Middleware {
	return func(c *pipeline.Context, next pipeline.Next) error {
		c.Set(ClientIPKey, resolveClientAddr(c.Request, opts.TrustedHops))
		return next()
	}
}

// ClientIPFrom returns the address resolved by ClientIP, or "".
func ClientIPFrom(c *pipeline.Context) string {
	return c.GetString(ClientIPKey)
}

func dropForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// resolveClientAddr only believes X-Forwarded-For when the direct peer is on
// a private network and proxies are configured. With fewer entries than
// hops the header is treated as forged and dropped.
func resolveClientAddr(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	ip := net.ParseIP(peer)
	if ip == nil {
		return "0.0.0.0"
	}

	if !ip.IsPrivate() || trustedHops <= 0 {
		dropForwarded(r)
		return peer
	}

	xf := r.Header.Get("X-Forwarded-For")
	if xf == "" {
		return peer
	}
	parts := strings.Split(xf, ",")
	idx := len(parts) - trustedHops
	if idx < 0 {
		dropForwarded(r)
		return peer
	}
	if candidate := strings.TrimSpace(parts[idx]); net.ParseIP(candidate) != nil {
		return candidate
	}
	return peer
}
