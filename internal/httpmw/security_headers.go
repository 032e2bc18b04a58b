package httpmw

import "github.com/keithlinneman/httppipe/internal/pipeline"

// The service only serves JSON and plain text, so nothing needs to be
// loaded, framed or embedded.
var securityHeaders = [][2]string{
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
}

// SecurityHeaders adds the hardening headers when the response is committed,
// so responses rebuilt by an exception boundary carry them as well.
func SecurityHeaders() pipeline.Middleware {
	return func(c *pipeline.Context, next pipeline.Next) error {
		if err := c.OnStarting(func() error {
			h := c.Response.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			return nil
		}); err != nil {
			return err
		}
		return next()
	}
}
