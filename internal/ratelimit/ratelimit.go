package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/httppipe/internal/httpmw"
	"github.com/keithlinneman/httppipe/internal/pipeline"
)

// bucket is one client's limiter. warned is set on its first denial and
// forgotten when the bucket is swept.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	warned   bool
}

// Limiter holds a token bucket per client key, sweeping idle ones in the
// background.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	full    bool

	perSecond rate.Limit
	burst     int
	ttl       time.Duration
	maxKeys   int

	key           func(c *pipeline.Context) string
	onFirstDenied func(key string)
	onDenied      func(key string)
	onCapacity    func()
}

type Option func(*Limiter)

// WithRate sets the refill rate and bucket size: WithRate(10, 50) admits 50
// requests at once, then 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *Limiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL sets how long an idle bucket is kept.
func WithTTL(d time.Duration) Option {
	return func(l *Limiter) { l.ttl = d }
}

// WithMaxKeys caps the number of tracked clients. Unknown clients are
// refused while the cap is reached. 0 disables the cap.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) { l.maxKeys = n }
}

// WithKey selects the client key for an exchange. Defaults to the address
// resolved by httpmw.ClientIP.
func WithKey(fn func(c *pipeline.Context) string) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.key = fn
		}
	}
}

// WithOnFirstDenied is called once per bucket lifetime, for logging.
func WithOnFirstDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onFirstDenied = fn }
}

// WithOnDenied is called for every refused request, for counting.
func WithOnDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onDenied = fn }
}

// WithOnCapacity is called when the key cap is first hit, and again only
// after a sweep has freed room.
func WithOnCapacity(fn func()) Option {
	return func(l *Limiter) { l.onCapacity = fn }
}

// New builds a Limiter whose sweeper runs until ctx is done.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:   make(map[string]*bucket),
		perSecond: 10,
		burst:     30,
		ttl:       5 * time.Minute,
		maxKeys:   100000,
		key:       httpmw.ClientIPFrom,
	}
	for _, o := range opts {
		o(l)
	}
	go l.sweep(ctx)
	return l
}

// Allow takes a token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		if l.maxKeys > 0 && len(l.buckets) >= l.maxKeys {
			notify := !l.full
			l.full = true
			l.mu.Unlock()
			if notify && l.onCapacity != nil {
				l.onCapacity()
			}
			return false
		}
		b = &bucket{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	allowed := b.limiter.Allow()
	first := !allowed && !b.warned
	if first {
		b.warned = true
	}
	l.mu.Unlock()

	// hooks run unlocked
	if first && l.onFirstDenied != nil {
		l.onFirstDenied(key)
	}
	if !allowed && l.onDenied != nil {
		l.onDenied(key)
	}
	return allowed
}

// Len reports how many clients are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweep(ctx context.Context) {
	t := time.NewTicker(l.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.mu.Lock()
			for k, b := range l.buckets {
				if now.Sub(b.lastSeen) > l.ttl {
					delete(l.buckets, k)
					l.full = false
				}
			}
			l.mu.Unlock()
		}
	}
}

// TooMany is the body of a refused request. Limits and refill timing are
// deliberately not disclosed.
type TooMany struct {
	Error string `json:"error"`
}

// Middleware refuses requests over the limit with 429 and does not continue
// the chain.
func (l *Limiter) Middleware() pipeline.Middleware {
	return func(c *pipeline.Context, next pipeline.Next) error {
		if l.Allow(l.key(c)) {
			return next()
		}
		c.Response.Header().Set("Retry-After", "30")
		return c.Response.JSON(http.StatusTooManyRequests, TooMany{Error: "too many requests"})
	}
}
