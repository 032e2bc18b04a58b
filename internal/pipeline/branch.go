package pipeline

import (
	"net/http"
	"strings"
)

// Predicate selects a branch. It is evaluated once per exchange and must not
// have side effects.
type Predicate func(r *http.Request) bool

// Mode controls whether a branch may hand control back to the outer chain.
type Mode int

const (
	// Exclusive branches own the rest of the exchange; the outer remainder
	// never runs for requests they match.
	Exclusive Mode = iota
	// Conditional branches get the outer remainder as their terminal and
	// rejoin the outer chain unless something inside short-circuits.
	Conditional
)

func (m Mode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Conditional:
		return "conditional"
	default:
		return "unknown"
	}
}

// Branch diverts matching exchanges into a sub-pipeline populated by
// configure. Predicate, mode and sub-pipeline are fixed here.
func (b *Builder) Branch(pred Predicate, mode Mode, configure func(*Builder)) *Builder {
	if pred == nil {
		panic("pipeline: branch predicate is nil")
	}
	sub := NewBuilder()
	if configure != nil {
		configure(sub)
	}
	sub.built = true

	return b.add(func(next Delegate) Delegate {
		var branch Delegate
		switch mode {
		case Conditional:
			branch = sub.compose(next)
		default:
			branch = sub.compose(Delegate(NotFound))
		}
		return func(c *Context) error {
			if pred(c.Request) {
				return branch(c)
			}
			return next(c)
		}
	})
}

// MapWhen adds an exclusive branch.
func (b *Builder) MapWhen(pred Predicate, configure func(*Builder)) *Builder {
	return b.Branch(pred, Exclusive, configure)
}

// UseWhen adds a conditional branch that rejoins the outer chain.
func (b *Builder) UseWhen(pred Predicate, configure func(*Builder)) *Builder {
	return b.Branch(pred, Conditional, configure)
}

// Map adds an exclusive branch for requests under the path prefix.
func (b *Builder) Map(prefix string, configure func(*Builder)) *Builder {
	return b.MapWhen(PathPrefix(prefix), configure)
}

// PathPrefix matches request paths equal to prefix or below it on a segment
// boundary, ignoring case: "/secure" matches "/secure" and "/secure/data"
// but not "/securex".
func PathPrefix(prefix string) Predicate {
	p := strings.TrimRight(prefix, "/")
	return func(r *http.Request) bool {
		if r == nil || r.URL == nil {
			return false
		}
		if p == "" {
			return true
		}
		path := r.URL.Path
		if len(path) < len(p) || !strings.EqualFold(path[:len(p)], p) {
			return false
		}
		return len(path) == len(p) || path[len(p)] == '/'
	}
}

// Method matches requests with the given method.
func Method(method string) Predicate {
	return func(r *http.Request) bool {
		return r != nil && strings.EqualFold(r.Method, method)
	}
}
