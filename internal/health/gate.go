package health

import (
	"context"
	"sync"
	"time"

	"github.com/keithlinneman/httppipe/internal/xerrors"
)

// DrainGate is a Probe that fails from the moment draining starts until
// Resume. The zero value is open.
type DrainGate struct {
	mu     sync.RWMutex
	reason string
	since  time.Time
	now    func() time.Time
}

// Drain closes the gate. Repeated calls update the reason but keep the
// original start time.
func (g *DrainGate) Drain(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.since.IsZero() {
		g.since = g.clock()
	}
	g.reason = reason
}

func (g *DrainGate) Resume() {
	g.mu.Lock()
	g.reason, g.since = "", time.Time{}
	g.mu.Unlock()
}

// Draining returns the reason and when draining started.
func (g *DrainGate) Draining() (reason string, since time.Time, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reason, g.since, !g.since.IsZero()
}

func (g *DrainGate) Check(context.Context) error {
	if reason, _, ok := g.Draining(); ok {
		return xerrors.New(reason)
	}
	return nil
}

func (g *DrainGate) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}
