package apphttp

import (
	"math/rand/v2"
	"sync"
)

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// draw returns a Celsius temperature in [-20, 55) and a summary index.
func (l *lockedRand) draw() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(75) - 20, l.r.IntN(len(summaries))
}
