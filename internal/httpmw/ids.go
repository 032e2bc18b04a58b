package httpmw

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	mrand "math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// IDSource produces correlation ids.
type IDSource interface {
	NewID() string
}

// RandomIDs derives 8-character ids from random UUIDs drawn from a reader.
// It is safe for concurrent use.
type RandomIDs struct {
	mu sync.Mutex
	r  io.Reader
}

// NewRandomIDs reads from r, or from crypto/rand when r is nil.
func NewRandomIDs(r io.Reader) *RandomIDs {
	if r == nil {
		r = rand.Reader
	}
	return &RandomIDs{r: r}
}

// NewSeededIDs returns a deterministic source for tests and replays.
func NewSeededIDs(seed uint64) *RandomIDs {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	return &RandomIDs{r: mrand.NewChaCha8(key)}
}

// NewID returns the first 8 hex digits of a fresh random UUID.
func (g *RandomIDs) NewID() string {
	g.mu.Lock()
	u, err := uuid.NewRandomFromReader(g.r)
	g.mu.Unlock()
	if err != nil {
		u = uuid.Nil
	}
	return u.String()[:8]
}
