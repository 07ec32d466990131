package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator yields "req-000001", "req-000002", ... in order.
//
// It stands in for the engine's UUID request-id generator so golden traces
// and supersede tests are byte-stable across runs.
//
// Thread-safety: safe for concurrent use.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a generator with the given prefix. An empty
// prefix defaults to "req".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "req"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// NewID returns the next id in the sequence.
func (g *SequenceIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}

// Reset restarts the sequence for test reuse.
func (g *SequenceIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
