package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "<prefix>-0001", "<prefix>-0002", ... for
// deterministic fiber IDs in scenarios and golden traces. Unlike
// message.FixedGenerator it never runs out.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "fiber".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "fiber"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate implements message.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
