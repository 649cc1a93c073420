package message

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces fiber IDs for creations that do not carry one.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 fiber IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined IDs in order, for deterministic tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
// Panics if all IDs have been consumed, to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// AssignFiberID fills in a fiber ID on creation messages that lack one.
// Other messages, and creations that already have an ID, are returned as is.
func AssignFiberID(m Message, gen IDGenerator) Message {
	switch v := m.(type) {
	case CreateStateMachine:
		if v.FiberID == "" {
			v.FiberID = gen.Generate()
		}
		return v
	case CreateScript:
		if v.FiberID == "" {
			v.FiberID = gen.Generate()
		}
		return v
	default:
		return m
	}
}

// ValidFiberID reports whether s parses as a UUID. Fibers created by other
// tooling may use any identifier, so this is advisory only.
func ValidFiberID(s string) bool {
	return uuid.Validate(s) == nil
}
