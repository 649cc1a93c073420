package testutil

import "sync"

// Ordinals is a resettable monotonic snapshot-ordinal counter.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Ordinals struct {
	mu  sync.Mutex
	cur int64
}

// NewOrdinals creates a counter at 0. The first Next returns 1.
func NewOrdinals() *Ordinals {
	return &Ordinals{}
}

// Next increments and returns the next ordinal.
func (o *Ordinals) Next() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cur++
	return o.cur
}

// Current returns the last ordinal handed out, 0 if none.
func (o *Ordinals) Current() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cur
}

// Reset rewinds to 0.
func (o *Ordinals) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cur = 0
}
