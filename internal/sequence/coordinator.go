// Package sequence tracks the next sequence number to present per fiber.
//
// The ledger's write path runs ahead of its read replicas: a burst of
// transitions submitted faster than the replica catches up would all read
// the same stale sequence and every one after the first would be rejected.
// The Coordinator keeps a process-local optimistic high-water mark per
// fiber and combines it with the authoritative read:
//
//	next = max(authoritative, cached)
//
// The authoritative value is a lower bound, never an upper bound. The cache
// is never persisted; a restart trusts only the backend again.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Reader fetches the backend's authoritative next sequence for a fiber.
type Reader interface {
	CurrentSequence(ctx context.Context, fiberID string) (int64, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, fiberID string) (int64, error)

// CurrentSequence implements Reader.
func (f ReaderFunc) CurrentSequence(ctx context.Context, fiberID string) (int64, error) {
	return f(ctx, fiberID)
}

// Coordinator is an injectable per-fiber sequence cache.
//
// Thread-safety model:
//   - GetNext/Advance/Reset/Cached: safe from any goroutine
//   - Lock: serializes read-modify-write flows for ONE fiber; different
//     fibers never contend
//
// Only the submission pipeline should call Advance and Reset.
type Coordinator struct {
	reader Reader
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]int64         // fiberID -> smallest seq believed safe to present next
	locks map[string]chan struct{} // fiberID -> 1-slot semaphore
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a Coordinator backed by reader.
func New(reader Reader, opts ...Option) *Coordinator {
	c := &Coordinator{
		reader: reader,
		logger: slog.Default(),
		cache:  make(map[string]int64),
		locks:  make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetNext returns max(authoritative, cached). The authoritative read is a
// network call and is made without holding any coordinator state.
func (c *Coordinator) GetNext(ctx context.Context, fiberID string) (int64, error) {
	authoritative, err := c.reader.CurrentSequence(ctx, fiberID)
	if err != nil {
		return 0, fmt.Errorf("read sequence for %s: %w", fiberID, err)
	}

	c.mu.Lock()
	cached, ok := c.cache[fiberID]
	c.mu.Unlock()

	next := authoritative
	if ok && cached > next {
		next = cached
		c.logger.Debug("sequence ahead of replica",
			"fiber", fiberID,
			"authoritative", authoritative,
			"cached", cached,
		)
	}
	return next, nil
}

// Advance records that submittedSeq was accepted. Monotonic: the cached
// value becomes max(cached, submittedSeq+1) and never decreases.
func (c *Coordinator) Advance(fiberID string, submittedSeq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.cache[fiberID]; !ok || submittedSeq+1 > cur {
		c.cache[fiberID] = submittedSeq + 1
	}
}

// Reset deletes the cached value so the next GetNext trusts only the
// authoritative read. A rejected submission does not consume a sequence,
// so optimism past it would desynchronize the client.
func (c *Coordinator) Reset(fiberID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, fiberID)
}

// Cached returns the cached high-water mark, if any. Diagnostics only.
func (c *Coordinator) Cached(fiberID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache[fiberID]
	return v, ok
}

// Lock acquires the per-fiber lock, waiting until it is free or ctx is
// done. The returned func releases it and must be called exactly once.
func (c *Coordinator) Lock(ctx context.Context, fiberID string) (func(), error) {
	sem := c.semaphore(fiberID)
	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-sem }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reserve locks the fiber and returns the next sequence to present.
// The caller holds the lock until it calls release, after Advance or
// Reset has recorded the outcome.
func (c *Coordinator) Reserve(ctx context.Context, fiberID string) (seq int64, release func(), err error) {
	release, err = c.Lock(ctx, fiberID)
	if err != nil {
		return 0, nil, err
	}
	seq, err = c.GetNext(ctx, fiberID)
	if err != nil {
		release()
		return 0, nil, err
	}
	return seq, release, nil
}

func (c *Coordinator) semaphore(fiberID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	sem, ok := c.locks[fiberID]
	if !ok {
		sem = make(chan struct{}, 1)
		c.locks[fiberID] = sem
	}
	return sem
}
