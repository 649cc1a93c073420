// Package wait provides polling synchronization against the read replica.
//
// Every primitive polls at a fixed interval until its condition holds or
// the timeout elapses. The backend offers no reliable push channel, so
// there is none here. While polling, a critical rejection for the watched
// fiber ends the wait immediately with a *rejection.RejectionError; benign
// rejections are absorbed by the checker and the loop continues.
//
// Outcomes:
//   - condition observed: Result.Reached, nil error
//   - timeout: !Result.Reached, nil error ("still pending")
//   - critical rejection: Result.Rejected, *rejection.RejectionError
//   - ctx cancelled: ctx.Err()
package wait

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/rejection"
)

// DefaultInterval is the poll interval when none is configured.
const DefaultInterval = time.Second

// Reader is the replica surface the primitives poll.
type Reader interface {
	Fiber(ctx context.Context, fiberID string) (ledger.FiberRecord, error)
	CurrentSequence(ctx context.Context, fiberID string) (int64, error)
	LatestOrdinal(ctx context.Context) (int64, error)
}

// RejectionChecker reports critical rejections. Implemented by
// *rejection.Checker.
type RejectionChecker interface {
	CheckCritical(ctx context.Context, fiberID, updateHash string) error
}

// Result describes how a wait ended.
type Result struct {
	Reached  bool
	Rejected bool
	Attempts int
	Elapsed  time.Duration

	// Last observed values, for diagnostics on timeout.
	Fiber    *ledger.FiberRecord
	Sequence int64
	Ordinal  int64
}

// Waiter runs the polling primitives. Stateless besides configuration;
// safe for concurrent use.
type Waiter struct {
	reader     Reader
	rejections RejectionChecker
	interval   time.Duration
	logger     *slog.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithRejectionChecker enables fail-fast on critical rejections.
func WithRejectionChecker(rc RejectionChecker) Option {
	return func(w *Waiter) {
		w.rejections = rc
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Waiter) {
		w.logger = l
	}
}

// New creates a Waiter.
func New(reader Reader, opts ...Option) *Waiter {
	w := &Waiter{
		reader:   reader,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CallOption scopes a single wait.
type CallOption func(*call)

type call struct {
	fiberID    string
	updateHash string
}

// ForUpdate restricts rejection fail-fast to one update's hash. Without it
// any critical rejection for the fiber ends the wait.
func ForUpdate(hash string) CallOption {
	return func(c *call) {
		c.updateHash = hash
	}
}

// WatchFiber enables rejection fail-fast for a wait that is not itself
// about a fiber, such as WaitForSnapshot.
func WatchFiber(fiberID string) CallOption {
	return func(c *call) {
		c.fiberID = fiberID
	}
}

// WaitForFiber polls until the replica reports fiberID.
func (w *Waiter) WaitForFiber(ctx context.Context, fiberID string, timeout time.Duration, opts ...CallOption) (Result, error) {
	var res Result
	err := w.poll(ctx, timeout, w.scope(fiberID, opts), &res, func(ctx context.Context) (bool, error) {
		rec, err := w.reader.Fiber(ctx, fiberID)
		if ledger.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		res.Fiber = &rec
		return true, nil
	})
	return res, err
}

// WaitForState polls until fiberID's current state equals expected. A
// fiber can exist without yet reflecting a submitted transition, so this
// is distinct from WaitForFiber.
func (w *Waiter) WaitForState(ctx context.Context, fiberID, expected string, timeout time.Duration, opts ...CallOption) (Result, error) {
	var res Result
	err := w.poll(ctx, timeout, w.scope(fiberID, opts), &res, func(ctx context.Context) (bool, error) {
		rec, err := w.reader.Fiber(ctx, fiberID)
		if ledger.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		res.Fiber = &rec
		return rec.CurrentState == expected, nil
	})
	return res, err
}

// WaitForSequence polls the authoritative sequence until it is >= target.
// It never touches the sequence coordinator.
func (w *Waiter) WaitForSequence(ctx context.Context, fiberID string, target int64, timeout time.Duration, opts ...CallOption) (Result, error) {
	var res Result
	err := w.poll(ctx, timeout, w.scope(fiberID, opts), &res, func(ctx context.Context) (bool, error) {
		seq, err := w.reader.CurrentSequence(ctx, fiberID)
		if err != nil {
			return false, err
		}
		res.Sequence = seq
		return seq >= target, nil
	})
	return res, err
}

// WaitForSnapshot polls until the latest snapshot ordinal exceeds
// minOrdinal.
func (w *Waiter) WaitForSnapshot(ctx context.Context, minOrdinal int64, timeout time.Duration, opts ...CallOption) (Result, error) {
	var res Result
	err := w.poll(ctx, timeout, w.scope("", opts), &res, func(ctx context.Context) (bool, error) {
		ord, err := w.reader.LatestOrdinal(ctx)
		if err != nil {
			return false, err
		}
		res.Ordinal = ord
		return ord > minOrdinal, nil
	})
	return res, err
}

func (w *Waiter) scope(fiberID string, opts []CallOption) call {
	c := call{fiberID: fiberID}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// poll evaluates check until it reports true, the deadline passes, a
// critical rejection appears, or ctx ends. Read errors are logged and
// polling continues; a replica hiccup is not an outcome.
func (w *Waiter) poll(ctx context.Context, timeout time.Duration, c call, res *Result, check func(context.Context) (bool, error)) error {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		res.Attempts++
		ok, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				res.Elapsed = time.Since(start)
				return ctx.Err()
			}
			w.logger.Debug("poll read failed", "fiber", c.fiberID, "attempt", res.Attempts, "error", err)
		}
		if ok {
			res.Reached = true
			res.Elapsed = time.Since(start)
			return nil
		}

		if c.fiberID != "" && w.rejections != nil {
			if err := w.rejections.CheckCritical(ctx, c.fiberID, c.updateHash); err != nil {
				if rejection.IsRejectionError(err) {
					res.Rejected = true
					res.Elapsed = time.Since(start)
					return err
				}
				w.logger.Debug("rejection check failed", "fiber", c.fiberID, "error", err)
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			res.Elapsed = time.Since(start)
			w.logger.Debug("wait timed out", "fiber", c.fiberID, "attempts", res.Attempts, "elapsed", res.Elapsed)
			return nil
		}
		timer := time.NewTimer(min(w.interval, remaining))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			res.Elapsed = time.Since(start)
			return ctx.Err()
		}
	}
}
