package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/roach88/fiberclient/internal/canon"
	"github.com/roach88/fiberclient/internal/config"
	"github.com/roach88/fiberclient/internal/fiber"
	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/message"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/signing"
	"github.com/roach88/fiberclient/internal/submit"
	"github.com/roach88/fiberclient/internal/testutil"
	"github.com/roach88/fiberclient/internal/wait"
)

// DefaultKeyHex signs scenarios that list no keys. Development use only.
const DefaultKeyHex = "0000000000000000000000000000000000000000000000000000000000000001"

// DefaultStepTimeout bounds each step when neither the scenario nor the
// runner sets one.
const DefaultStepTimeout = 10 * time.Second

// Runner executes scenarios against a fiber.Client.
//
// Thread-safety: a Runner holds no per-run state; concurrent Runs against
// the same client share its sequence coordinator, which is safe.
type Runner struct {
	client   *fiber.Client
	logger   *slog.Logger
	timeout  time.Duration
	interval time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithStepTimeout sets the wait bound for scenarios without a timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPollInterval sets how often expected rejections are polled for.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRunner creates a Runner driving client.
func NewRunner(client *fiber.Client, opts ...Option) *Runner {
	r := &Runner{
		client:   client,
		logger:   slog.Default(),
		timeout:  DefaultStepTimeout,
		interval: wait.DefaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every step in order, then evaluates the assertions.
//
// Unmet expectations are recorded in Result.Errors and do not stop the
// run. The returned error is reserved for scenarios that cannot run at all
// (bad keys, unencodable documents) and for ctx cancellation.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	keys, err := parseKeys(s.Keys)
	if err != nil {
		return nil, err
	}
	timeout, err := s.StepTimeout()
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = r.timeout
	}

	result := NewResult()
	for i, step := range s.Steps {
		ev, err := r.runStep(ctx, i, step, s, keys, timeout, result)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.addTrace(ev)
		r.logger.Info("step completed",
			"step", i,
			"action", ev.Action,
			"fiber", ev.Fiber,
			"outcome", ev.Outcome,
		)
	}

	for _, msg := range EvaluateAssertions(ctx, r.client, result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, i int, step Step, s *Scenario, keys []*signing.KeyPair, timeout time.Duration, result *Result) (TraceEvent, error) {
	ev := TraceEvent{Step: i, Action: step.Action(), Fiber: step.Fiber()}

	res, err := r.submit(ctx, step, s, keys, result, &ev)
	if err != nil {
		if ctx.Err() != nil {
			return ev, ctx.Err()
		}
		if !submit.IsSubmissionError(err) {
			return ev, err
		}
		se, _ := submit.AsSubmissionError(err)
		ev.Outcome = OutcomeFailed
		ev.Codes = []string{string(se.Code)}
		result.AddError(fmt.Sprintf("step %d: %s %s: %v", i, ev.Action, ev.Fiber, err))
		return ev, nil
	}
	ev.TargetSeq = res.TargetSeq
	if step.Create != nil {
		result.Fibers[step.Create.As] = res.FiberID
	}
	id := result.Fibers[ev.Fiber]

	if step.ExpectRejection != "" {
		rec, found, err := r.awaitRejection(ctx, id, res.Hash, timeout)
		if err != nil {
			return ev, err
		}
		r.client.Resync(id)
		if !found {
			ev.Outcome = OutcomeTimeout
			result.AddError(fmt.Sprintf("step %d: expected rejection %s, none observed", i, step.ExpectRejection))
		} else {
			ev.Outcome = OutcomeRejected
			ev.Codes = rec.Codes()
			if !slices.Contains(ev.Codes, step.ExpectRejection) {
				result.AddError(fmt.Sprintf("step %d: expected rejection %s, got %v", i, step.ExpectRejection, ev.Codes))
			}
		}
		r.observe(ctx, id, &ev)
		return ev, nil
	}

	wr, err := r.await(ctx, step, id, res, timeout)
	switch re, rejected := rejection.AsRejectionError(err); {
	case rejected:
		r.client.Resync(id)
		ev.Outcome = OutcomeRejected
		for _, e := range re.Entries() {
			ev.Codes = append(ev.Codes, e.Code)
		}
		result.AddError(fmt.Sprintf("step %d: unexpected rejection: %s", i, rejection.Describe(re.Records)))
	case err != nil:
		return ev, err
	case !wr.Reached:
		ev.Outcome = OutcomeTimeout
		result.AddError(fmt.Sprintf("step %d: %s %s still pending after %s", i, ev.Action, ev.Fiber, timeout))
	default:
		ev.Outcome = OutcomeReached
	}

	r.observe(ctx, id, &ev)
	if ev.Outcome == OutcomeReached && step.ExpectSeq != nil && (ev.Seq == nil || *ev.Seq != *step.ExpectSeq) {
		result.AddError(fmt.Sprintf("step %d: expected seq %d, got %s", i, *step.ExpectSeq, formatSeq(ev.Seq)))
	}
	return ev, nil
}

// submit builds and sends the step's message. Aliases resolve through
// result.Fibers; an alias whose creation failed resolves to "" and the
// message fails local validation.
func (r *Runner) submit(ctx context.Context, step Step, s *Scenario, keys []*signing.KeyPair, result *Result, ev *TraceEvent) (submit.Result, error) {
	switch {
	case step.Create != nil:
		c := step.Create
		def, err := canon.Marshal(s.Definitions[c.Definition])
		if err != nil {
			return submit.Result{}, fmt.Errorf("definition %s: %w", c.Definition, err)
		}
		data, err := document(c.Data)
		if err != nil {
			return submit.Result{}, fmt.Errorf("data: %w", err)
		}
		msg := message.CreateStateMachine{FiberID: c.ID, Definition: def, InitialData: data}
		if c.Parent != "" {
			msg.ParentFiberID = result.Fibers[c.Parent]
		}
		return r.client.Create(ctx, msg, keys...)

	case step.Transition != nil:
		tr := step.Transition
		ev.Event = tr.Event
		payload, err := document(tr.Payload)
		if err != nil {
			return submit.Result{}, fmt.Errorf("payload: %w", err)
		}
		id := result.Fibers[tr.Fiber]
		if tr.TargetSeq != nil {
			return r.client.Submit(ctx, message.TransitionStateMachine{
				FiberID: id, EventName: tr.Event, Payload: payload, TargetSequenceNumber: *tr.TargetSeq,
			}, keys...)
		}
		return r.client.Transition(ctx, id, tr.Event, payload, keys...)

	case step.Archive != nil:
		id := result.Fibers[step.Archive.Fiber]
		if step.Archive.TargetSeq != nil {
			return r.client.Submit(ctx, message.ArchiveStateMachine{
				FiberID: id, TargetSequenceNumber: *step.Archive.TargetSeq,
			}, keys...)
		}
		return r.client.Archive(ctx, id, keys...)
	}
	return submit.Result{}, fmt.Errorf("empty step")
}

// await waits for the step's expectations. Without any, a creation waits
// for the fiber to appear and an update for its sequence to move past the
// target.
func (r *Runner) await(ctx context.Context, step Step, id string, res submit.Result, timeout time.Duration) (wait.Result, error) {
	scope := wait.ForUpdate(res.Hash)
	switch {
	case step.ExpectState != "":
		wr, err := r.client.WaitForState(ctx, id, step.ExpectState, timeout, scope)
		if err != nil || !wr.Reached || step.ExpectSeq == nil {
			return wr, err
		}
		return r.client.WaitForSequence(ctx, id, *step.ExpectSeq, timeout, scope)
	case step.ExpectSeq != nil:
		return r.client.WaitForSequence(ctx, id, *step.ExpectSeq, timeout, scope)
	case step.Create != nil || res.TargetSeq == nil:
		return r.client.WaitForFiber(ctx, id, timeout, scope)
	default:
		return r.client.WaitForSequence(ctx, id, *res.TargetSeq+1, timeout, scope)
	}
}

// awaitRejection polls the rejection source until a record for hash
// appears. Benign codes count here, unlike in the wait primitives.
func (r *Runner) awaitRejection(ctx context.Context, fiberID, hash string, timeout time.Duration) (rejection.Record, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		records, err := r.client.Rejections(ctx, fiberID)
		switch {
		case err == nil:
			for _, rec := range records {
				if rec.UpdateHash == hash {
					return rec, true, nil
				}
			}
		case ctx.Err() != nil:
			return rejection.Record{}, false, ctx.Err()
		default:
			r.logger.Debug("rejection poll failed", "fiber", fiberID, "error", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return rejection.Record{}, false, nil
		}
		timer := time.NewTimer(min(r.interval, remaining))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return rejection.Record{}, false, ctx.Err()
		}
	}
}

// observe copies the fiber's current replica view into ev.
func (r *Runner) observe(ctx context.Context, id string, ev *TraceEvent) {
	if id == "" {
		return
	}
	rec, err := r.client.Fiber(ctx, id)
	if err != nil {
		if !ledger.IsNotFound(err) {
			r.logger.Debug("observe fiber", "fiber", id, "error", err)
		}
		return
	}
	seq := rec.SequenceNumber
	ev.State, ev.Seq, ev.Status = rec.CurrentState, &seq, rec.Status
}

func parseKeys(hexKeys []string) ([]*signing.KeyPair, error) {
	if len(hexKeys) == 0 {
		hexKeys = []string{DefaultKeyHex}
	}
	keys := make([]*signing.KeyPair, 0, len(hexKeys))
	for i, h := range hexKeys {
		k, err := signing.KeyPairFromHex(h)
		if err != nil {
			return nil, fmt.Errorf("keys[%d]: %w", i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// document canonicalizes a YAML mapping into a JSON object. A missing
// mapping is the empty object.
func document(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return json.RawMessage(`{}`), nil
	}
	return canon.Marshal(m)
}

func formatSeq(seq *int64) string {
	if seq == nil {
		return "none"
	}
	return fmt.Sprint(*seq)
}

// RunFake runs s against a fresh in-memory ledger. Fiber IDs come from
// testutil.SequentialIDs, so traces are byte-stable.
func RunFake(t testing.TB, s *Scenario) (*Result, error) {
	t.Helper()
	fl := testutil.NewFakeLedger(t)

	cfg := config.Default()
	cfg.LedgerURL = fl.URL()
	cfg.ReplicaURL = fl.URL()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.DefaultTimeout = 2 * time.Second

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := fiber.New(cfg,
		fiber.WithIDGenerator(testutil.NewSequentialIDs("fiber")),
		fiber.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return NewRunner(client,
		WithLogger(logger),
		WithStepTimeout(2*time.Second),
		WithPollInterval(5*time.Millisecond),
	).Run(context.Background(), s)
}
