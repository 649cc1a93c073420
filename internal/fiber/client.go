// Package fiber is the client façade: one handle that owns a ledger
// transport, a sequence coordinator, the submission pipeline, the
// rejection checker, the waiter and an optional journal.
//
// Each Client has its own coordinator. Two Clients in one process do not
// share optimistic sequence state, so tests can run independent clients
// side by side.
package fiber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/fiberclient/internal/config"
	"github.com/roach88/fiberclient/internal/journal"
	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/message"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/sequence"
	"github.com/roach88/fiberclient/internal/signing"
	"github.com/roach88/fiberclient/internal/snapshot"
	"github.com/roach88/fiberclient/internal/submit"
	"github.com/roach88/fiberclient/internal/wait"
)

// Client drives fibers on one ledger. Safe for concurrent use.
type Client struct {
	cfg     config.Config
	logger  *slog.Logger
	ledger  *ledger.Client
	seq     *sequence.Coordinator
	submit  *submit.Pipeline
	checker *rejection.Checker
	waiter  *wait.Waiter

	journal     *journal.Journal
	ownsJournal bool
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	ids        message.IDGenerator
	journal    *journal.Journal
}

// WithLogger sets the logger for every component. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHTTPClient replaces the transport's http.Client. The configured
// http_timeout still applies, on a copy of hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithIDGenerator sets the fiber ID generator for creations.
func WithIDGenerator(g message.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithJournal attaches an already-open journal. The Client does not close
// it. Without this option a journal is opened from cfg.JournalPath, if set.
func WithJournal(j *journal.Journal) Option {
	return func(o *options) {
		o.journal = j
	}
}

// New wires a Client from cfg.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	o := options{logger: slog.Default(), ids: message.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}

	lopts := []ledger.Option{
		ledger.WithEndpoints(cfg.Endpoints),
		ledger.WithLogger(o.logger),
	}
	if o.httpClient != nil {
		lopts = append(lopts, ledger.WithHTTPClient(o.httpClient))
	}
	// cfg.HTTPTimeout wins over a supplied client's own timeout.
	lopts = append(lopts, ledger.WithTimeout(cfg.HTTPTimeout))
	if cfg.IndexerURL != "" {
		iu, err := ledger.ParseBaseURL(cfg.IndexerURL)
		if err != nil {
			return nil, fmt.Errorf("indexer url: %w", err)
		}
		lopts = append(lopts, ledger.WithIndexer(iu))
	}
	lc, err := ledger.New(cfg.LedgerURL, cfg.ReplicaURL, lopts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		logger:  o.logger,
		ledger:  lc,
		seq:     sequence.New(lc, sequence.WithLogger(o.logger)),
		journal: o.journal,
	}
	if c.journal == nil && cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		c.journal, c.ownsJournal = j, true
	}

	sopts := []submit.Option{submit.WithIDGenerator(o.ids), submit.WithLogger(o.logger)}
	if c.journal != nil {
		sopts = append(sopts, submit.WithRecorder(c.journal))
	}
	c.submit = submit.New(lc, c.seq, sopts...)

	c.checker = rejection.NewChecker(lc,
		rejection.NewClassifier(cfg.BenignCodes...),
		rejection.WithPageLimit(cfg.RejectionPageLimit),
		rejection.WithCheckerLogger(o.logger),
	)
	c.waiter = wait.New(lc,
		wait.WithInterval(cfg.PollInterval),
		wait.WithRejectionChecker(c.checker),
		wait.WithLogger(o.logger),
	)
	return c, nil
}

// Close releases a journal the Client opened itself.
func (c *Client) Close() error {
	if c.ownsJournal && c.journal != nil {
		return c.journal.Close()
	}
	return nil
}

// Ledger returns the transport.
func (c *Client) Ledger() *ledger.Client { return c.ledger }

// Coordinator returns the sequence coordinator.
func (c *Client) Coordinator() *sequence.Coordinator { return c.seq }

// Journal returns the journal, or nil.
func (c *Client) Journal() *journal.Journal { return c.journal }

// Submit submits msg exactly as given.
func (c *Client) Submit(ctx context.Context, msg message.Message, keys ...*signing.KeyPair) (submit.Result, error) {
	return c.submit.Submit(ctx, msg, keys...)
}

// Create creates a state-machine fiber. An empty FiberID is generated.
func (c *Client) Create(ctx context.Context, msg message.CreateStateMachine, keys ...*signing.KeyPair) (submit.Result, error) {
	return c.submit.Submit(ctx, msg, keys...)
}

// CreateScript creates a script fiber. An empty FiberID is generated.
func (c *Client) CreateScript(ctx context.Context, msg message.CreateScript, keys ...*signing.KeyPair) (submit.Result, error) {
	return c.submit.Submit(ctx, msg, keys...)
}

// Transition sends event to fiberID at the coordinator's next sequence.
func (c *Client) Transition(ctx context.Context, fiberID, event string, payload json.RawMessage, keys ...*signing.KeyPair) (submit.Result, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	return c.submit.SubmitNext(ctx, fiberID, func(seq int64) message.Message {
		return message.TransitionStateMachine{FiberID: fiberID, EventName: event, Payload: payload, TargetSequenceNumber: seq}
	}, keys...)
}

// Archive archives fiberID at the coordinator's next sequence.
func (c *Client) Archive(ctx context.Context, fiberID string, keys ...*signing.KeyPair) (submit.Result, error) {
	return c.submit.SubmitNext(ctx, fiberID, func(seq int64) message.Message {
		return message.ArchiveStateMachine{FiberID: fiberID, TargetSequenceNumber: seq}
	}, keys...)
}

// InvokeScript calls method on a script fiber at the next sequence.
func (c *Client) InvokeScript(ctx context.Context, fiberID, method string, args json.RawMessage, keys ...*signing.KeyPair) (submit.Result, error) {
	if args == nil {
		args = json.RawMessage(`[]`)
	}
	return c.submit.SubmitNext(ctx, fiberID, func(seq int64) message.Message {
		return message.InvokeScript{FiberID: fiberID, Method: method, Args: args, TargetSequenceNumber: &seq}
	}, keys...)
}

// Resync forgets optimistic sequence state for fiberID.
func (c *Client) Resync(fiberID string) {
	c.submit.Resync(fiberID)
}

// CreateAndWait creates a fiber and waits for the replica to report it.
func (c *Client) CreateAndWait(ctx context.Context, msg message.CreateStateMachine, timeout time.Duration, keys ...*signing.KeyPair) (submit.Result, wait.Result, error) {
	res, err := c.Create(ctx, msg, keys...)
	if err != nil {
		return res, wait.Result{}, err
	}
	wr, err := c.WaitForFiber(ctx, res.FiberID, timeout, wait.ForUpdate(res.Hash))
	return res, wr, err
}

// TransitionAndWait transitions a fiber and waits for expectedState. A
// critical rejection of this transition ends the wait early.
func (c *Client) TransitionAndWait(ctx context.Context, fiberID, event string, payload json.RawMessage, expectedState string, timeout time.Duration, keys ...*signing.KeyPair) (submit.Result, wait.Result, error) {
	res, err := c.Transition(ctx, fiberID, event, payload, keys...)
	if err != nil {
		return res, wait.Result{}, err
	}
	wr, err := c.WaitForState(ctx, fiberID, expectedState, timeout, wait.ForUpdate(res.Hash))
	return res, wr, err
}

// WaitForFiber waits for fiberID to appear. timeout <= 0 uses the
// configured default.
func (c *Client) WaitForFiber(ctx context.Context, fiberID string, timeout time.Duration, opts ...wait.CallOption) (wait.Result, error) {
	return c.waiter.WaitForFiber(ctx, fiberID, c.timeout(timeout), opts...)
}

// WaitForState waits for fiberID to reach expected.
func (c *Client) WaitForState(ctx context.Context, fiberID, expected string, timeout time.Duration, opts ...wait.CallOption) (wait.Result, error) {
	return c.waiter.WaitForState(ctx, fiberID, expected, c.timeout(timeout), opts...)
}

// WaitForSequence waits for fiberID's authoritative sequence to reach target.
func (c *Client) WaitForSequence(ctx context.Context, fiberID string, target int64, timeout time.Duration, opts ...wait.CallOption) (wait.Result, error) {
	return c.waiter.WaitForSequence(ctx, fiberID, target, c.timeout(timeout), opts...)
}

// WaitForSnapshot waits for a snapshot ordinal greater than minOrdinal.
func (c *Client) WaitForSnapshot(ctx context.Context, minOrdinal int64, timeout time.Duration, opts ...wait.CallOption) (wait.Result, error) {
	return c.waiter.WaitForSnapshot(ctx, minOrdinal, c.timeout(timeout), opts...)
}

// AssertNoRejections checks fiberID for critical rejections. Observed
// records are journaled when a journal is attached.
func (c *Client) AssertNoRejections(ctx context.Context, fiberID string) (rejection.Result, error) {
	res, err := c.checker.AssertNoRejections(ctx, fiberID)
	if err != nil {
		return res, err
	}
	if c.journal != nil {
		all := append(append([]rejection.Record{}, res.Benign...), res.Critical...)
		if _, err := c.journal.RecordRejections(ctx, all, c.checker.Classifier()); err != nil {
			c.logger.Warn("journal rejections", "fiber", fiberID, "error", err)
		}
	}
	return res, nil
}

// Rejections lists raw rejection records for fiberID.
func (c *Client) Rejections(ctx context.Context, fiberID string) ([]rejection.Record, error) {
	return c.checker.Fetch(ctx, fiberID)
}

// Fiber reads a fiber from the replica.
func (c *Client) Fiber(ctx context.Context, fiberID string) (ledger.FiberRecord, error) {
	return c.ledger.Fiber(ctx, fiberID)
}

// State fetches and decodes a snapshot. ordinal < 0 means latest. The
// state is nil when the snapshot has no application part.
func (c *Client) State(ctx context.Context, ordinal int64) (*snapshot.OnChainState, ledger.Snapshot, error) {
	var (
		snap ledger.Snapshot
		err  error
	)
	if ordinal < 0 {
		snap, err = c.ledger.LatestSnapshot(ctx)
	} else {
		snap, err = c.ledger.Snapshot(ctx, ordinal)
	}
	if err != nil {
		return nil, ledger.Snapshot{}, err
	}
	st, err := snapshot.Decode(snap.Raw)
	if err != nil {
		return nil, snap, fmt.Errorf("snapshot %d: %w", snap.Ordinal, err)
	}
	return st, snap, nil
}

func (c *Client) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return c.cfg.DefaultTimeout
}
