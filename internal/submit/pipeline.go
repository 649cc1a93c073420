// Package submit is the submission pipeline: sign, post, and keep the
// sequence coordinator in step with what the ledger accepted.
//
// This is the only package that calls sequence.Coordinator.Advance and
// Reset.
package submit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/fiberclient/internal/canon"
	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/message"
	"github.com/roach88/fiberclient/internal/sequence"
	"github.com/roach88/fiberclient/internal/signing"
)

// Ledger accepts encoded signed envelopes.
type Ledger interface {
	Submit(ctx context.Context, body []byte) (ledger.SubmitResult, error)
}

// LedgerFunc adapts a function to Ledger.
type LedgerFunc func(ctx context.Context, body []byte) (ledger.SubmitResult, error)

// Submit implements Ledger.
func (f LedgerFunc) Submit(ctx context.Context, body []byte) (ledger.SubmitResult, error) {
	return f(ctx, body)
}

// Status is the outcome of one attempt.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusFailed   Status = "failed"
)

// Attempt describes one submission attempt for recording.
type Attempt struct {
	ContentHash string
	LedgerHash  string
	FiberID     string
	Kind        message.Kind
	TargetSeq   *int64
	Status      Status
	Error       string
	Signers     []string
}

// Recorder observes attempts. Errors are logged, never propagated.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// Result is an accepted submission.
type Result struct {
	// Hash is the ledger's transaction hash.
	Hash string
	// Ordinal is set only when the ledger assigns one synchronously.
	Ordinal *int64
	// ContentHash is the hex SHA-256 of the canonical envelope.
	ContentHash string
	FiberID     string
	Kind        message.Kind
	TargetSeq   *int64
	Message     message.Message
	Signed      *signing.SignedMessage
}

// Pipeline submits messages. Safe for concurrent use.
type Pipeline struct {
	ledger   Ledger
	seq      *sequence.Coordinator
	ids      message.IDGenerator
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithIDGenerator sets the fiber ID generator for creations without one.
// Default: UUIDv7Generator.
func WithIDGenerator(g message.IDGenerator) Option {
	return func(p *Pipeline) {
		p.ids = g
	}
}

// WithRecorder attaches an attempt recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline.
func New(l Ledger, seq *sequence.Coordinator, opts ...Option) *Pipeline {
	p := &Pipeline{
		ledger: l,
		seq:    seq,
		ids:    message.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Coordinator returns the pipeline's sequence coordinator.
func (p *Pipeline) Coordinator() *sequence.Coordinator {
	return p.seq
}

// Submit signs msg with every key and posts it. The caller picks the
// target sequence; Submit does not take the fiber lock. Use SubmitNext to
// let the coordinator pick it.
//
// On success the coordinator advances past a sequence-bearing message's
// target. A network or ledger failure resets it for that fiber; local
// failures leave it untouched since nothing was sent.
func (p *Pipeline) Submit(ctx context.Context, msg message.Message, keys ...*signing.KeyPair) (Result, error) {
	msg = message.AssignFiberID(msg, p.ids)
	info, seqBearing := message.ExtractSequenceInfo(msg)

	res := Result{
		FiberID: message.FiberID(msg),
		Kind:    msg.Kind(),
		Message: msg,
	}
	if seqBearing {
		target := info.TargetSeq
		res.TargetSeq = &target
	}

	if err := msg.Validate(); err != nil {
		return Result{}, p.fail(ctx, res, "", &SubmissionError{Code: ErrCodeInvalidMessage, Err: err})
	}

	env := message.Wrap(msg)
	signed, err := signing.BatchSign(ctx, env, keys...)
	if err != nil {
		return Result{}, p.fail(ctx, res, "", &SubmissionError{Code: ErrCodeSigning, Err: err})
	}
	res.Signed = signed

	contentHash, err := signing.ContentHash(env)
	if err != nil {
		return Result{}, p.fail(ctx, res, "", &SubmissionError{Code: ErrCodeSigning, Err: err})
	}
	res.ContentHash = contentHash

	body, err := canon.Marshal(signed)
	if err != nil {
		return Result{}, p.fail(ctx, res, contentHash, &SubmissionError{Code: ErrCodeSigning, Err: err})
	}

	out, err := p.ledger.Submit(ctx, body)
	if err != nil {
		return Result{}, p.fail(ctx, res, contentHash, classify(err))
	}

	if seqBearing {
		p.seq.Advance(info.FiberID, info.TargetSeq)
	}
	res.Hash = out.Hash
	res.Ordinal = out.Ordinal

	p.logger.Info("submission accepted",
		"kind", res.Kind,
		"fiber", res.FiberID,
		"seq", seqAttr(res.TargetSeq),
		"hash", res.Hash,
	)
	p.record(ctx, Attempt{
		ContentHash: contentHash,
		LedgerHash:  out.Hash,
		FiberID:     res.FiberID,
		Kind:        res.Kind,
		TargetSeq:   res.TargetSeq,
		Status:      StatusAccepted,
		Signers:     signed.Signers(),
	})
	return res, nil
}

// SubmitNext holds fiberID's lock across the authoritative read, signing,
// posting and the coordinator update, so concurrent callers in this process
// receive strictly increasing sequences. build receives the sequence to
// target and must return a sequence-bearing message for fiberID; its
// target is overwritten with seq regardless.
func (p *Pipeline) SubmitNext(ctx context.Context, fiberID string, build func(seq int64) message.Message, keys ...*signing.KeyPair) (Result, error) {
	seq, release, err := p.seq.Reserve(ctx, fiberID)
	if err != nil {
		return Result{}, &SubmissionError{Code: ErrCodeNetwork, FiberID: fiberID, Err: err}
	}
	defer release()

	msg := message.WithSequence(build(seq), seq)
	info, ok := message.ExtractSequenceInfo(msg)
	if !ok || info.FiberID != fiberID {
		return Result{}, &SubmissionError{
			Code:    ErrCodeInvalidMessage,
			FiberID: fiberID,
			Err:     fmt.Errorf("%s does not target fiber %s with a sequence", msg.Kind(), fiberID),
		}
	}
	return p.Submit(ctx, msg, keys...)
}

// Resync drops optimistic sequence state for fiberID. Call it after
// learning that an accepted submission was rejected asynchronously, such
// as losing a sequence race to another process; the next SubmitNext then
// trusts only the authoritative read.
func (p *Pipeline) Resync(fiberID string) {
	p.seq.Reset(fiberID)
	p.logger.Info("sequence resynced", "fiber", fiberID)
}

// fail resets the coordinator when a sequence-bearing message reached the
// ledger, records and logs the failure, and returns se filled in with
// message context.
func (p *Pipeline) fail(ctx context.Context, res Result, contentHash string, se *SubmissionError) error {
	se.FiberID = res.FiberID
	se.TargetSeq = res.TargetSeq
	if res.TargetSeq != nil && IsRetryable(se) {
		p.seq.Reset(res.FiberID)
	}

	p.logger.Warn("submission failed",
		"kind", res.Kind,
		"fiber", res.FiberID,
		"seq", seqAttr(res.TargetSeq),
		"code", se.Code,
		"error", se.Error(),
	)
	var signers []string
	if res.Signed != nil {
		signers = res.Signed.Signers()
	}
	p.record(ctx, Attempt{
		ContentHash: contentHash,
		FiberID:     res.FiberID,
		Kind:        res.Kind,
		TargetSeq:   res.TargetSeq,
		Status:      StatusFailed,
		Error:       se.Error(),
		Signers:     signers,
	})
	return se
}

func (p *Pipeline) record(ctx context.Context, a Attempt) {
	if p.recorder == nil || a.ContentHash == "" {
		return
	}
	if err := p.recorder.RecordAttempt(ctx, a); err != nil {
		p.logger.Warn("record submission", "hash", a.ContentHash, "error", err)
	}
}

func classify(err error) *SubmissionError {
	if se, ok := ledger.AsStatusError(err); ok {
		msg := se.Message
		if msg == "" {
			msg = se.Body
		}
		return &SubmissionError{Code: ErrCodeRejected, Status: se.StatusCode, Message: msg, Err: err}
	}
	return &SubmissionError{Code: ErrCodeNetwork, Err: err}
}

func seqAttr(seq *int64) any {
	if seq == nil {
		return "none"
	}
	return *seq
}
