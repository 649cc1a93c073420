package submit

import (
	"errors"
	"fmt"
)

// SubmissionErrorCode categorizes submission failures.
type SubmissionErrorCode string

const (
	// ErrCodeInvalidMessage: the message failed local validation. Never sent.
	ErrCodeInvalidMessage SubmissionErrorCode = "INVALID_MESSAGE"

	// ErrCodeSigning: key material missing or the message could not be
	// canonicalized for signing. Never sent.
	ErrCodeSigning SubmissionErrorCode = "SIGNING_FAILED"

	// ErrCodeNetwork: the request did not produce an HTTP response
	// (connection failure, timeout, cancellation).
	ErrCodeNetwork SubmissionErrorCode = "NETWORK"

	// ErrCodeRejected: the ledger answered with a non-2xx status.
	ErrCodeRejected SubmissionErrorCode = "REJECTED"
)

// SubmissionError is a failed submission. For sequence-bearing messages the
// coordinator has already been reset when this is returned, so a retry
// re-reads authoritative state.
type SubmissionError struct {
	Code SubmissionErrorCode

	// Status is the HTTP status for ErrCodeRejected, else 0.
	Status int

	// Message is the backend's message when it sent one.
	Message string

	FiberID   string
	TargetSeq *int64

	Err error
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.FiberID != "" && e.TargetSeq != nil:
		return fmt.Sprintf("%s: %s (fiber=%s, seq=%d)", e.Code, msg, e.FiberID, *e.TargetSeq)
	case e.FiberID != "":
		return fmt.Sprintf("%s: %s (fiber=%s)", e.Code, msg, e.FiberID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Unwrap returns the underlying error.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// IsSubmissionError returns true if err wraps a *SubmissionError.
func IsSubmissionError(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}

// AsSubmissionError extracts a *SubmissionError from err.
func AsSubmissionError(err error) (*SubmissionError, bool) {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable reports whether a caller may retry after a fresh read:
// network failures and backend rejections, not local errors.
func IsRetryable(err error) bool {
	se, ok := AsSubmissionError(err)
	if !ok {
		return false
	}
	return se.Code == ErrCodeNetwork || se.Code == ErrCodeRejected
}
