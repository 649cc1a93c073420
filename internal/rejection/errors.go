package rejection

import (
	"errors"
	"fmt"
	"strings"
)

// RejectionError reports critical asynchronous rejections for a fiber.
// Records are attached in full so callers can inspect every code.
type RejectionError struct {
	FiberID string
	Records []Record
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("fiber %s rejected: %s", e.FiberID, Describe(e.Records))
}

// Entries returns every (code, message) pair across all records.
func (e *RejectionError) Entries() []ErrorEntry {
	var out []ErrorEntry
	for _, r := range e.Records {
		out = append(out, r.Errors...)
	}
	return out
}

// IsRejectionError returns true if err wraps a *RejectionError.
func IsRejectionError(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// AsRejectionError extracts a *RejectionError from err.
func AsRejectionError(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Describe formats records as "Type@ordinal [code: message; ...]" joined by
// " | ". An empty error list renders as "(no errors reported)".
func Describe(records []Record) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		var entries []string
		for _, e := range r.Errors {
			entries = append(entries, e.Code+": "+e.Message)
		}
		body := "(no errors reported)"
		if len(entries) > 0 {
			body = strings.Join(entries, "; ")
		}
		parts = append(parts, fmt.Sprintf("%s@%d [%s]", r.UpdateType, r.Ordinal, body))
	}
	return strings.Join(parts, " | ")
}
