package signing

import (
	"errors"
	"fmt"
)

// KeyErrorCode categorizes key material failures.
type KeyErrorCode string

const (
	// ErrCodeMissingKey indicates no key material was supplied.
	ErrCodeMissingKey KeyErrorCode = "MISSING_KEY"

	// ErrCodeInvalidKey indicates malformed key material.
	ErrCodeInvalidKey KeyErrorCode = "INVALID_KEY"

	// ErrCodeInvalidSignerID indicates a proof ID that is not a public key.
	ErrCodeInvalidSignerID KeyErrorCode = "INVALID_SIGNER_ID"
)

// KeyError reports missing or invalid key material. It is always local and
// never retried.
type KeyError struct {
	Code    KeyErrorCode
	Message string
	Err     error
}

func (e *KeyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// IsKeyError returns true if err is (or wraps) a KeyError.
func IsKeyError(err error) bool {
	var ke *KeyError
	return errors.As(err, &ke)
}
