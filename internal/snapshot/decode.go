package snapshot

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// OnChainState is the decoded application state of one snapshot.
type OnChainState struct {
	Fibers map[string]FiberState `json:"fibers,omitempty"`
	Logs   map[string][]LogEntry `json:"logs,omitempty"`
}

// FiberState is one fiber's committed state.
type FiberState struct {
	FiberID        string          `json:"fiberId,omitempty"`
	CurrentState   string          `json:"currentState,omitempty"`
	SequenceNumber int64           `json:"sequenceNumber"`
	StateData      json.RawMessage `json:"stateData,omitempty"`
	Status         string          `json:"status,omitempty"`
}

// Fiber returns the committed state of fiberID.
func (s *OnChainState) Fiber(fiberID string) (FiberState, bool) {
	if s == nil {
		return FiberState{}, false
	}
	f, ok := s.Fibers[fiberID]
	return f, ok
}

// DecodeError reports a malformed application-state payload.
type DecodeError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode onChainState (%s): %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// envelope is the subset of a snapshot this package reads.
type envelope struct {
	Value *struct {
		Ordinal         int64 `json:"ordinal"`
		DataApplication *struct {
			OnChainState json.RawMessage `json:"onChainState"`
		} `json:"dataApplication"`
	} `json:"value"`
}

// Decode extracts and parses the application state of a snapshot
// document. It returns (nil, nil) when the snapshot carries no
// application-state part. Decoding is pure: the same bytes always yield
// structurally equal results.
func Decode(snapshotJSON []byte) (*OnChainState, error) {
	payload, err := Payload(snapshotJSON)
	if err != nil || payload == nil {
		return nil, err
	}
	return DecodeState(payload)
}

// Payload returns the raw onChainState bytes, or nil if absent.
func Payload(snapshotJSON []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(snapshotJSON, &env); err != nil {
		return nil, &DecodeError{Stage: "snapshot", Err: err}
	}
	if env.Value == nil || env.Value.DataApplication == nil {
		return nil, nil
	}
	raw := bytes.TrimSpace(env.Value.DataApplication.OnChainState)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	return bytesOf(raw)
}

// DecodeState parses UTF-8 JSON state bytes.
func DecodeState(payload []byte) (*OnChainState, error) {
	if !utf8.Valid(payload) {
		return nil, &DecodeError{Stage: "utf8", Err: errors.New("payload is not valid UTF-8")}
	}
	var st OnChainState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, &DecodeError{Stage: "json", Err: err}
	}
	return &st, nil
}

func bytesOf(raw json.RawMessage) ([]byte, error) {
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &DecodeError{Stage: "base64", Err: err}
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, &DecodeError{Stage: "base64", Err: err}
		}
		return b, nil

	case '[':
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return nil, &DecodeError{Stage: "bytes", Err: err}
		}
		out := make([]byte, len(ints))
		for i, n := range ints {
			if n < -128 || n > 255 {
				return nil, &DecodeError{Stage: "bytes", Err: fmt.Errorf("element %d: %d is not a byte", i, n)}
			}
			out[i] = byte(n) // two's complement for signed bytes
		}
		return out, nil

	default:
		return nil, &DecodeError{Stage: "bytes", Err: fmt.Errorf("unexpected onChainState encoding starting with %q", raw[0])}
	}
}
