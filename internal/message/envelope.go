package message

import (
	"encoding/json"
	"fmt"
)

// Envelope is the externally tagged wire form of a Message. It is the
// value that gets canonicalized, signed and hashed.
type Envelope struct {
	Message Message
}

// Wrap returns the envelope for m.
func Wrap(m Message) Envelope {
	return Envelope{Message: m}
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Message == nil {
		return nil, fmt.Errorf("marshal envelope: nil message")
	}
	body, err := json.Marshal(e.Message)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Message.Kind(), err)
	}
	return json.Marshal(map[Kind]json.RawMessage{e.Message.Kind(): body})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	m, err := Decode(data)
	if err != nil {
		return err
	}
	e.Message = m
	return nil
}

// Decode parses a tagged envelope back into its variant.
func Decode(data []byte) (Message, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("decode envelope: expected exactly one kind, got %d", len(tagged))
	}

	for kind, body := range tagged {
		switch Kind(kind) {
		case KindCreateStateMachine:
			var m CreateStateMachine
			if err := decodeBody(kind, body, &m); err != nil {
				return nil, err
			}
			return m, nil
		case KindTransitionStateMachine:
			var m TransitionStateMachine
			if err := decodeBody(kind, body, &m); err != nil {
				return nil, err
			}
			return m, nil
		case KindArchiveStateMachine:
			var m ArchiveStateMachine
			if err := decodeBody(kind, body, &m); err != nil {
				return nil, err
			}
			return m, nil
		case KindCreateScript:
			var m CreateScript
			if err := decodeBody(kind, body, &m); err != nil {
				return nil, err
			}
			return m, nil
		case KindInvokeScript:
			var m InvokeScript
			if err := decodeBody(kind, body, &m); err != nil {
				return nil, err
			}
			return m, nil
		default:
			return nil, fmt.Errorf("decode envelope: unknown kind %q", kind)
		}
	}
	return nil, fmt.Errorf("decode envelope: empty")
}

func decodeBody(kind string, body json.RawMessage, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}
