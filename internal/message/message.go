package message

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Kind tags a message variant on the wire.
type Kind string

const (
	KindCreateStateMachine     Kind = "CreateStateMachine"
	KindTransitionStateMachine Kind = "TransitionStateMachine"
	KindArchiveStateMachine    Kind = "ArchiveStateMachine"
	KindCreateScript           Kind = "CreateScript"
	KindInvokeScript           Kind = "InvokeScript"
)

// Message is a sealed interface over the transaction kinds.
type Message interface {
	Kind() Kind
	Validate() error
	isMessage()
}

// CreateStateMachine creates a new fiber. It carries no sequence number
// because the fiber does not exist yet.
type CreateStateMachine struct {
	FiberID       string          `json:"fiberId,omitempty"`
	Definition    json.RawMessage `json:"definition"`
	InitialData   json.RawMessage `json:"initialData"`
	ParentFiberID string          `json:"parentFiberId,omitempty"`
}

// TransitionStateMachine fires eventName against a fiber.
type TransitionStateMachine struct {
	FiberID              string          `json:"fiberId"`
	EventName            string          `json:"eventName"`
	Payload              json.RawMessage `json:"payload"`
	TargetSequenceNumber int64           `json:"targetSequenceNumber"`
}

// ArchiveStateMachine retires a fiber.
type ArchiveStateMachine struct {
	FiberID              string `json:"fiberId"`
	TargetSequenceNumber int64  `json:"targetSequenceNumber"`
}

// CreateScript creates a side-effect-only fiber.
type CreateScript struct {
	FiberID       string          `json:"fiberId,omitempty"`
	ScriptProgram json.RawMessage `json:"scriptProgram"`
	InitialState  json.RawMessage `json:"initialState,omitempty"`
	AccessControl json.RawMessage `json:"accessControl,omitempty"`
}

// InvokeScript calls a method on a script fiber. TargetSequenceNumber is
// optional; without it the invocation is not sequence-bearing.
type InvokeScript struct {
	FiberID              string          `json:"fiberId"`
	Method               string          `json:"method"`
	Args                 json.RawMessage `json:"args"`
	TargetSequenceNumber *int64          `json:"targetSequenceNumber,omitempty"`
}

func (CreateStateMachine) Kind() Kind     { return KindCreateStateMachine }
func (TransitionStateMachine) Kind() Kind { return KindTransitionStateMachine }
func (ArchiveStateMachine) Kind() Kind    { return KindArchiveStateMachine }
func (CreateScript) Kind() Kind           { return KindCreateScript }
func (InvokeScript) Kind() Kind           { return KindInvokeScript }

func (CreateStateMachine) isMessage()     {}
func (TransitionStateMachine) isMessage() {}
func (ArchiveStateMachine) isMessage()    {}
func (CreateScript) isMessage()           {}
func (InvokeScript) isMessage()           {}

// SequenceInfo is the fiber and sequence number a message targets.
type SequenceInfo struct {
	FiberID   string
	TargetSeq int64
}

// ExtractSequenceInfo returns the sequence a message consumes, or false if
// the message is not sequence-bearing.
func ExtractSequenceInfo(m Message) (SequenceInfo, bool) {
	switch v := m.(type) {
	case CreateStateMachine, CreateScript:
		return SequenceInfo{}, false
	case TransitionStateMachine:
		return SequenceInfo{FiberID: v.FiberID, TargetSeq: v.TargetSequenceNumber}, true
	case ArchiveStateMachine:
		return SequenceInfo{FiberID: v.FiberID, TargetSeq: v.TargetSequenceNumber}, true
	case InvokeScript:
		if v.TargetSequenceNumber == nil {
			return SequenceInfo{}, false
		}
		return SequenceInfo{FiberID: v.FiberID, TargetSeq: *v.TargetSequenceNumber}, true
	default:
		return SequenceInfo{}, false
	}
}

// FiberID returns the fiber a message addresses. Empty for creations that
// have not been assigned an ID yet.
func FiberID(m Message) string {
	switch v := m.(type) {
	case CreateStateMachine:
		return v.FiberID
	case TransitionStateMachine:
		return v.FiberID
	case ArchiveStateMachine:
		return v.FiberID
	case CreateScript:
		return v.FiberID
	case InvokeScript:
		return v.FiberID
	default:
		return ""
	}
}

// WithSequence returns a copy of m targeting seq. Messages that cannot
// carry a sequence are returned unchanged.
func WithSequence(m Message, seq int64) Message {
	switch v := m.(type) {
	case TransitionStateMachine:
		v.TargetSequenceNumber = seq
		return v
	case ArchiveStateMachine:
		v.TargetSequenceNumber = seq
		return v
	case InvokeScript:
		v.TargetSequenceNumber = &seq
		return v
	default:
		return m
	}
}

// ValidationError reports a structurally invalid message.
type ValidationError struct {
	Kind  Kind
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s: %s", e.Kind, e.Field, e.Msg)
}

func (m CreateStateMachine) Validate() error {
	if m.FiberID != "" {
		if err := checkIdentifier(m.Kind(), "fiberId", m.FiberID); err != nil {
			return err
		}
	}
	if m.ParentFiberID != "" {
		if err := checkIdentifier(m.Kind(), "parentFiberId", m.ParentFiberID); err != nil {
			return err
		}
	}
	if len(m.Definition) == 0 {
		return &ValidationError{Kind: m.Kind(), Field: "definition", Msg: "required"}
	}
	return checkJSON(m.Kind(), "definition", m.Definition)
}

func (m TransitionStateMachine) Validate() error {
	if err := checkIdentifier(m.Kind(), "fiberId", m.FiberID); err != nil {
		return err
	}
	if err := checkIdentifier(m.Kind(), "eventName", m.EventName); err != nil {
		return err
	}
	if err := checkSeq(m.Kind(), m.TargetSequenceNumber); err != nil {
		return err
	}
	return checkJSON(m.Kind(), "payload", m.Payload)
}

func (m ArchiveStateMachine) Validate() error {
	if err := checkIdentifier(m.Kind(), "fiberId", m.FiberID); err != nil {
		return err
	}
	return checkSeq(m.Kind(), m.TargetSequenceNumber)
}

func (m CreateScript) Validate() error {
	if m.FiberID != "" {
		if err := checkIdentifier(m.Kind(), "fiberId", m.FiberID); err != nil {
			return err
		}
	}
	if len(m.ScriptProgram) == 0 {
		return &ValidationError{Kind: m.Kind(), Field: "scriptProgram", Msg: "required"}
	}
	if err := checkJSON(m.Kind(), "scriptProgram", m.ScriptProgram); err != nil {
		return err
	}
	if err := checkJSON(m.Kind(), "initialState", m.InitialState); err != nil {
		return err
	}
	return checkJSON(m.Kind(), "accessControl", m.AccessControl)
}

func (m InvokeScript) Validate() error {
	if err := checkIdentifier(m.Kind(), "fiberId", m.FiberID); err != nil {
		return err
	}
	if err := checkIdentifier(m.Kind(), "method", m.Method); err != nil {
		return err
	}
	if m.TargetSequenceNumber != nil {
		if err := checkSeq(m.Kind(), *m.TargetSequenceNumber); err != nil {
			return err
		}
	}
	return checkJSON(m.Kind(), "args", m.Args)
}

// checkIdentifier requires a non-empty NFC-normalized string, so two
// signers cannot produce visually identical but byte-distinct identifiers.
func checkIdentifier(k Kind, field, s string) error {
	if s == "" {
		return &ValidationError{Kind: k, Field: field, Msg: "required"}
	}
	if !norm.NFC.IsNormalString(s) {
		return &ValidationError{Kind: k, Field: field, Msg: "must be NFC-normalized"}
	}
	return nil
}

func checkSeq(k Kind, seq int64) error {
	if seq < 0 {
		return &ValidationError{Kind: k, Field: "targetSequenceNumber", Msg: "must be non-negative"}
	}
	return nil
}

func checkJSON(k Kind, field string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		return &ValidationError{Kind: k, Field: field, Msg: "not valid JSON"}
	}
	return nil
}
