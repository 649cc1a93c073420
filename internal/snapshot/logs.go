package snapshot

import "encoding/json"

// LogEntry is an untagged log record. Fields are kept raw so the shape
// tests can check presence without committing to a type.
type LogEntry map[string]json.RawMessage

// Has reports whether every key is present.
func (e LogEntry) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := e[k]; !ok {
			return false
		}
	}
	return true
}

// IsEventReceipt reports the eventName+success shape.
func (e LogEntry) IsEventReceipt() bool { return e.Has("eventName", "success") }

// IsOracleInvocation reports the method+result shape.
func (e LogEntry) IsOracleInvocation() bool { return e.Has("method", "result") }

// Ambiguous reports an entry carrying both shapes.
func (e LogEntry) Ambiguous() bool { return e.IsEventReceipt() && e.IsOracleInvocation() }

// EventReceipt is a state-machine event outcome.
type EventReceipt struct {
	FiberID   string `json:"fiberId,omitempty"`
	EventName string `json:"eventName"`
	Success   bool   `json:"success"`
	FromState string `json:"fromState,omitempty"`
	ToState   string `json:"toState,omitempty"`
	Ordinal   int64  `json:"ordinal,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OracleInvocation is a script method call outcome.
type OracleInvocation struct {
	FiberID string          `json:"fiberId,omitempty"`
	Method  string          `json:"method"`
	Args    json.RawMessage `json:"args,omitempty"`
	Result  json.RawMessage `json:"result"`
	Ordinal int64           `json:"ordinal,omitempty"`
}

// LogsForFiber returns fiberID's log entries in recorded order.
func LogsForFiber(st *OnChainState, fiberID string) []LogEntry {
	if st == nil {
		return nil
	}
	return st.Logs[fiberID]
}

// EventReceiptsForFiber returns entries of the EventReceipt shape.
// Entries that match the shape but fail to decode are skipped.
func EventReceiptsForFiber(st *OnChainState, fiberID string) []EventReceipt {
	var out []EventReceipt
	for _, e := range LogsForFiber(st, fiberID) {
		if !e.IsEventReceipt() {
			continue
		}
		var r EventReceipt
		if remarshal(e, &r) == nil {
			out = append(out, r)
		}
	}
	return out
}

// OracleInvocationsForFiber returns entries of the OracleInvocation shape.
func OracleInvocationsForFiber(st *OnChainState, fiberID string) []OracleInvocation {
	var out []OracleInvocation
	for _, e := range LogsForFiber(st, fiberID) {
		if !e.IsOracleInvocation() {
			continue
		}
		var inv OracleInvocation
		if remarshal(e, &inv) == nil {
			out = append(out, inv)
		}
	}
	return out
}

func remarshal(e LogEntry, dst any) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
