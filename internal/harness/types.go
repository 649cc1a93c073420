package harness

// Step actions as they appear in the trace.
const (
	ActionCreate     = "create"
	ActionTransition = "transition"
	ActionArchive    = "archive"
)

// Step outcomes.
const (
	OutcomeReached  = "reached"  // expectations observed on the replica
	OutcomeRejected = "rejected" // the ledger rejected the update
	OutcomeTimeout  = "timeout"  // still pending when the step timed out
	OutcomeFailed   = "failed"   // submission never reached the ledger
)

// TraceEvent records one step. Fibers appear by alias so traces are stable
// across runs that generate different fiber IDs.
type TraceEvent struct {
	Step      int      `json:"step"`
	Action    string   `json:"action"`
	Fiber     string   `json:"fiber"`
	Event     string   `json:"event,omitempty"`
	TargetSeq *int64   `json:"target_seq,omitempty"`
	Outcome   string   `json:"outcome"`
	State     string   `json:"state,omitempty"`
	Seq       *int64   `json:"seq,omitempty"`
	Status    string   `json:"status,omitempty"`
	Codes     []string `json:"codes,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per executed step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Fibers maps aliases to the fiber IDs they were created with.
	Fibers map[string]string `json:"fibers"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Fibers: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
