package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of fiber operations plus assertions on
// the resulting trace and ledger state.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed on it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions are named state-machine documents, sent as-is in
	// CreateStateMachine.definition.
	Definitions map[string]map[string]any `yaml:"definitions,omitempty"`

	// Keys are hex secp256k1 private keys. Every step is signed by all of
	// them. Empty means a single fixed development key.
	Keys []string `yaml:"keys,omitempty"`

	// Timeout bounds each step's wait, e.g. "2s". Empty uses the runner's
	// default.
	Timeout string `yaml:"timeout,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is exactly one of create, transition or archive, plus optional
// expectations about its outcome.
type Step struct {
	Create     *CreateStep     `yaml:"create,omitempty"`
	Transition *TransitionStep `yaml:"transition,omitempty"`
	Archive    *ArchiveStep    `yaml:"archive,omitempty"`

	// ExpectState waits for the fiber to reach this state.
	ExpectState string `yaml:"expect_state,omitempty"`

	// ExpectSeq waits for the fiber's sequence number and then requires it
	// to equal this value.
	ExpectSeq *int64 `yaml:"expect_seq,omitempty"`

	// ExpectRejection names an error code the ledger must reject this
	// step with. Benign codes are allowed here.
	ExpectRejection string `yaml:"expect_rejection,omitempty"`
}

// CreateStep creates a state-machine fiber and binds it to an alias.
type CreateStep struct {
	As         string         `yaml:"as"`
	ID         string         `yaml:"id,omitempty"`
	Definition string         `yaml:"definition"`
	Data       map[string]any `yaml:"data,omitempty"`
	Parent     string         `yaml:"parent,omitempty"`
}

// TransitionStep fires an event at an aliased fiber. TargetSeq overrides
// the coordinator, which is how stale submissions are scripted.
type TransitionStep struct {
	Fiber     string         `yaml:"fiber"`
	Event     string         `yaml:"event"`
	Payload   map[string]any `yaml:"payload,omitempty"`
	TargetSeq *int64         `yaml:"target_seq,omitempty"`
}

// ArchiveStep archives an aliased fiber.
type ArchiveStep struct {
	Fiber     string `yaml:"fiber"`
	TargetSeq *int64 `yaml:"target_seq,omitempty"`
}

// Assertion validates the trace or final ledger state.
type Assertion struct {
	// Type is one of final_state, no_rejections, rejection_count or
	// trace_count.
	Type string `yaml:"type"`

	// Fiber is the alias under test (final_state, no_rejections,
	// rejection_count).
	Fiber string `yaml:"fiber,omitempty"`

	// State, Seq and Status are compared when set (final_state).
	State  string `yaml:"state,omitempty"`
	Seq    *int64 `yaml:"seq,omitempty"`
	Status string `yaml:"status,omitempty"`

	// Code narrows rejection_count to records carrying this code.
	Code string `yaml:"code,omitempty"`

	// Action and Outcome select trace events (trace_count). Empty outcome
	// matches any.
	Action  string `yaml:"action,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState     = "final_state"
	AssertNoRejections   = "no_rejections"
	AssertRejectionCount = "rejection_count"
	AssertTraceCount     = "trace_count"
)

// Action returns the step's operation name, or "" if none is set.
func (s Step) Action() string {
	switch {
	case s.Create != nil:
		return ActionCreate
	case s.Transition != nil:
		return ActionTransition
	case s.Archive != nil:
		return ActionArchive
	}
	return ""
}

// Fiber returns the alias the step addresses.
func (s Step) Fiber() string {
	switch {
	case s.Create != nil:
		return s.Create.As
	case s.Transition != nil:
		return s.Transition.Fiber
	case s.Archive != nil:
		return s.Archive.Fiber
	}
	return ""
}

// StepTimeout parses Timeout, returning 0 when unset.
func (s *Scenario) StepTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	return d, nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// alias is created before it is used.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := s.StepTimeout(); err != nil {
		return err
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, s.Definitions, aliases); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, aliases); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, defs map[string]map[string]any, aliases map[string]bool) error {
	set := 0
	for _, present := range []bool{step.Create != nil, step.Transition != nil, step.Archive != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of create, transition or archive is required", i)
	}
	if step.ExpectSeq != nil && *step.ExpectSeq < 0 {
		return fmt.Errorf("steps[%d]: expect_seq must be non-negative", i)
	}
	if step.ExpectRejection != "" && (step.ExpectState != "" || step.ExpectSeq != nil) {
		return fmt.Errorf("steps[%d]: expect_rejection cannot be combined with expect_state or expect_seq", i)
	}

	switch {
	case step.Create != nil:
		c := step.Create
		if c.As == "" {
			return fmt.Errorf("steps[%d].create: as is required", i)
		}
		if aliases[c.As] {
			return fmt.Errorf("steps[%d].create: alias %q already defined", i, c.As)
		}
		if _, ok := defs[c.Definition]; !ok {
			return fmt.Errorf("steps[%d].create: unknown definition %q", i, c.Definition)
		}
		if c.Parent != "" && !aliases[c.Parent] {
			return fmt.Errorf("steps[%d].create: unknown parent %q", i, c.Parent)
		}
		aliases[c.As] = true
	case step.Transition != nil:
		tr := step.Transition
		if !aliases[tr.Fiber] {
			return fmt.Errorf("steps[%d].transition: unknown fiber %q", i, tr.Fiber)
		}
		if tr.Event == "" {
			return fmt.Errorf("steps[%d].transition: event is required", i)
		}
	case step.Archive != nil:
		if !aliases[step.Archive.Fiber] {
			return fmt.Errorf("steps[%d].archive: unknown fiber %q", i, step.Archive.Fiber)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, aliases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.State == "" && a.Seq == nil && a.Status == "" {
			return fmt.Errorf("assertions[%d]: final_state needs state, seq or status", index)
		}
		fallthrough
	case AssertNoRejections, AssertRejectionCount:
		if !aliases[a.Fiber] {
			return fmt.Errorf("assertions[%d]: unknown fiber %q", index, a.Fiber)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
