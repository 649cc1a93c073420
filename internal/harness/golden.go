package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fiberclient/internal/canon"
)

// TraceSnapshot is the golden-file form of a run. It is serialized with
// canonical JSON so the bytes are deterministic.
type TraceSnapshot struct {
	ScenarioName string            `json:"scenario_name"`
	Fibers       map[string]string `json:"fibers,omitempty"`
	Trace        []TraceEvent      `json:"trace"`
}

// MarshalTrace renders result as canonical TraceSnapshot bytes.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	return canon.Marshal(TraceSnapshot{
		ScenarioName: scenarioName,
		Fibers:       result.Fibers,
		Trace:        result.Trace,
	})
}

// RunWithGolden runs scenario against an in-memory ledger and compares the
// trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := RunFake(t, scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares result's trace against a golden file without
// re-running anything.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
