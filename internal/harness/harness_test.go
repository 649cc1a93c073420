package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doorDefinitions = `
definitions:
  door:
    initialState: closed
    transitions:
      closed: {open: opened}
      opened: {close: closed}
    guards: {open: who}
`

func mustParse(t *testing.T, yamlText string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yamlText))
	require.NoError(t, err)
	return s
}

func TestRunWithGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"door_lifecycle", "door_rejections"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_UnreachedStateTimesOut(t *testing.T) {
	s := mustParse(t, `
name: wrong_state
description: Expects a state the door never reaches
timeout: 50ms
`+doorDefinitions+`
steps:
  - create: {as: door, definition: door}
    expect_state: opened
`)

	result, err := RunFake(t, s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, OutcomeTimeout, result.Trace[0].Outcome)
	assert.Equal(t, "closed", result.Trace[0].State)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "still pending")
}

func TestRun_UnexpectedRejectionIsReported(t *testing.T) {
	s := mustParse(t, `
name: guard_failure
description: A guarded event without its payload key
timeout: 2s
`+doorDefinitions+`
steps:
  - create: {as: door, definition: door}
  - transition: {fiber: door, event: open}
    expect_state: opened
  - transition: {fiber: door, event: open, payload: {who: carol}}
    expect_state: opened
    expect_seq: 1
`)

	result, err := RunFake(t, s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 3)

	rejected := result.Trace[1]
	assert.Equal(t, OutcomeRejected, rejected.Outcome)
	assert.Equal(t, []string{"GuardFailed"}, rejected.Codes)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected rejection")

	// The runner resynced, so the retry targets the authoritative sequence.
	retry := result.Trace[2]
	assert.Equal(t, OutcomeReached, retry.Outcome)
	require.NotNil(t, retry.TargetSeq)
	assert.Equal(t, int64(0), *retry.TargetSeq)
}

func TestRun_ExpectedRejectionMismatch(t *testing.T) {
	s := mustParse(t, `
name: wrong_code
description: Expects a different rejection code than the ledger produces
timeout: 2s
`+doorDefinitions+`
steps:
  - create: {as: door, definition: door}
  - transition: {fiber: door, event: open}
    expect_rejection: SequenceNumberMismatch
`)

	result, err := RunFake(t, s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, OutcomeRejected, result.Trace[1].Outcome)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "GuardFailed")
}

func TestRun_FailedAssertionsAreCollected(t *testing.T) {
	s := mustParse(t, `
name: bad_assertions
description: Every assertion here is wrong
timeout: 2s
`+doorDefinitions+`
steps:
  - create: {as: door, definition: door}
assertions:
  - {type: final_state, fiber: door, state: opened, seq: 4}
  - {type: rejection_count, fiber: door, count: 1}
  - {type: trace_count, action: archive, count: 1}
`)

	result, err := RunFake(t, s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `state="closed", want "opened"`)
	assert.Contains(t, result.Errors[0], "seq=0, want 4")
	assert.Contains(t, result.Errors[1], "rejection_count")
	assert.Contains(t, result.Errors[2], "0 occurrences")
}

func TestRun_ParentAliasResolves(t *testing.T) {
	s := mustParse(t, `
name: parent_child
description: Child fibers reference their parent by alias
timeout: 2s
`+doorDefinitions+`
steps:
  - create: {as: house, definition: door}
  - create: {as: room, definition: door, parent: house, data: {floor: 2}}
    expect_state: closed
`)

	result, err := RunFake(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, map[string]string{"house": "fiber-0001", "room": "fiber-0002"}, result.Fibers)
}

func TestRun_InvalidKeyFails(t *testing.T) {
	s := mustParse(t, `
name: bad_key
description: Keys must be hex
keys: [not-hex]
`+doorDefinitions+`
steps:
  - create: {as: door, definition: door}
`)

	_, err := RunFake(t, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys[0]")
}

func TestMarshalTrace_OmitsUnsetFields(t *testing.T) {
	seq := int64(0)
	r := NewResult()
	r.Fibers["a"] = "fiber-0001"
	r.addTrace(TraceEvent{Step: 0, Action: ActionCreate, Fiber: "a", Outcome: OutcomeReached, Seq: &seq})

	b, err := MarshalTrace("tiny", r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"fibers":{"a":"fiber-0001"},"scenario_name":"tiny","trace":[{"action":"create","fiber":"a","outcome":"reached","seq":0,"step":0}]}`,
		string(b))
}
