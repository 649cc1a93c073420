package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fiberclient/internal/testutil"
)

func TestScenarioCommand_MatchesGolden(t *testing.T) {
	fl := testutil.NewFakeLedger(t)
	cfg := fakeConfig(t, fl)

	out, _, err := execute(t, nil, "--config", cfg, "scenario", filepath.Join("testdata", "scenarios"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ door_lifecycle")
	assert.Contains(t, out, "Scenario Summary: 1 passed, 0 failed, 1 total")
}

func TestScenarioCommand_GoldenMismatchAndUpdate(t *testing.T) {
	fl := testutil.NewFakeLedger(t)
	cfg := fakeConfig(t, fl)

	src, err := os.ReadFile(filepath.Join("testdata", "scenarios", "door_lifecycle.yaml"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("testdata", "scenarios", "golden", "door_lifecycle.golden"))
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "door_lifecycle.yaml", string(src))
	golden := writeFile(t, dir, filepath.Join("golden", "door_lifecycle.golden"), `{"scenario_name":"door_lifecycle","trace":[]}`)

	out, _, err := execute(t, nil, "--config", cfg, "--format", "json", "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var summary ScenarioSummary
	assert.Equal(t, CodeScenario, decodeError(t, out, &summary))
	require.Len(t, summary.Scenarios, 1)
	assert.False(t, summary.Scenarios[0].Pass)
	assert.Contains(t, summary.Scenarios[0].Errors[0], "does not match golden file")

	_, _, err = execute(t, nil, "--config", cfg, "scenario", dir, "--update")
	require.NoError(t, err)
	got, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	// Fiber IDs differ from run to run; the golden trace does not.
	_, _, err = execute(t, nil, "--config", cfg, "scenario", dir)
	require.NoError(t, err)
}

func TestScenarioCommand_FilterAndErrors(t *testing.T) {
	fl := testutil.NewFakeLedger(t)
	cfg := fakeConfig(t, fl)
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nsteps: [\n")

	out, _, err := execute(t, nil, "--config", cfg, "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "failed to load scenario")

	out, _, err = execute(t, nil, "--config", cfg, "scenario", dir, "--filter", "door*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, _, err = execute(t, nil, "--config", cfg, "scenario", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, nil, "--config", cfg, "scenario", filepath.Join(dir, "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
