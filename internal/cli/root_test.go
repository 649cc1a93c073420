package cli

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fiberctl", cmd.Use)
	assert.Contains(t, cmd.Long, "replica")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"canon", "address", "sign", "verify", "submit", "wait", "snapshot", "rejections", "history", "scenario"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestSubcommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	paths := [][]string{
		{"submit", "create"},
		{"submit", "transition"},
		{"submit", "archive"},
		{"submit", "raw"},
		{"wait", "fiber"},
		{"wait", "state"},
		{"wait", "seq"},
		{"wait", "snapshot"},
	}

	for _, p := range paths {
		sub, _, err := cmd.Find(p)
		require.NoError(t, err)
		assert.Equal(t, p[1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"ledger-url", "replica-url", "indexer-url", "journal", "key-hex", "key-file"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestSubmitCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	create, _, err := cmd.Find([]string{"submit", "create"})
	require.NoError(t, err)

	dataFlag := create.Flags().Lookup("data")
	require.NotNil(t, dataFlag)
	assert.Equal(t, "{}", dataFlag.DefValue)

	waitFlag := create.InheritedFlags().Lookup("wait")
	require.NotNil(t, waitFlag)
	assert.Equal(t, "false", waitFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := execute(t, nil, "--format", "invalid", "canon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fiberctl.yaml", `
ledger_url: http://ledger.example:9000
poll_interval: 250ms
journal_path: /tmp/from-file.db
`)
	opts := &RootOptions{ConfigPath: path, ReplicaURL: "http://replica.example:9100"}

	cfg, err := opts.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://ledger.example:9000", cfg.LedgerURL)
	assert.Equal(t, "http://replica.example:9100", cfg.ReplicaURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "/tmp/from-file.db", cfg.JournalPath)
}

func TestLoadConfig_RequiresLedgerURL(t *testing.T) {
	_, err := (&RootOptions{}).LoadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestKeys(t *testing.T) {
	dir := t.TempDir()
	keyFile := writeFile(t, dir, "b.key", testKeyB+"\n")

	keys, err := (&RootOptions{KeyHex: []string{testKeyA}, KeyFile: []string{keyFile}}).Keys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0].Address(), keys[1].Address())

	_, err = (&RootOptions{}).Keys()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = (&RootOptions{KeyHex: []string{"zz"}}).Keys()
	require.Error(t, err)

	_, err = (&RootOptions{KeyFile: []string{filepath.Join(dir, "absent.key")}}).Keys()
	require.Error(t, err)
}
