package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/rejection"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("ledger_url: http://localhost:9000\n"), nil)
	require.NoError(t, err)

	want := Default()
	want.LedgerURL = "http://localhost:9000"
	want.ReplicaURL = "http://localhost:9000"
	assert.Equal(t, want, cfg)
}

func TestLoadFullFile(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "full.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, "https://l0.example.net", cfg.LedgerURL)
	assert.Equal(t, "https://replica.example.net:9200", cfg.ReplicaURL)
	assert.Equal(t, "https://indexer.example.net", cfg.IndexerURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.DefaultTimeout)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, []string{rejection.CodeSequenceNumberMismatch}, cfg.BenignCodes)
	assert.Equal(t, "/var/lib/fiberctl/journal.db", cfg.JournalPath)
	assert.Equal(t, 50, cfg.RejectionPageLimit)
	assert.Equal(t, "/v2/data", cfg.Endpoints.Submit)
	assert.Equal(t, ledger.DefaultEndpoints().Fiber, cfg.Endpoints.Fiber)
}

func TestOverridesWin(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "full.yaml"), map[string]any{
		"ledger_url":    "http://127.0.0.1:1",
		"poll_interval": "2s",
		"indexer_url":   nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1", cfg.LedgerURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "https://indexer.example.net", cfg.IndexerURL, "nil override is ignored")
}

func TestEmptyDocumentWithOverrides(t *testing.T) {
	cfg, err := Parse(nil, map[string]any{"ledger_url": "http://x"})
	require.NoError(t, err)
	assert.Equal(t, "http://x", cfg.ReplicaURL)
}

func TestEmptyBenignCodes(t *testing.T) {
	cfg, err := Parse([]byte("ledger_url: http://x\nbenign_codes: []\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.BenignCodes)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
	}{
		{"missing ledger url", "poll_interval: 1s\n", ErrCodeSchema},
		{"bad scheme", "ledger_url: ftp://x\n", ErrCodeSchema},
		{"bad duration", "ledger_url: http://x\npoll_interval: soon\n", ErrCodeSchema},
		{"numeric duration", "ledger_url: http://x\nhttp_timeout: 5\n", ErrCodeSchema},
		{"zero duration", "ledger_url: http://x\npoll_interval: 0s\n", ErrCodeSchema},
		{"page limit too large", "ledger_url: http://x\nrejection_page_limit: 101\n", ErrCodeSchema},
		{"page limit zero", "ledger_url: http://x\nrejection_page_limit: 0\n", ErrCodeSchema},
		{"unknown field", "ledger_url: http://x\nretries: 3\n", ErrCodeSchema},
		{"unknown endpoint", "ledger_url: http://x\nendpoints:\n  nope: /x\n", ErrCodeSchema},
		{"yaml syntax", "ledger_url: [\n", ErrCodeSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), nil)
			require.Error(t, err)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeRead, ce.Code)
}
