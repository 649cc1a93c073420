// Package config loads client configuration from YAML validated against an
// embedded CUE schema.
//
// The YAML document is decoded to a plain map, encoded into CUE, unified
// with #Config and validated concretely. Defaults live in the schema, so a
// file only needs ledger_url.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/rejection"
)

//go:embed schema.cue
var schemaCUE string

// Config is the validated client configuration.
type Config struct {
	LedgerURL  string
	ReplicaURL string // defaults to LedgerURL
	IndexerURL string // optional; rejection queries go to the replica without it

	PollInterval   time.Duration
	DefaultTimeout time.Duration
	HTTPTimeout    time.Duration

	BenignCodes        []string
	JournalPath        string
	RejectionPageLimit int

	Endpoints ledger.Endpoints
}

// wire mirrors #Config for cue.Value.Decode.
type wire struct {
	LedgerURL          string   `json:"ledger_url"`
	ReplicaURL         string   `json:"replica_url"`
	IndexerURL         string   `json:"indexer_url"`
	PollInterval       string   `json:"poll_interval"`
	DefaultTimeout     string   `json:"default_timeout"`
	HTTPTimeout        string   `json:"http_timeout"`
	BenignCodes        []string `json:"benign_codes"`
	JournalPath        string   `json:"journal_path"`
	RejectionPageLimit int      `json:"rejection_page_limit"`
	Endpoints          struct {
		Submit         string `json:"submit"`
		Fiber          string `json:"fiber"`
		FiberSequence  string `json:"fiber_sequence"`
		Snapshot       string `json:"snapshot"`
		LatestSnapshot string `json:"latest_snapshot"`
		LatestOrdinal  string `json:"latest_ordinal"`
		EpochProgress  string `json:"epoch_progress"`
		Rejections     string `json:"rejections"`
	} `json:"endpoints"`
}

// Error codes for ConfigError.
const (
	ErrCodeRead   = "CONFIG_READ"
	ErrCodeSyntax = "CONFIG_SYNTAX"
	ErrCodeSchema = "CONFIG_SCHEMA"
)

// ConfigError is a configuration that could not be read or validated.
type ConfigError struct {
	Code    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Default returns the schema defaults with no URLs set.
func Default() Config {
	return Config{
		PollInterval:       time.Second,
		DefaultTimeout:     30 * time.Second,
		HTTPTimeout:        10 * time.Second,
		BenignCodes:        rejection.DefaultBenignCodes(),
		RejectionPageLimit: rejection.MaxPageLimit,
		Endpoints:          ledger.DefaultEndpoints(),
	}
}

// Load reads and validates a YAML config file. overrides are applied on
// top of the file's top-level keys before validation; nil values are
// ignored.
func Load(path string, overrides map[string]any) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigError{Code: ErrCodeRead, Message: err.Error(), Err: err}
	}
	return Parse(data, overrides)
}

// Parse validates a YAML document. An empty document is valid input as
// long as overrides supply ledger_url.
func Parse(data []byte, overrides map[string]any) (Config, error) {
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, &ConfigError{Code: ErrCodeSyntax, Message: err.Error(), Err: err}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	for k, v := range overrides {
		if v != nil {
			doc[k] = v
		}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, &ConfigError{Code: ErrCodeSchema, Message: cueerrors.Details(err, nil), Err: err}
	}

	var w wire
	if err := v.Decode(&w); err != nil {
		return Config{}, &ConfigError{Code: ErrCodeSchema, Message: err.Error(), Err: err}
	}
	return fromWire(w)
}

func fromWire(w wire) (Config, error) {
	cfg := Config{
		LedgerURL:          w.LedgerURL,
		ReplicaURL:         w.ReplicaURL,
		IndexerURL:         w.IndexerURL,
		BenignCodes:        w.BenignCodes,
		JournalPath:        w.JournalPath,
		RejectionPageLimit: w.RejectionPageLimit,
		Endpoints: ledger.Endpoints{
			Submit:         w.Endpoints.Submit,
			Fiber:          w.Endpoints.Fiber,
			FiberSequence:  w.Endpoints.FiberSequence,
			Snapshot:       w.Endpoints.Snapshot,
			LatestSnapshot: w.Endpoints.LatestSnapshot,
			LatestOrdinal:  w.Endpoints.LatestOrdinal,
			EpochProgress:  w.Endpoints.EpochProgress,
			Rejections:     w.Endpoints.Rejections,
		}.WithDefaults(),
	}
	if cfg.ReplicaURL == "" {
		cfg.ReplicaURL = cfg.LedgerURL
	}
	if cfg.BenignCodes == nil {
		cfg.BenignCodes = []string{}
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"poll_interval", w.PollInterval, &cfg.PollInterval},
		{"default_timeout", w.DefaultTimeout, &cfg.DefaultTimeout},
		{"http_timeout", w.HTTPTimeout, &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, &ConfigError{Code: ErrCodeSchema, Message: fmt.Sprintf("%s: %v", d.field, err), Err: err}
		}
		if parsed <= 0 {
			return Config{}, &ConfigError{Code: ErrCodeSchema, Message: fmt.Sprintf("%s: must be positive", d.field)}
		}
		*d.dst = parsed
	}
	return cfg, nil
}
