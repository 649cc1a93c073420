package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/config"
	"github.com/roach88/fiberclient/internal/fiber"
	"github.com/roach88/fiberclient/internal/signing"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath  string
	LedgerURL   string
	ReplicaURL  string
	IndexerURL  string
	JournalPath string

	KeyHex  []string
	KeyFile []string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for fiberctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fiberctl",
		Short: "fiberctl - drive ledger-backed state-machine fibers",
		Long: `Create, transition and observe fibers on a ledger.

Messages are canonicalized, signed with secp256k1 keys and posted to the
ledger. Reads go to the replica, which lags the ledger; the wait commands
poll it until an expectation holds.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	pf.StringVar(&opts.LedgerURL, "ledger-url", "", "ledger base URL (overrides config)")
	pf.StringVar(&opts.ReplicaURL, "replica-url", "", "read replica base URL (overrides config)")
	pf.StringVar(&opts.IndexerURL, "indexer-url", "", "rejection indexer base URL (overrides config)")
	pf.StringVar(&opts.JournalPath, "journal", "", "SQLite journal path (overrides config)")
	pf.StringArrayVar(&opts.KeyHex, "key-hex", nil, "hex private key; repeat for multiple signers")
	pf.StringArrayVar(&opts.KeyFile, "key-file", nil, "file holding a hex private key; repeatable")

	cmd.AddCommand(NewCanonCommand(opts))
	cmd.AddCommand(NewAddressCommand(opts))
	cmd.AddCommand(NewSignCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewWaitCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewRejectionsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Logger returns a text logger on the command's stderr. Warnings only,
// unless --verbose.
func (o *RootOptions) Logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// Formatter returns an OutputFormatter bound to the command's writers.
func (o *RootOptions) Formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// LoadConfig reads --config, if given, with URL and journal flags layered
// on top.
func (o *RootOptions) LoadConfig() (config.Config, error) {
	overrides := map[string]any{}
	for key, val := range map[string]string{
		"ledger_url":   o.LedgerURL,
		"replica_url":  o.ReplicaURL,
		"indexer_url":  o.IndexerURL,
		"journal_path": o.JournalPath,
	} {
		if val != "" {
			overrides[key] = val
		}
	}

	var (
		cfg config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.Load(o.ConfigPath, overrides)
	} else {
		cfg, err = config.Parse(nil, overrides)
	}
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}
	return cfg, nil
}

// NewClient builds a fiber.Client from the loaded config.
func (o *RootOptions) NewClient(cmd *cobra.Command) (*fiber.Client, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, err
	}
	c, err := fiber.New(cfg, fiber.WithLogger(o.Logger(cmd)))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "create client", err)
	}
	return c, nil
}

// Keys parses every --key-hex and --key-file. At least one is required.
func (o *RootOptions) Keys() ([]*signing.KeyPair, error) {
	raw := append([]string{}, o.KeyHex...)
	for _, path := range o.KeyFile {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "read key file", err)
		}
		raw = append(raw, strings.TrimSpace(string(b)))
	}
	if len(raw) == 0 {
		return nil, NewExitError(ExitCommandError, "a signing key is required (--key-hex or --key-file)")
	}

	keys := make([]*signing.KeyPair, 0, len(raw))
	for i, h := range raw {
		k, err := signing.KeyPairFromHex(h)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("key %d", i), err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}
