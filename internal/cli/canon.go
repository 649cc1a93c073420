package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/canon"
	"github.com/roach88/fiberclient/internal/signing"
)

// CanonOptions holds flags for the canon command.
type CanonOptions struct {
	*RootOptions
	Hash bool
}

// CanonResult is the canon command's JSON payload.
type CanonResult struct {
	Canonical string `json:"canonical"`
	Hash      string `json:"hash"`
}

// NewCanonCommand creates the canon command.
func NewCanonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CanonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "canon [file]",
		Short: "Print the canonical form of a JSON document",
		Long: `Print the canonical JSON form of a document, the exact bytes that are
hashed and signed. Reads stdin when no file (or "-") is given.

Examples:
  fiberctl canon payload.json
  echo '{"b":1,"a":2}' | fiberctl canon
  fiberctl canon --hash envelope.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCanon(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Hash, "hash", false, "print the content hash instead of the bytes")

	return cmd
}

func runCanon(opts *CanonOptions, args []string, cmd *cobra.Command) error {
	v, err := readJSON(cmd, args)
	if err != nil {
		return err
	}
	out, err := canon.Marshal(v)
	if err != nil {
		return WrapExitError(ExitCommandError, "canonicalize", err)
	}
	hash, err := signing.ContentHash(v)
	if err != nil {
		return WrapExitError(ExitCommandError, "hash", err)
	}

	if opts.Format == "json" {
		return opts.Formatter(cmd).Success(CanonResult{Canonical: string(out), Hash: hash})
	}
	if opts.Hash {
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// readInput reads the file named by args[0], or stdin when args is empty
// or "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read input", err)
	}
	return data, nil
}

// readJSON reads input and parses it with exact number handling.
func readJSON(cmd *cobra.Command, args []string) (any, error) {
	data, err := readInput(cmd, args)
	if err != nil {
		return nil, err
	}
	v, err := canon.Parse(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "parse JSON", err)
	}
	return v, nil
}
