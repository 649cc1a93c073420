package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/canon"
	"github.com/roach88/fiberclient/internal/signing"
)

// KeyInfo describes one signing identity.
type KeyInfo struct {
	Address    string `json:"address"`
	SignerID   string `json:"signer_id"`
	PrivateKey string `json:"private_key,omitempty"`
}

// KeyList is the address command's payload.
type KeyList []KeyInfo

func (l KeyList) String() string {
	var b strings.Builder
	for i, k := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %s", k.Address, k.SignerID)
		if k.PrivateKey != "" {
			fmt.Fprintf(&b, "\n  private key: %s", k.PrivateKey)
		}
	}
	return b.String()
}

// AddressOptions holds flags for the address command.
type AddressOptions struct {
	*RootOptions
	Generate bool
}

// NewAddressCommand creates the address command.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "address",
		Short: "Show the address and signer ID of each key",
		Long: `Show the ledger address and signer ID derived from each --key-hex and
--key-file. With --generate, create a fresh key instead and print its
private key once.

Examples:
  fiberctl address --key-file ./alice.key
  fiberctl address --generate`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddress(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Generate, "generate", false, "generate a new key pair")

	return cmd
}

func runAddress(opts *AddressOptions, cmd *cobra.Command) error {
	if opts.Generate {
		k, err := signing.GenerateKeyPair()
		if err != nil {
			return WrapExitError(ExitCommandError, "generate key", err)
		}
		return opts.Formatter(cmd).Success(KeyList{{
			Address:    k.Address(),
			SignerID:   k.SignerID(),
			PrivateKey: k.PrivateKeyHex(),
		}})
	}

	keys, err := opts.Keys()
	if err != nil {
		return err
	}
	list := make(KeyList, 0, len(keys))
	for _, k := range keys {
		list = append(list, KeyInfo{Address: k.Address(), SignerID: k.SignerID()})
	}
	return opts.Formatter(cmd).Success(list)
}

// SignOptions holds flags for the sign command.
type SignOptions struct {
	*RootOptions
	CoSign bool
}

// NewSignCommand creates the sign command.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Sign a JSON value",
		Long: `Sign a JSON value with every configured key and print the signed message
{"value": ..., "proofs": [...]} in canonical form.

With --cosign the input must already be a signed message; the keys' proofs
are merged into it, which is how co-signers sign one transaction in turn.

Examples:
  fiberctl sign --key-file a.key envelope.json > signed.json
  fiberctl sign --key-file b.key --cosign signed.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.CoSign, "cosign", false, "add proofs to an existing signed message")

	return cmd
}

func runSign(opts *SignOptions, args []string, cmd *cobra.Command) error {
	keys, err := opts.Keys()
	if err != nil {
		return err
	}

	var sm *signing.SignedMessage
	if opts.CoSign {
		data, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		if sm, err = parseSigned(data); err != nil {
			return err
		}
		for _, k := range keys {
			if err := sm.CoSign(k); err != nil {
				return WrapExitError(ExitCommandError, "co-sign", err)
			}
		}
	} else {
		v, err := readJSON(cmd, args)
		if err != nil {
			return err
		}
		if sm, err = signing.BatchSign(cmd.Context(), v, keys...); err != nil {
			return WrapExitError(ExitCommandError, "sign", err)
		}
	}

	out, err := canon.Marshal(sm)
	if err != nil {
		return WrapExitError(ExitCommandError, "encode signed message", err)
	}
	if opts.Format == "json" {
		return opts.Formatter(cmd).Success(json.RawMessage(out))
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// VerifyResult is the verify command's payload.
type VerifyResult struct {
	OK      bool      `json:"ok"`
	Valid   []KeyInfo `json:"valid"`
	Invalid []KeyInfo `json:"invalid"`
}

func (r VerifyResult) String() string {
	var b strings.Builder
	for _, k := range r.Valid {
		fmt.Fprintf(&b, "valid    %s\n", k.Address)
	}
	for _, k := range r.Invalid {
		fmt.Fprintf(&b, "INVALID  %s\n", k.Address)
	}
	fmt.Fprintf(&b, "%d valid, %d invalid", len(r.Valid), len(r.Invalid))
	return b.String()
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify every proof on a signed message",
		Long: `Verify every proof on a signed message against its value.
Exits 1 if there are no proofs or any proof fails.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, args []string, cmd *cobra.Command) error {
	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	sm, err := parseSigned(data)
	if err != nil {
		return err
	}

	res := sm.VerifyAll(cmd.Context())
	out := VerifyResult{OK: res.OK(), Valid: proofKeys(res.Valid), Invalid: proofKeys(res.Invalid)}
	f := opts.Formatter(cmd)
	if !out.OK {
		return f.Fail(CodeVerify, "signature verification failed", out)
	}
	return f.Success(out)
}

func proofKeys(proofs []signing.Proof) []KeyInfo {
	out := make([]KeyInfo, 0, len(proofs))
	for _, p := range proofs {
		addr, err := signing.AddressFromSignerID(p.ID)
		if err != nil {
			addr = "(malformed signer id)"
		}
		out = append(out, KeyInfo{Address: addr, SignerID: p.ID})
	}
	return out
}

// parseSigned decodes a signed message, keeping the value's numbers exact
// so its digest matches what was signed.
func parseSigned(data []byte) (*signing.SignedMessage, error) {
	var wire struct {
		Value  json.RawMessage `json:"value"`
		Proofs []signing.Proof `json:"proofs"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse signed message", err)
	}
	if wire.Value == nil {
		return nil, NewExitError(ExitCommandError, "parse signed message: missing value")
	}
	v, err := canon.Parse(wire.Value)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "parse signed message value", err)
	}
	return &signing.SignedMessage{Value: v, Proofs: wire.Proofs}, nil
}
