package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/fiber"
	"github.com/roach88/fiberclient/internal/message"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/submit"
	"github.com/roach88/fiberclient/internal/wait"
)

// SubmitOptions holds flags shared by the submit subcommands.
type SubmitOptions struct {
	*RootOptions
	Timeout time.Duration
	Wait    bool
}

// SubmitOutput is the payload of every submit subcommand.
type SubmitOutput struct {
	Hash        string       `json:"hash"`
	ContentHash string       `json:"content_hash"`
	FiberID     string       `json:"fiber_id"`
	Kind        message.Kind `json:"kind"`
	TargetSeq   *int64       `json:"target_seq,omitempty"`
	Ordinal     *int64       `json:"ordinal,omitempty"`
	Wait        *WaitOutput  `json:"wait,omitempty"`
}

func (o SubmitOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", o.Kind, o.FiberID)
	fmt.Fprintf(&b, "  hash:         %s\n", o.Hash)
	fmt.Fprintf(&b, "  content hash: %s", o.ContentHash)
	if o.TargetSeq != nil {
		fmt.Fprintf(&b, "\n  target seq:   %d", *o.TargetSeq)
	}
	if o.Wait != nil {
		fmt.Fprintf(&b, "\n%s", o.Wait)
	}
	return b.String()
}

func newSubmitOutput(res submit.Result) SubmitOutput {
	return SubmitOutput{
		Hash:        res.Hash,
		ContentHash: res.ContentHash,
		FiberID:     res.FiberID,
		Kind:        res.Kind,
		TargetSeq:   res.TargetSeq,
		Ordinal:     res.Ordinal,
	}
}

// NewSubmitCommand creates the submit command and its subcommands.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Sign and submit transactions",
		Long: `Sign and submit transactions to the ledger.

Transitions and archives target the next sequence number for the fiber,
read from the replica. Exit codes:
  0 - accepted (and, with --wait, observed)
  1 - rejected, or still pending when the wait timed out
  2 - command error, including submissions the ledger refused outright`,
	}

	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 0, "wait timeout (default from config)")
	cmd.PersistentFlags().BoolVar(&opts.Wait, "wait", false, "wait for the replica to reflect the update")

	cmd.AddCommand(newSubmitCreateCommand(opts))
	cmd.AddCommand(newSubmitTransitionCommand(opts))
	cmd.AddCommand(newSubmitArchiveCommand(opts))
	cmd.AddCommand(newSubmitRawCommand(opts))

	return cmd
}

type createFlags struct {
	Definition string
	Data       string
	ID         string
	Parent     string
}

func newSubmitCreateCommand(opts *SubmitOptions) *cobra.Command {
	flags := &createFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a state-machine fiber",
		Long: `Create a state-machine fiber. The definition file is sent verbatim.

Example:
  fiberctl submit create --definition door.json --data '{"owner":"alice"}' --wait`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := os.ReadFile(flags.Definition)
			if err != nil {
				return WrapExitError(ExitCommandError, "read definition", err)
			}
			data, err := jsonFlag("data", flags.Data)
			if err != nil {
				return err
			}
			msg := message.CreateStateMachine{
				FiberID:       flags.ID,
				Definition:    def,
				InitialData:   data,
				ParentFiberID: flags.Parent,
			}
			return runSubmit(opts, cmd, msg, func(c *fiber.Client, res submit.Result) (wait.Result, error) {
				return c.WaitForFiber(cmd.Context(), res.FiberID, opts.Timeout, wait.ForUpdate(res.Hash))
			})
		},
	}

	cmd.Flags().StringVar(&flags.Definition, "definition", "", "state machine definition file (required)")
	_ = cmd.MarkFlagRequired("definition")
	cmd.Flags().StringVar(&flags.Data, "data", "{}", "initial data as JSON")
	cmd.Flags().StringVar(&flags.ID, "id", "", "fiber ID (default: generated UUIDv7)")
	cmd.Flags().StringVar(&flags.Parent, "parent", "", "parent fiber ID")

	return cmd
}

func newSubmitTransitionCommand(opts *SubmitOptions) *cobra.Command {
	var payload, expectState string

	cmd := &cobra.Command{
		Use:   "transition <fiber-id> <event>",
		Short: "Fire an event at a fiber",
		Long: `Fire an event at a fiber at its next sequence number.

With --expect-state the command waits for that state; a critical rejection
of this transition ends the wait early.

Example:
  fiberctl submit transition 0190a... open --payload '{"who":"alice"}' --expect-state opened`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := jsonFlag("payload", payload)
			if err != nil {
				return err
			}
			fiberID, event := args[0], args[1]
			if expectState != "" {
				opts.Wait = true
			}
			return runSubmitNext(opts, cmd, func(c *fiber.Client) (submit.Result, error) {
				keys, err := opts.Keys()
				if err != nil {
					return submit.Result{}, err
				}
				return c.Transition(cmd.Context(), fiberID, event, p, keys...)
			}, func(c *fiber.Client, res submit.Result) (wait.Result, error) {
				if expectState != "" {
					return c.WaitForState(cmd.Context(), fiberID, expectState, opts.Timeout, wait.ForUpdate(res.Hash))
				}
				return c.WaitForSequence(cmd.Context(), fiberID, *res.TargetSeq+1, opts.Timeout, wait.ForUpdate(res.Hash))
			})
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "{}", "event payload as JSON")
	cmd.Flags().StringVar(&expectState, "expect-state", "", "wait until the fiber reaches this state")

	return cmd
}

func newSubmitArchiveCommand(opts *SubmitOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "archive <fiber-id>",
		Short:         "Archive a fiber",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fiberID := args[0]
			return runSubmitNext(opts, cmd, func(c *fiber.Client) (submit.Result, error) {
				keys, err := opts.Keys()
				if err != nil {
					return submit.Result{}, err
				}
				return c.Archive(cmd.Context(), fiberID, keys...)
			}, func(c *fiber.Client, res submit.Result) (wait.Result, error) {
				return c.WaitForSequence(cmd.Context(), fiberID, *res.TargetSeq+1, opts.Timeout, wait.ForUpdate(res.Hash))
			})
		},
	}
	return cmd
}

func newSubmitRawCommand(opts *SubmitOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raw [file]",
		Short: "Submit a message envelope exactly as written",
		Long: `Submit a message envelope such as {"TransitionStateMachine": {...}}
exactly as written, including any targetSequenceNumber. Reads stdin when
no file is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			msg, err := message.Decode(data)
			if err != nil {
				return WrapExitError(ExitCommandError, "decode envelope", err)
			}
			return runSubmit(opts, cmd, msg, func(c *fiber.Client, res submit.Result) (wait.Result, error) {
				if res.TargetSeq == nil {
					return c.WaitForFiber(cmd.Context(), res.FiberID, opts.Timeout, wait.ForUpdate(res.Hash))
				}
				return c.WaitForSequence(cmd.Context(), res.FiberID, *res.TargetSeq+1, opts.Timeout, wait.ForUpdate(res.Hash))
			})
		},
	}
	return cmd
}

type waitFunc func(c *fiber.Client, res submit.Result) (wait.Result, error)

func runSubmit(opts *SubmitOptions, cmd *cobra.Command, msg message.Message, await waitFunc) error {
	return runSubmitNext(opts, cmd, func(c *fiber.Client) (submit.Result, error) {
		keys, err := opts.Keys()
		if err != nil {
			return submit.Result{}, err
		}
		return c.Submit(cmd.Context(), msg, keys...)
	}, await)
}

// runSubmitNext sends one transaction through send and, with --wait,
// observes it with await.
func runSubmitNext(opts *SubmitOptions, cmd *cobra.Command, send func(*fiber.Client) (submit.Result, error), await waitFunc) error {
	c, err := opts.NewClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	f := opts.Formatter(cmd)
	res, err := send(c)
	if err != nil {
		if se, ok := submit.AsSubmissionError(err); ok {
			_ = f.Error(CodeSubmit, se.Error(), nil)
			return WrapExitError(ExitCommandError, "submit", err)
		}
		return err
	}
	out := newSubmitOutput(res)
	f.VerboseLog("submitted %s %s hash=%s", res.Kind, res.FiberID, res.Hash)

	if !opts.Wait {
		return f.Success(out)
	}

	wr, err := await(c, res)
	w := newWaitOutput(wr)
	out.Wait = &w
	if re, ok := rejection.AsRejectionError(err); ok {
		return f.Fail(CodeRejected, re.Error(), out)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "wait", err)
	}
	if !wr.Reached {
		return f.Fail(CodeTimeout, "submitted but not yet observed", out)
	}
	return f.Success(out)
}

// jsonFlag validates a JSON-valued flag.
func jsonFlag(name, value string) (json.RawMessage, error) {
	if !json.Valid([]byte(value)) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s is not valid JSON", name))
	}
	return json.RawMessage(value), nil
}
