package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/fiber"
	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/wait"
)

// WaitOutput reports how a wait ended.
type WaitOutput struct {
	Reached   bool   `json:"reached"`
	Rejected  bool   `json:"rejected,omitempty"`
	Attempts  int    `json:"attempts"`
	ElapsedMS int64  `json:"elapsed_ms"`
	State     string `json:"state,omitempty"`
	Sequence  int64  `json:"sequence"`
	Ordinal   int64  `json:"ordinal,omitempty"`
	Status    string `json:"status,omitempty"`
}

func newWaitOutput(r wait.Result) WaitOutput {
	out := WaitOutput{
		Reached:   r.Reached,
		Rejected:  r.Rejected,
		Attempts:  r.Attempts,
		ElapsedMS: r.Elapsed.Milliseconds(),
		Sequence:  r.Sequence,
		Ordinal:   r.Ordinal,
	}
	if r.Fiber != nil {
		out.State = r.Fiber.CurrentState
		out.Sequence = r.Fiber.SequenceNumber
		out.Status = r.Fiber.Status
	}
	return out
}

func (o WaitOutput) String() string {
	var b strings.Builder
	switch {
	case o.Reached:
		b.WriteString("reached")
	case o.Rejected:
		b.WriteString("rejected")
	default:
		b.WriteString("not reached")
	}
	fmt.Fprintf(&b, " after %d attempts (%dms)", o.Attempts, o.ElapsedMS)
	if o.State != "" {
		fmt.Fprintf(&b, "\n  state:  %s", o.State)
	}
	fmt.Fprintf(&b, "\n  seq:    %d", o.Sequence)
	if o.Status != "" {
		fmt.Fprintf(&b, "\n  status: %s", o.Status)
	}
	if o.Ordinal > 0 {
		fmt.Fprintf(&b, "\n  ordinal: %d", o.Ordinal)
	}
	return b.String()
}

// WaitOptions holds flags for the wait subcommands.
type WaitOptions struct {
	*RootOptions
	Timeout time.Duration
	Update  string
}

// NewWaitCommand creates the wait command and its subcommands.
func NewWaitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WaitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Poll the replica until an expectation holds",
		Long: `Poll the read replica until a fiber or snapshot condition holds.

With --update, a critical rejection of that update hash ends the wait
early. Exit codes:
  0 - condition reached
  1 - timed out or rejected
  2 - command error`,
	}

	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 0, "wait timeout (default from config)")
	cmd.PersistentFlags().StringVar(&opts.Update, "update", "", "update hash to watch for critical rejections")

	cmd.AddCommand(&cobra.Command{
		Use:           "fiber <fiber-id>",
		Short:         "Wait until the fiber is visible",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWait(opts, cmd, func(c *fiber.Client, co []wait.CallOption) (wait.Result, error) {
				return c.WaitForFiber(cmd.Context(), args[0], opts.Timeout, co...)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "state <fiber-id> <state>",
		Short:         "Wait until the fiber is in a state",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWait(opts, cmd, func(c *fiber.Client, co []wait.CallOption) (wait.Result, error) {
				return c.WaitForState(cmd.Context(), args[0], args[1], opts.Timeout, co...)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "seq <fiber-id> <n>",
		Short:         "Wait until the fiber's sequence number is at least n",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseNonNegative("sequence", args[1])
			if err != nil {
				return err
			}
			return runWait(opts, cmd, func(c *fiber.Client, co []wait.CallOption) (wait.Result, error) {
				return c.WaitForSequence(cmd.Context(), args[0], n, opts.Timeout, co...)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "snapshot <ordinal>",
		Short:         "Wait until a snapshot newer than the ordinal exists",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseNonNegative("ordinal", args[0])
			if err != nil {
				return err
			}
			return runWait(opts, cmd, func(c *fiber.Client, co []wait.CallOption) (wait.Result, error) {
				return c.WaitForSnapshot(cmd.Context(), n, opts.Timeout, co...)
			})
		},
	})

	return cmd
}

func runWait(opts *WaitOptions, cmd *cobra.Command, fn func(*fiber.Client, []wait.CallOption) (wait.Result, error)) error {
	c, err := opts.NewClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	var co []wait.CallOption
	if opts.Update != "" {
		co = append(co, wait.ForUpdate(opts.Update))
	}

	f := opts.Formatter(cmd)
	wr, err := fn(c, co)
	out := newWaitOutput(wr)
	if re, ok := rejection.AsRejectionError(err); ok {
		return f.Fail(CodeRejected, re.Error(), out)
	}
	if err != nil {
		if _, ok := ledger.AsStatusError(err); ok {
			_ = f.Error(CodeLedgerRead, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "wait", err)
	}
	if !out.Reached {
		return f.Fail(CodeTimeout, "condition not reached before timeout", out)
	}
	return f.Success(out)
}

func parseNonNegative(name, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("%s must be a non-negative integer, got %q", name, s))
	}
	return n, nil
}
