package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/snapshot"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Ordinal int64
	FiberID string
}

// SnapshotOutput is the snapshot command's payload.
type SnapshotOutput struct {
	Ordinal int64                       `json:"ordinal"`
	Fibers  []snapshot.FiberState       `json:"fibers"`
	Logs    []snapshot.LogEntry         `json:"logs,omitempty"`
	Events  []snapshot.EventReceipt     `json:"events,omitempty"`
	Oracle  []snapshot.OracleInvocation `json:"oracle,omitempty"`
}

func (o SnapshotOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "snapshot %d: %d fiber(s)", o.Ordinal, len(o.Fibers))
	for _, f := range o.Fibers {
		fmt.Fprintf(&b, "\n  %s  %-12s seq=%d %s", f.FiberID, f.CurrentState, f.SequenceNumber, f.Status)
	}
	for _, e := range o.Events {
		ok := "ok"
		if !e.Success {
			ok = "failed"
		}
		fmt.Fprintf(&b, "\n  event  %s %s -> %s (%s)", e.EventName, e.FromState, e.ToState, ok)
	}
	for _, inv := range o.Oracle {
		fmt.Fprintf(&b, "\n  oracle %s -> %s", inv.Method, rawOrNull(inv.Result))
	}
	return b.String()
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Decode a ledger snapshot",
		Long: `Fetch a snapshot from the replica and decode its on-chain state.

With --fiber the output is limited to that fiber and includes its log
entries, event receipts and oracle invocations.

Examples:
  fiberctl snapshot
  fiberctl snapshot --ordinal 42 --fiber 0190a...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Ordinal, "ordinal", -1, "snapshot ordinal (default: latest)")
	cmd.Flags().StringVar(&opts.FiberID, "fiber", "", "limit output to one fiber")

	return cmd
}

func runSnapshot(opts *SnapshotOptions, cmd *cobra.Command) error {
	c, err := opts.NewClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	f := opts.Formatter(cmd)
	st, snap, err := c.State(cmd.Context(), opts.Ordinal)
	if err != nil {
		if snapshot.IsDecodeError(err) {
			return WrapExitError(ExitCommandError, "decode snapshot", err)
		}
		_ = f.Error(CodeLedgerRead, err.Error(), nil)
		return WrapExitError(ExitCommandError, "fetch snapshot", err)
	}

	out := SnapshotOutput{Ordinal: snap.Ordinal, Fibers: []snapshot.FiberState{}}
	if opts.FiberID != "" {
		if fs, ok := st.Fiber(opts.FiberID); ok {
			fs.FiberID = opts.FiberID
			out.Fibers = append(out.Fibers, fs)
		}
		out.Logs = snapshot.LogsForFiber(st, opts.FiberID)
		out.Events = snapshot.EventReceiptsForFiber(st, opts.FiberID)
		out.Oracle = snapshot.OracleInvocationsForFiber(st, opts.FiberID)
		if len(out.Fibers) == 0 {
			return f.Fail(CodeLedgerRead, fmt.Sprintf("fiber %s not in snapshot %d", opts.FiberID, snap.Ordinal), out)
		}
		return f.Success(out)
	}

	if st != nil {
		ids := make([]string, 0, len(st.Fibers))
		for id := range st.Fibers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fs, _ := st.Fiber(id)
			fs.FiberID = id
			out.Fibers = append(out.Fibers, fs)
		}
	}
	return f.Success(out)
}

// rawOrNull keeps absent JSON fields printable in text output.
func rawOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
