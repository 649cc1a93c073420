package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/rejection"
)

// RejectionsOptions holds flags for the rejections command.
type RejectionsOptions struct {
	*RootOptions
	Assert bool
}

// RejectionEntry is one classified record.
type RejectionEntry struct {
	rejection.Record
	Classification rejection.Classification `json:"classification"`
}

// RejectionsOutput is the rejections command's payload.
type RejectionsOutput struct {
	FiberID    string           `json:"fiber_id"`
	Passed     bool             `json:"passed"`
	Message    string           `json:"message"`
	Rejections []RejectionEntry `json:"rejections"`
}

func (o RejectionsOutput) String() string {
	var b strings.Builder
	for _, r := range o.Rejections {
		fmt.Fprintf(&b, "%-8s %s@%d %s %s\n", r.Classification, r.UpdateType, r.Ordinal,
			r.UpdateHash, strings.Join(r.Codes(), ","))
	}
	b.WriteString(o.Message)
	return b.String()
}

// NewRejectionsCommand creates the rejections command.
func NewRejectionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RejectionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rejections <fiber-id>",
		Short: "List and classify a fiber's rejected updates",
		Long: `List the rejected updates for a fiber, each classified as benign or
critical against the configured benign codes. Records are journaled when a
journal is configured.

With --assert the command exits 1 when any critical rejection exists.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRejections(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Assert, "assert", false, "exit 1 on any critical rejection")

	return cmd
}

func runRejections(opts *RejectionsOptions, fiberID string, cmd *cobra.Command) error {
	c, err := opts.NewClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	f := opts.Formatter(cmd)
	res, err := c.AssertNoRejections(cmd.Context(), fiberID)
	if err != nil {
		_ = f.Error(CodeLedgerRead, err.Error(), nil)
		return WrapExitError(ExitCommandError, "fetch rejections", err)
	}

	out := RejectionsOutput{
		FiberID:    fiberID,
		Passed:     res.Passed,
		Message:    res.Message,
		Rejections: make([]RejectionEntry, 0, len(res.Benign)+len(res.Critical)),
	}
	for _, r := range res.Critical {
		out.Rejections = append(out.Rejections, RejectionEntry{Record: r, Classification: rejection.Critical})
	}
	for _, r := range res.Benign {
		out.Rejections = append(out.Rejections, RejectionEntry{Record: r, Classification: rejection.Benign})
	}

	if opts.Assert && !res.Passed {
		return f.Fail(CodeRejected, res.Message, out)
	}
	return f.Success(out)
}
