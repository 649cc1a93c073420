package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fiberclient/internal/journal"
	"github.com/roach88/fiberclient/internal/message"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/submit"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Kind         string // optional - filter submissions to one message kind
	RejectedOnly bool
}

// HistorySubmission is one journaled attempt.
type HistorySubmission struct {
	LocalSeq    int64         `json:"local_seq"`
	Kind        message.Kind  `json:"kind"`
	Status      submit.Status `json:"status"`
	ContentHash string        `json:"content_hash"`
	LedgerHash  string        `json:"ledger_hash,omitempty"`
	TargetSeq   *int64        `json:"target_seq,omitempty"`
	Error       string        `json:"error,omitempty"`
	Signers     []string      `json:"signers,omitempty"`
	Rejected    bool          `json:"rejected"`
}

// HistoryRejection is one journaled rejection record.
type HistoryRejection struct {
	Ordinal        int64                    `json:"ordinal"`
	UpdateType     string                   `json:"update_type"`
	UpdateHash     string                   `json:"update_hash"`
	Codes          []string                 `json:"codes"`
	Classification rejection.Classification `json:"classification"`
}

// HistoryResult is the history command's payload.
type HistoryResult struct {
	FiberID     string              `json:"fiber_id"`
	Submissions []HistorySubmission `json:"submissions"`
	Rejections  []HistoryRejection  `json:"rejections"`
	Stats       HistoryStats        `json:"stats"`
}

// HistoryStats holds summary counts.
type HistoryStats struct {
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
	Rejected int `json:"rejected"`
	Benign   int `json:"benign"`
	Critical int `json:"critical"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <fiber-id>",
		Short: "Show the journaled submissions and rejections for a fiber",
		Long: `Show what this client recorded for a fiber in its local journal.

The output includes:
- Submissions: every attempt in local order, accepted or failed, marked
  when the ledger later rejected it
- Rejections: rejection records observed for the fiber, classified
- Stats: summary counts

The journal is read from --journal, or from journal_path in --config.

Examples:
  fiberctl history --journal ./fibers.db 0190a...
  fiberctl history --journal ./fibers.db --kind TransitionStateMachine 0190a...
  fiberctl history --config fiberctl.yaml --format json 0190a...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter submissions to one message kind")
	cmd.Flags().BoolVar(&opts.RejectedOnly, "rejected", false, "only show submissions the ledger rejected")

	return cmd
}

// journalPath resolves the journal without requiring a ledger URL.
func (o *RootOptions) journalPath() (string, error) {
	if o.JournalPath != "" {
		return o.JournalPath, nil
	}
	if o.ConfigPath != "" {
		cfg, err := o.LoadConfig()
		if err != nil {
			return "", err
		}
		if cfg.JournalPath != "" {
			return cfg.JournalPath, nil
		}
	}
	return "", NewExitError(ExitCommandError, "no journal configured (--journal or journal_path in --config)")
}

func runHistory(opts *HistoryOptions, fiberID string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	path, err := opts.journalPath()
	if err != nil {
		return err
	}
	j, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	subs, err := j.Submissions(ctx, fiberID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read submissions", err)
	}
	rejectedSubs, err := j.RejectedSubmissions(ctx, fiberID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read rejected submissions", err)
	}
	stored, err := j.Rejections(ctx, fiberID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read rejections", err)
	}

	rejected := make(map[int64]bool, len(rejectedSubs))
	for _, s := range rejectedSubs {
		rejected[s.LocalSeq] = true
	}

	result := HistoryResult{
		FiberID:     fiberID,
		Submissions: buildSubmissions(subs, rejected, opts.Kind, opts.RejectedOnly),
		Rejections:  make([]HistoryRejection, 0, len(stored)),
	}
	for _, s := range subs {
		switch {
		case s.Status == submit.StatusFailed:
			result.Stats.Failed++
		case rejected[s.LocalSeq]:
			result.Stats.Rejected++
		default:
			result.Stats.Accepted++
		}
	}
	for _, r := range stored {
		result.Rejections = append(result.Rejections, HistoryRejection{
			Ordinal:        r.Ordinal,
			UpdateType:     r.UpdateType,
			UpdateHash:     r.UpdateHash,
			Codes:          r.Codes(),
			Classification: r.Classification,
		})
		if r.Classification == rejection.Critical {
			result.Stats.Critical++
		} else {
			result.Stats.Benign++
		}
	}

	if opts.Format == "json" {
		return opts.Formatter(cmd).Success(result)
	}
	outputHistoryText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

// buildSubmissions converts journal rows, applying the kind and rejected
// filters.
func buildSubmissions(subs []journal.Submission, rejected map[int64]bool, kind string, rejectedOnly bool) []HistorySubmission {
	out := []HistorySubmission{}
	for _, s := range subs {
		if kind != "" && string(s.Kind) != kind {
			continue
		}
		if rejectedOnly && !rejected[s.LocalSeq] {
			continue
		}
		out = append(out, HistorySubmission{
			LocalSeq:    s.LocalSeq,
			Kind:        s.Kind,
			Status:      s.Status,
			ContentHash: s.ContentHash,
			LedgerHash:  s.LedgerHash,
			TargetSeq:   s.TargetSeq,
			Error:       s.Error,
			Signers:     s.Signers,
			Rejected:    rejected[s.LocalSeq],
		})
	}
	return out
}

func outputHistoryText(w io.Writer, result HistoryResult, verbose bool) {
	fmt.Fprintf(w, "History for Fiber: %s\n", result.FiberID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Submissions ===")
	if len(result.Submissions) == 0 {
		fmt.Fprintln(w, "  (no submissions)")
	}
	for _, s := range result.Submissions {
		status := string(s.Status)
		if s.Rejected {
			status = "rejected"
		}
		fmt.Fprintf(w, "  [%d] %s%s %s %s\n", s.LocalSeq, s.Kind, formatSeq(s.TargetSeq), status, truncateID(s.ContentHash))
		if s.Error != "" {
			fmt.Fprintf(w, "       Error: %s\n", s.Error)
		}
		if verbose && len(s.Signers) > 0 {
			fmt.Fprintf(w, "       Signers: %s\n", strings.Join(s.Signers, ", "))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Rejections ===")
	if len(result.Rejections) == 0 {
		fmt.Fprintln(w, "  (no rejections)")
	}
	for _, r := range result.Rejections {
		fmt.Fprintf(w, "  @%d %s %s %s [%s]\n", r.Ordinal, r.UpdateType, truncateID(r.UpdateHash),
			r.Classification, strings.Join(r.Codes, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Accepted: %d\n", result.Stats.Accepted)
	fmt.Fprintf(w, "  Failed:   %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Rejected: %d\n", result.Stats.Rejected)
	fmt.Fprintf(w, "  Benign:   %d\n", result.Stats.Benign)
	fmt.Fprintf(w, "  Critical: %d\n", result.Stats.Critical)
}

func formatSeq(seq *int64) string {
	if seq == nil {
		return ""
	}
	return fmt.Sprintf("@%d", *seq)
}

// truncateID shortens a hash for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
