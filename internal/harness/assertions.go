package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/fiberclient/internal/fiber"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s -> %s\n", ev.Step, ev.Action, ev.Fiber, ev.Event, ev.Outcome)
		}
	}
	return buf.String()
}

// assertFinalState compares a fiber's replica record against the fields
// the assertion sets.
func assertFinalState(ctx context.Context, c *fiber.Client, fibers map[string]string, a Assertion) error {
	id, ok := fibers[a.Fiber]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("fiber %s to exist", a.Fiber),
			Actual:   "never created",
		}
	}
	rec, err := c.Fiber(ctx, id)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("read fiber %s (%s)", a.Fiber, id),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}

	var diffs []string
	if a.State != "" && rec.CurrentState != a.State {
		diffs = append(diffs, fmt.Sprintf("state=%q, want %q", rec.CurrentState, a.State))
	}
	if a.Seq != nil && rec.SequenceNumber != *a.Seq {
		diffs = append(diffs, fmt.Sprintf("seq=%d, want %d", rec.SequenceNumber, *a.Seq))
	}
	if a.Status != "" && rec.Status != a.Status {
		diffs = append(diffs, fmt.Sprintf("status=%q, want %q", rec.Status, a.Status))
	}
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("fiber %s to match", a.Fiber),
			Actual:   strings.Join(diffs, "; "),
		}
	}
	return nil
}

func assertNoRejections(ctx context.Context, c *fiber.Client, fibers map[string]string, a Assertion) error {
	res, err := c.AssertNoRejections(ctx, fibers[a.Fiber])
	if err != nil {
		return fmt.Errorf("%s %s: %w", AssertNoRejections, a.Fiber, err)
	}
	if !res.Passed {
		return &AssertionError{
			Type:     AssertNoRejections,
			Expected: fmt.Sprintf("no critical rejections for %s", a.Fiber),
			Actual:   res.Message,
		}
	}
	return nil
}

func assertRejectionCount(ctx context.Context, c *fiber.Client, fibers map[string]string, a Assertion) error {
	records, err := c.Rejections(ctx, fibers[a.Fiber])
	if err != nil {
		return fmt.Errorf("%s %s: %w", AssertRejectionCount, a.Fiber, err)
	}
	count := 0
	for _, r := range records {
		if a.Code == "" || slices.Contains(r.Codes(), a.Code) {
			count++
		}
	}
	if count != a.Count {
		what := "rejections"
		if a.Code != "" {
			what = a.Code + " rejections"
		}
		return &AssertionError{
			Type:     AssertRejectionCount,
			Expected: fmt.Sprintf("%d %s for %s", a.Count, what, a.Fiber),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified
// number of times, optionally with a given outcome.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Action == a.Action && (a.Outcome == "" || ev.Outcome == a.Outcome) {
			count++
		}
	}
	if count != a.Count {
		what := a.Action
		if a.Outcome != "" {
			what += "/" + a.Outcome
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, c *fiber.Client, result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertFinalState:
			err = assertFinalState(ctx, c, result.Fibers, a)
		case AssertNoRejections:
			err = assertNoRejections(ctx, c, result.Fibers, a)
		case AssertRejectionCount:
			err = assertRejectionCount(ctx, c, result.Fibers, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
