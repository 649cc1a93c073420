package rejection

import (
	"context"
	"fmt"
	"log/slog"
)

// maxPages bounds a single listing walk.
const maxPages = 50

// Result is the outcome of AssertNoRejections.
type Result struct {
	Passed   bool
	Message  string
	Benign   []Record
	Critical []Record
}

// Checker fetches and classifies rejection records for fibers.
type Checker struct {
	source     Source
	classifier *Classifier
	pageLimit  int
	logger     *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithPageLimit sets the page size (1..MaxPageLimit).
func WithPageLimit(n int) CheckerOption {
	return func(c *Checker) {
		if n > 0 && n <= MaxPageLimit {
			c.pageLimit = n
		}
	}
}

// WithCheckerLogger sets the logger. Default: slog.Default().
func WithCheckerLogger(l *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = l
	}
}

// NewChecker creates a Checker. A nil classifier means DefaultClassifier.
func NewChecker(source Source, classifier *Classifier, opts ...CheckerOption) *Checker {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	c := &Checker{
		source:     source,
		classifier: classifier,
		pageLimit:  MaxPageLimit,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classifier returns the checker's classifier.
func (c *Checker) Classifier() *Classifier {
	return c.classifier
}

// Fetch returns every rejection record for fiberID, walking pages until the
// source reports no more. Records are deduplicated by update hash, first
// occurrence wins.
func (c *Checker) Fetch(ctx context.Context, fiberID string) ([]Record, error) {
	seen := make(map[string]struct{})
	var out []Record

	f := Filter{FiberID: fiberID, Limit: c.pageLimit}
	for page := 0; page < maxPages; page++ {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		p, err := c.source.Rejections(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("list rejections for %s: %w", fiberID, err)
		}
		for _, r := range p.Rejections {
			if r.UpdateHash != "" {
				if _, dup := seen[r.UpdateHash]; dup {
					continue
				}
				seen[r.UpdateHash] = struct{}{}
			}
			out = append(out, r)
		}
		if !p.HasMore || len(p.Rejections) == 0 {
			return out, nil
		}
		f.Offset += len(p.Rejections)
	}

	c.logger.Warn("rejection listing truncated", "fiber", fiberID, "pages", maxPages)
	return out, nil
}

// AssertNoRejections fetches and partitions a fiber's rejections. It passes
// when no critical record exists; benign records are logged and reported
// but never fail the assertion. A source error is returned as an error,
// not as a failed Result.
func (c *Checker) AssertNoRejections(ctx context.Context, fiberID string) (Result, error) {
	records, err := c.Fetch(ctx, fiberID)
	if err != nil {
		return Result{}, err
	}

	benign, critical := c.classifier.Partition(records)
	for _, r := range benign {
		c.logger.Info("benign rejection",
			"fiber", fiberID,
			"ordinal", r.Ordinal,
			"codes", r.Codes(),
		)
	}

	res := Result{Passed: len(critical) == 0, Benign: benign, Critical: critical}
	switch {
	case !res.Passed:
		res.Message = fmt.Sprintf("%d critical rejection(s) for fiber %s: %s",
			len(critical), fiberID, Describe(critical))
	case len(benign) > 0:
		res.Message = fmt.Sprintf("no critical rejections for fiber %s (%d benign ignored)", fiberID, len(benign))
	default:
		res.Message = fmt.Sprintf("no rejections for fiber %s", fiberID)
	}
	return res, nil
}

// CheckCritical returns a *RejectionError if a critical rejection exists for
// fiberID. When updateHash is non-empty only records for that update count.
// Benign records are logged and absorbed.
func (c *Checker) CheckCritical(ctx context.Context, fiberID, updateHash string) error {
	records, err := c.Fetch(ctx, fiberID)
	if err != nil {
		return err
	}
	if updateHash != "" {
		var scoped []Record
		for _, r := range records {
			if r.UpdateHash == updateHash {
				scoped = append(scoped, r)
			}
		}
		records = scoped
	}

	benign, critical := c.classifier.Partition(records)
	for _, r := range benign {
		c.logger.Info("benign rejection",
			"fiber", fiberID,
			"update", r.UpdateHash,
			"codes", r.Codes(),
		)
	}
	if len(critical) == 0 {
		return nil
	}
	return &RejectionError{FiberID: fiberID, Records: critical}
}
