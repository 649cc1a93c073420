package rejection

import "sort"

// Well-known rejection codes.
const (
	// CodeSequenceNumberMismatch: the update targeted an already-consumed
	// (or not yet reachable) sequence number.
	CodeSequenceNumberMismatch = "SequenceNumberMismatch"

	// CodeNoTransitionForEvent: the fiber's current state has no transition
	// for the event. Usually a concurrent submitter moved the fiber first,
	// but a misspelled event name produces the same code.
	CodeNoTransitionForEvent = "NoTransitionForEvent"
)

// DefaultBenignCodes returns the default timing-race codes.
func DefaultBenignCodes() []string {
	return []string{CodeSequenceNumberMismatch, CodeNoTransitionForEvent}
}

// Classification is the outcome of classifying a record.
type Classification string

const (
	Benign   Classification = "benign"
	Critical Classification = "critical"
)

// Classifier partitions records by a configurable benign-code set.
// Immutable after construction; safe for concurrent use.
type Classifier struct {
	benign map[string]struct{}
}

// NewClassifier creates a Classifier treating codes as benign.
// With no codes every record is critical.
func NewClassifier(codes ...string) *Classifier {
	c := &Classifier{benign: make(map[string]struct{}, len(codes))}
	for _, code := range codes {
		c.benign[code] = struct{}{}
	}
	return c
}

// DefaultClassifier uses DefaultBenignCodes.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultBenignCodes()...)
}

// BenignCodes returns the configured benign codes, sorted.
func (c *Classifier) BenignCodes() []string {
	out := make([]string, 0, len(c.benign))
	for code := range c.benign {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// IsBenignCode reports whether code is in the benign set.
func (c *Classifier) IsBenignCode(code string) bool {
	_, ok := c.benign[code]
	return ok
}

// Classify returns Benign iff the record has at least one error entry and
// every entry's code is benign.
func (c *Classifier) Classify(r Record) Classification {
	if len(r.Errors) == 0 {
		return Critical
	}
	for _, e := range r.Errors {
		if !c.IsBenignCode(e.Code) {
			return Critical
		}
	}
	return Benign
}

// Partition splits records preserving input order.
func (c *Classifier) Partition(records []Record) (benign, critical []Record) {
	for _, r := range records {
		if c.Classify(r) == Benign {
			benign = append(benign, r)
		} else {
			critical = append(critical, r)
		}
	}
	return benign, critical
}
