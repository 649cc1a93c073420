package rejection

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// MaxPageLimit is the largest page the rejection endpoint serves.
const MaxPageLimit = 100

// ErrorEntry is one validation failure inside a rejection record.
type ErrorEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record is one rejected update as reported by the indexer.
type Record struct {
	UpdateType string       `json:"updateType"`
	FiberID    string       `json:"fiberId"`
	Ordinal    int64        `json:"ordinal"`
	Timestamp  string       `json:"timestamp,omitempty"`
	UpdateHash string       `json:"updateHash"`
	Errors     []ErrorEntry `json:"errors"`
	Signers    []string     `json:"signers,omitempty"`
}

// Codes returns the error codes in record order.
func (r Record) Codes() []string {
	codes := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		codes[i] = e.Code
	}
	return codes
}

// Page is one page of the rejection listing.
type Page struct {
	Rejections []Record `json:"rejections"`
	Total      int      `json:"total"`
	HasMore    bool     `json:"hasMore"`
}

// Filter selects rejection records. Zero values mean "no constraint",
// except Limit where zero means MaxPageLimit.
type Filter struct {
	FiberID     string
	UpdateType  string
	Signer      string
	ErrorCode   string
	FromOrdinal *int64
	ToOrdinal   *int64
	Limit       int
	Offset      int
}

// Validate checks pagination and ordinal bounds.
func (f Filter) Validate() error {
	if f.Limit < 0 || f.Limit > MaxPageLimit {
		return fmt.Errorf("limit %d out of range 1..%d", f.Limit, MaxPageLimit)
	}
	if f.Offset < 0 {
		return fmt.Errorf("offset %d must be >= 0", f.Offset)
	}
	if f.FromOrdinal != nil && *f.FromOrdinal < 0 {
		return fmt.Errorf("fromOrdinal %d must be >= 0", *f.FromOrdinal)
	}
	if f.FromOrdinal != nil && f.ToOrdinal != nil && *f.FromOrdinal > *f.ToOrdinal {
		return fmt.Errorf("fromOrdinal %d > toOrdinal %d", *f.FromOrdinal, *f.ToOrdinal)
	}
	return nil
}

// Values encodes the filter as query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.FiberID != "" {
		v.Set("fiberId", f.FiberID)
	}
	if f.UpdateType != "" {
		v.Set("updateType", f.UpdateType)
	}
	if f.Signer != "" {
		v.Set("signer", f.Signer)
	}
	if f.ErrorCode != "" {
		v.Set("errorCode", f.ErrorCode)
	}
	if f.FromOrdinal != nil {
		v.Set("fromOrdinal", strconv.FormatInt(*f.FromOrdinal, 10))
	}
	if f.ToOrdinal != nil {
		v.Set("toOrdinal", strconv.FormatInt(*f.ToOrdinal, 10))
	}
	limit := f.Limit
	if limit == 0 {
		limit = MaxPageLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	return v
}

// Source lists rejection records.
type Source interface {
	Rejections(ctx context.Context, f Filter) (Page, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, f Filter) (Page, error)

// Rejections implements Source.
func (fn SourceFunc) Rejections(ctx context.Context, f Filter) (Page, error) {
	return fn(ctx, f)
}
