package rejection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(hash string, codes ...string) Record {
	r := Record{UpdateType: "TransitionStateMachine", FiberID: "f-1", UpdateHash: hash, Ordinal: 7}
	for _, c := range codes {
		r.Errors = append(r.Errors, ErrorEntry{Code: c, Message: c + " happened"})
	}
	return r
}

func TestClassify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name  string
		codes []string
		want  Classification
	}{
		{"stale sequence only", []string{CodeSequenceNumberMismatch}, Benign},
		{"no transition only", []string{CodeNoTransitionForEvent}, Benign},
		{"both benign", []string{CodeSequenceNumberMismatch, CodeNoTransitionForEvent}, Benign},
		{"guard failure", []string{"GuardFailed"}, Critical},
		{"mixed", []string{CodeSequenceNumberMismatch, "InvalidSignature"}, Critical},
		{"no entries", nil, Critical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(rec("h", tt.codes...)))
		})
	}
}

func TestClassifierConfigurable(t *testing.T) {
	strict := NewClassifier(CodeSequenceNumberMismatch)
	assert.Equal(t, Critical, strict.Classify(rec("h", CodeNoTransitionForEvent)))
	assert.Equal(t, []string{CodeSequenceNumberMismatch}, strict.BenignCodes())

	none := NewClassifier()
	assert.Equal(t, Critical, none.Classify(rec("h", CodeSequenceNumberMismatch)))
}

func TestPartitionPreservesOrder(t *testing.T) {
	records := []Record{
		rec("a", "GuardFailed"),
		rec("b", CodeSequenceNumberMismatch),
		rec("c", "Other"),
	}
	benign, critical := DefaultClassifier().Partition(records)
	require.Len(t, benign, 1)
	require.Len(t, critical, 2)
	assert.Equal(t, "a", critical[0].UpdateHash)
	assert.Equal(t, "c", critical[1].UpdateHash)
}

func TestFilterValidate(t *testing.T) {
	neg := int64(-1)
	lo, hi := int64(5), int64(3)

	tests := []struct {
		name    string
		f       Filter
		wantErr bool
	}{
		{"zero", Filter{}, false},
		{"max limit", Filter{Limit: MaxPageLimit}, false},
		{"limit too big", Filter{Limit: MaxPageLimit + 1}, true},
		{"negative limit", Filter{Limit: -1}, true},
		{"negative offset", Filter{Offset: -1}, true},
		{"negative ordinal", Filter{FromOrdinal: &neg}, true},
		{"inverted range", Filter{FromOrdinal: &lo, ToOrdinal: &hi}, true},
		{"range", Filter{FromOrdinal: &hi, ToOrdinal: &lo}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilterValues(t *testing.T) {
	from := int64(2)
	v := Filter{FiberID: "f", ErrorCode: "X", FromOrdinal: &from, Offset: 10}.Values()
	assert.Equal(t, "f", v.Get("fiberId"))
	assert.Equal(t, "X", v.Get("errorCode"))
	assert.Equal(t, "2", v.Get("fromOrdinal"))
	assert.Equal(t, "100", v.Get("limit"))
	assert.Equal(t, "10", v.Get("offset"))
	assert.Empty(t, v.Get("toOrdinal"))
}

// pagedSource serves records in pages of the requested limit.
func pagedSource(records []Record) (Source, *[]Filter) {
	var calls []Filter
	return SourceFunc(func(_ context.Context, f Filter) (Page, error) {
		calls = append(calls, f)
		end := f.Offset + f.Limit
		if end > len(records) {
			end = len(records)
		}
		var page []Record
		if f.Offset < len(records) {
			page = records[f.Offset:end]
		}
		return Page{Rejections: page, Total: len(records), HasMore: end < len(records)}, nil
	}), &calls
}

func TestFetchPagesAndDedupes(t *testing.T) {
	records := []Record{rec("a", "X"), rec("b", "Y"), rec("a", "X"), rec("c", "Z"), rec("d", "W")}
	src, calls := pagedSource(records)

	c := NewChecker(src, nil, WithPageLimit(2))
	got, err := c.Fetch(context.Background(), "f-1")
	require.NoError(t, err)

	var hashes []string
	for _, r := range got {
		hashes = append(hashes, r.UpdateHash)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, hashes)
	require.Len(t, *calls, 3)
	assert.Equal(t, 4, (*calls)[2].Offset)
	assert.Equal(t, "f-1", (*calls)[0].FiberID)
}

func TestAssertNoRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty passes", func(t *testing.T) {
		src, _ := pagedSource(nil)
		res, err := NewChecker(src, nil).AssertNoRejections(ctx, "f-1")
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Equal(t, "no rejections for fiber f-1", res.Message)
	})

	t.Run("benign only passes", func(t *testing.T) {
		src, _ := pagedSource([]Record{rec("a", CodeSequenceNumberMismatch)})
		res, err := NewChecker(src, nil).AssertNoRejections(ctx, "f-1")
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Len(t, res.Benign, 1)
		assert.Contains(t, res.Message, "1 benign ignored")
	})

	t.Run("critical fails with every code", func(t *testing.T) {
		src, _ := pagedSource([]Record{
			rec("a", CodeSequenceNumberMismatch),
			rec("b", CodeSequenceNumberMismatch, "GuardFailed"),
		})
		res, err := NewChecker(src, nil).AssertNoRejections(ctx, "f-1")
		require.NoError(t, err)
		assert.False(t, res.Passed)
		require.Len(t, res.Critical, 1)
		assert.Contains(t, res.Message, "GuardFailed: GuardFailed happened")
		assert.Contains(t, res.Message, "SequenceNumberMismatch: SequenceNumberMismatch happened")
	})

	t.Run("source error", func(t *testing.T) {
		src := SourceFunc(func(context.Context, Filter) (Page, error) {
			return Page{}, errors.New("indexer down")
		})
		_, err := NewChecker(src, nil).AssertNoRejections(ctx, "f-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "indexer down")
	})
}

func TestCheckCritical(t *testing.T) {
	ctx := context.Background()
	src, _ := pagedSource([]Record{
		rec("mine", CodeSequenceNumberMismatch),
		rec("other", "GuardFailed"),
	})
	c := NewChecker(src, nil)

	require.NoError(t, c.CheckCritical(ctx, "f-1", "mine"))

	err := c.CheckCritical(ctx, "f-1", "")
	require.Error(t, err)
	re, ok := AsRejectionError(err)
	require.True(t, ok)
	assert.Equal(t, "f-1", re.FiberID)
	assert.Equal(t, []ErrorEntry{{Code: "GuardFailed", Message: "GuardFailed happened"}}, re.Entries())
	assert.True(t, IsRejectionError(err))
}

func TestDescribe(t *testing.T) {
	got := Describe([]Record{rec("a", "X", "Y"), {UpdateType: "ArchiveStateMachine", Ordinal: 9}})
	assert.Equal(t,
		"TransitionStateMachine@7 [X: X happened; Y: Y happened] | ArchiveStateMachine@9 [(no errors reported)]",
		got)
}
