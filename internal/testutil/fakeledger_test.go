package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fiberclient/internal/canon"
	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/message"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/signing"
	"github.com/roach88/fiberclient/internal/snapshot"
)

var doorDef = Definition{
	InitialState: "closed",
	Transitions: map[string]map[string]string{
		"closed": {"open": "opened"},
		"opened": {"close": "closed"},
	},
	Guards: map[string]string{"open": "who"},
}

func submitRaw(t *testing.T, c *ledger.Client, m message.Message) ledger.SubmitResult {
	t.Helper()
	key, err := signing.KeyPairFromHex("0000000000000000000000000000000000000000000000000000000000000003")
	require.NoError(t, err)
	sm, err := signing.BatchSign(context.Background(), message.Wrap(m), key)
	require.NoError(t, err)
	body, err := canon.Marshal(sm)
	require.NoError(t, err)
	res, err := c.Submit(context.Background(), body)
	require.NoError(t, err)
	return res
}

func TestFakeLedger_LaggingReplica(t *testing.T) {
	fl := NewFakeLedger(t, Lagging())
	c := fl.Client(t)
	ctx := context.Background()

	submitRaw(t, c, message.CreateStateMachine{FiberID: "door", Definition: MustDefinition(doorDef), InitialData: json.RawMessage(`{}`)})
	_, err := c.Fiber(ctx, "door")
	assert.True(t, ledger.IsNotFound(err), "replica has not observed the create")

	assert.Equal(t, int64(1), fl.Flush())
	rec, err := c.Fiber(ctx, "door")
	require.NoError(t, err)
	assert.Equal(t, "closed", rec.CurrentState)
	assert.Equal(t, int64(0), rec.SequenceNumber)

	submitRaw(t, c, message.TransitionStateMachine{FiberID: "door", EventName: "open", Payload: json.RawMessage(`{"who":"me"}`)})
	seq, err := c.CurrentSequence(ctx, "door")
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq, "stale until flush")
	assert.Equal(t, 1, fl.Pending())

	fl.Flush()
	seq, err = c.CurrentSequence(ctx, "door")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestFakeLedger_StaleSequenceIsRejected(t *testing.T) {
	fl := NewFakeLedger(t)
	c := fl.Client(t)
	ctx := context.Background()

	submitRaw(t, c, message.CreateStateMachine{FiberID: "door", Definition: MustDefinition(doorDef)})
	submitRaw(t, c, message.TransitionStateMachine{FiberID: "door", EventName: "open", Payload: json.RawMessage(`{"who":"a"}`)})
	stale := submitRaw(t, c, message.TransitionStateMachine{FiberID: "door", EventName: "close", Payload: json.RawMessage(`{}`)})
	fl.Flush()

	page, err := c.Rejections(ctx, rejection.Filter{FiberID: "door"})
	require.NoError(t, err)
	require.Len(t, page.Rejections, 1)
	r := page.Rejections[0]
	assert.Equal(t, stale.Hash, r.UpdateHash)
	assert.Equal(t, []string{rejection.CodeSequenceNumberMismatch}, r.Codes())
	assert.Equal(t, rejection.Benign, rejection.DefaultClassifier().Classify(r))
}

func TestFakeLedger_GuardAndMissingTransition(t *testing.T) {
	fl := NewFakeLedger(t)
	c := fl.Client(t)

	submitRaw(t, c, message.CreateStateMachine{FiberID: "door", Definition: MustDefinition(doorDef)})
	submitRaw(t, c, message.TransitionStateMachine{FiberID: "door", EventName: "open", Payload: json.RawMessage(`{}`)})
	submitRaw(t, c, message.TransitionStateMachine{FiberID: "door", EventName: "fly", Payload: json.RawMessage(`{}`)})
	fl.Flush()

	var codes []string
	for _, r := range fl.Rejections() {
		codes = append(codes, r.Codes()...)
	}
	assert.Equal(t, []string{CodeGuardFailed, rejection.CodeNoTransitionForEvent}, codes)
}

func TestFakeLedger_SnapshotDecodes(t *testing.T) {
	fl := NewFakeLedger(t)
	c := fl.Client(t)
	ctx := context.Background()

	submitRaw(t, c, message.CreateStateMachine{FiberID: "door", Definition: MustDefinition(doorDef)})
	fl.Flush()
	submitRaw(t, c, message.TransitionStateMachine{FiberID: "door", EventName: "open", Payload: json.RawMessage(`{"who":"é"}`)})

	snap, err := c.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Ordinal)

	st, err := snapshot.Decode(snap.Raw)
	require.NoError(t, err)
	fs, ok := st.Fiber("door")
	require.True(t, ok)
	assert.Equal(t, "opened", fs.CurrentState)
	assert.JSONEq(t, `{"who":"é"}`, string(fs.StateData))

	receipts := snapshot.EventReceiptsForFiber(st, "door")
	require.Len(t, receipts, 1)
	assert.Equal(t, "closed", receipts[0].FromState)

	ord, err := c.LatestOrdinal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ord)
}

func TestFakeLedger_RejectsBadSignatureAndInjectedFaults(t *testing.T) {
	fl := NewFakeLedger(t)
	c := fl.Client(t)
	ctx := context.Background()

	_, err := c.Submit(ctx, []byte(`{"value":{"ArchiveStateMachine":{"fiberId":"x","targetSequenceNumber":0}},"proofs":[]}`))
	se, ok := ledger.AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidSignature, se.Code)

	fl.FailNextSubmit(http.StatusServiceUnavailable, "Busy", "try later")
	key, err := signing.KeyPairFromHex("0000000000000000000000000000000000000000000000000000000000000003")
	require.NoError(t, err)
	sm, err := signing.BatchSign(ctx, message.Wrap(message.ArchiveStateMachine{FiberID: "x"}), key)
	require.NoError(t, err)
	_, err = c.Submit(ctx, canon.MustMarshal(sm))
	se, ok = ledger.AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, 0, fl.Submitted())
}

func TestFakeLedger_RejectionFilterValidation(t *testing.T) {
	fl := NewFakeLedger(t)
	resp, err := http.Get(fl.URL() + "/rejections?limit=500")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
