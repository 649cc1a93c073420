package signing

import (
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyOneHex = "0000000000000000000000000000000000000000000000000000000000000001"
	keyTwoHex = "0000000000000000000000000000000000000000000000000000000000000002"

	// Generator point G, the public key for private scalar 1.
	generatorID = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798" +
		"483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8"
)

func mustKey(t *testing.T, h string) *KeyPair {
	t.Helper()
	k, err := KeyPairFromHex(h)
	require.NoError(t, err)
	return k
}

func testMessage() map[string]any {
	return map[string]any{
		"TransitionStateMachine": map[string]any{
			"fiberId":              "fiber-1",
			"eventName":            "approve",
			"payload":              map[string]any{"amount": 10},
			"targetSequenceNumber": 0,
		},
	}
}

func TestSignerIDForGenerator(t *testing.T) {
	k := mustKey(t, keyOneHex)
	assert.Equal(t, generatorID, k.SignerID())

	pub, err := PublicKeyFromSignerID(generatorID)
	require.NoError(t, err)
	assert.True(t, pub.IsEqual(k.PublicKey()))
}

func TestKeyPairFromHexRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		code KeyErrorCode
	}{
		{"empty", "", ErrCodeMissingKey},
		{"not hex", "zz", ErrCodeInvalidKey},
		{"short", "0102", ErrCodeInvalidKey},
		{"zero", strings.Repeat("00", 32), ErrCodeInvalidKey},
		{"curve order", "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", ErrCodeInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeyPairFromHex(tt.in)
			require.Error(t, err)
			var ke *KeyError
			require.ErrorAs(t, err, &ke)
			assert.Equal(t, tt.code, ke.Code)
		})
	}
}

func TestKeyPairFromHexAcceptsPrefix(t *testing.T) {
	k, err := KeyPairFromHex("  0x" + keyOneHex + "\n")
	require.NoError(t, err)
	assert.Equal(t, generatorID, k.SignerID())
}

func TestSignVerifyRoundTrip(t *testing.T) {
	k := mustKey(t, keyOneHex)
	msg := testMessage()

	proof, err := Sign(msg, k)
	require.NoError(t, err)
	assert.Equal(t, k.SignerID(), proof.ID)
	assert.True(t, Verify(msg, proof))
}

func TestVerifyFailsAfterMutation(t *testing.T) {
	k := mustKey(t, keyOneHex)
	msg := testMessage()

	proof, err := Sign(msg, k)
	require.NoError(t, err)

	inner := msg["TransitionStateMachine"].(map[string]any)
	inner["targetSequenceNumber"] = 1
	assert.False(t, Verify(msg, proof))
}

func TestVerifyIsIndependentOfKeyOrder(t *testing.T) {
	k := mustKey(t, keyOneHex)
	proof, err := Sign(map[string]any{"a": 1, "b": 2}, k)
	require.NoError(t, err)

	// Same logical value built in a different order.
	other := map[string]any{}
	other["b"] = 2
	other["a"] = 1
	assert.True(t, Verify(other, proof))
}

func TestVerifyMalformedProofs(t *testing.T) {
	k := mustKey(t, keyOneHex)
	msg := testMessage()
	good, err := Sign(msg, k)
	require.NoError(t, err)

	tests := []struct {
		name  string
		proof Proof
	}{
		{"empty", Proof{}},
		{"bad id hex", Proof{ID: "xyz", Signature: good.Signature}},
		{"id not a point", Proof{ID: strings.Repeat("ab", 64), Signature: good.Signature}},
		{"bad signature hex", Proof{ID: good.ID, Signature: "nothex"}},
		{"truncated signature", Proof{ID: good.ID, Signature: good.Signature[:20]}},
		{"wrong signer", Proof{ID: mustKey(t, keyTwoHex).SignerID(), Signature: good.Signature}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Verify(msg, tt.proof))
		})
	}

	// Non-canonicalizable value never verifies.
	assert.False(t, Verify(make(chan int), good))
}

func TestSignFailsOnNonCanonicalValue(t *testing.T) {
	_, err := Sign(map[string]any{"f": func() {}}, mustKey(t, keyOneHex))
	require.Error(t, err)

	_, err = Sign(testMessage(), nil)
	require.Error(t, err)
	assert.True(t, IsKeyError(err))
}

func TestBatchSignOrderIndependent(t *testing.T) {
	k1 := mustKey(t, keyOneHex)
	k2 := mustKey(t, keyTwoHex)
	msg := testMessage()

	a, err := BatchSign(context.Background(), msg, k1, k2)
	require.NoError(t, err)
	b, err := BatchSign(context.Background(), msg, k2, k1)
	require.NoError(t, err)

	require.Len(t, a.Proofs, 2)
	// RFC 6979 nonces make signatures deterministic.
	assert.Equal(t, a.Proofs, b.Proofs)

	res := a.VerifyAll(context.Background())
	assert.True(t, res.OK())
	assert.Len(t, res.Valid, 2)
	assert.Empty(t, res.Invalid)
}

func TestBatchSignRequiresKeys(t *testing.T) {
	_, err := BatchSign(context.Background(), testMessage())
	require.Error(t, err)
	_, err = BatchSign(context.Background(), testMessage(), nil)
	require.Error(t, err)
}

func TestProgressiveCoSigning(t *testing.T) {
	k1 := mustKey(t, keyOneHex)
	k2 := mustKey(t, keyTwoHex)
	msg := testMessage()

	sm, err := BatchSign(context.Background(), msg, k1)
	require.NoError(t, err)
	require.NoError(t, sm.CoSign(k2))
	require.NoError(t, sm.CoSign(k2)) // re-signing replaces, never duplicates

	assert.Len(t, sm.Proofs, 2)
	assert.True(t, sm.VerifyAll(context.Background()).OK())
	assert.ElementsMatch(t, []string{k1.Address(), k2.Address()}, sm.Signers())
}

func TestVerifyAllReportsPartialSuccess(t *testing.T) {
	k1 := mustKey(t, keyOneHex)
	k2 := mustKey(t, keyTwoHex)
	msg := testMessage()

	sm, err := BatchSign(context.Background(), msg, k1)
	require.NoError(t, err)

	// Proof from k2 over a different value.
	stray, err := Sign(map[string]any{"other": true}, k2)
	require.NoError(t, err)
	sm.AddProof(stray)

	res := sm.VerifyAll(context.Background())
	assert.False(t, res.OK())
	require.Len(t, res.Valid, 1)
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, k1.SignerID(), res.Valid[0].ID)
	assert.Equal(t, k2.SignerID(), res.Invalid[0].ID)
}

func TestPreimageLayout(t *testing.T) {
	payload := []byte(`{"a":1}`)
	pre := Preimage(payload)

	require.True(t, strings.HasPrefix(string(pre), Domain+"\x00"))
	lenBytes := pre[len(Domain)+1 : len(Domain)+9]
	assert.Equal(t, uint64(len(payload)), binary.BigEndian.Uint64(lenBytes))
	assert.Equal(t, payload, pre[len(Domain)+9:])
}

func TestContentHashDeterministic(t *testing.T) {
	h1, err := ContentHash(testMessage())
	require.NoError(t, err)
	h2, err := ContentHash(testMessage())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	other := testMessage()
	other["TransitionStateMachine"].(map[string]any)["eventName"] = "reject"
	h3, err := ContentHash(other)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
