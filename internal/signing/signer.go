package signing

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fiberclient/internal/canon"
)

// Domain is the versioned domain-separation prefix for signed data.
const Domain = "fiberclient/signed-data/v1"

// Proof binds a signer identity to a signature over a value's digest.
type Proof struct {
	ID        string `json:"id"`        // SignerID of the public key
	Signature string `json:"signature"` // hex DER-encoded ECDSA signature
}

// SignedMessage is a value plus one or more proofs over its canonical bytes.
type SignedMessage struct {
	Value  any     `json:"value"`
	Proofs []Proof `json:"proofs"`
}

// VerifyResult partitions proofs by verification outcome.
type VerifyResult struct {
	Valid   []Proof
	Invalid []Proof
}

// OK reports whether at least one proof was present and every proof verified.
func (r VerifyResult) OK() bool {
	return len(r.Valid) > 0 && len(r.Invalid) == 0
}

// Preimage wraps canonical payload bytes in the domain-separation envelope.
func Preimage(payload []byte) []byte {
	out := make([]byte, 0, len(Domain)+1+8+len(payload))
	out = append(out, Domain...)
	out = append(out, 0x00) // Null separator - CRITICAL for domain/data boundary
	out = binary.BigEndian.AppendUint64(out, uint64(len(payload)))
	return append(out, payload...)
}

// Digest canonicalizes v and hashes its domain-separated preimage.
func Digest(v any) ([]byte, error) {
	payload, err := canon.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}
	return digestPayload(payload), nil
}

func digestPayload(payload []byte) []byte {
	sum := sha256.Sum256(Preimage(payload))
	return sum[:]
}

// ContentHash is the hex SHA-256 of v's canonical bytes. It identifies a
// transaction independently of who signed it.
func ContentHash(v any) (string, error) {
	payload, err := canon.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Sign produces a proof over v with key. Fails if v cannot be canonicalized.
func Sign(v any, key *KeyPair) (Proof, error) {
	if key == nil {
		return Proof{}, &KeyError{Code: ErrCodeMissingKey, Message: "no signing key"}
	}
	digest, err := Digest(v)
	if err != nil {
		return Proof{}, err
	}
	return signDigest(digest, key), nil
}

func signDigest(digest []byte, key *KeyPair) Proof {
	sig := ecdsa.Sign(key.priv, digest)
	return Proof{
		ID:        key.SignerID(),
		Signature: hex.EncodeToString(sig.Serialize()),
	}
}

// Verify recomputes v's digest and checks proof against the public key
// encoded in proof.ID. It never panics or errors: malformed input is false.
func Verify(v any, proof Proof) bool {
	digest, err := Digest(v)
	if err != nil {
		return false
	}
	return verifyDigest(digest, proof)
}

func verifyDigest(digest []byte, proof Proof) bool {
	pub, err := PublicKeyFromSignerID(proof.ID)
	if err != nil {
		return false
	}
	raw, err := hex.DecodeString(proof.Signature)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return false
	}
	return sig.Verify(digest, pub)
}

// BatchSign produces one proof per key over the identical digest. Keys are
// signed concurrently; the resulting proofs are sorted by signer ID so the
// envelope is the same regardless of key order.
func BatchSign(ctx context.Context, v any, keys ...*KeyPair) (*SignedMessage, error) {
	if len(keys) == 0 {
		return nil, &KeyError{Code: ErrCodeMissingKey, Message: "no signing keys"}
	}
	for i, k := range keys {
		if k == nil {
			return nil, &KeyError{Code: ErrCodeMissingKey, Message: fmt.Sprintf("signing key %d is nil", i)}
		}
	}

	digest, err := Digest(v)
	if err != nil {
		return nil, err
	}

	proofs := make([]Proof, len(keys))
	g, _ := errgroup.WithContext(ctx)
	for i, k := range keys {
		g.Go(func() error {
			proofs[i] = signDigest(digest, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sm := &SignedMessage{Value: v}
	for _, p := range proofs {
		sm.AddProof(p)
	}
	return sm, nil
}

// AddProof merges p into the message. A second proof from the same signer
// replaces the first; proofs stay sorted by signer ID.
func (sm *SignedMessage) AddProof(p Proof) {
	for i, existing := range sm.Proofs {
		if strings.EqualFold(existing.ID, p.ID) {
			sm.Proofs[i] = p
			return
		}
	}
	sm.Proofs = append(sm.Proofs, p)
	slices.SortFunc(sm.Proofs, func(a, b Proof) int {
		return strings.Compare(strings.ToLower(a.ID), strings.ToLower(b.ID))
	})
}

// CoSign adds a proof from key to an existing signed message.
func (sm *SignedMessage) CoSign(key *KeyPair) error {
	p, err := Sign(sm.Value, key)
	if err != nil {
		return err
	}
	sm.AddProof(p)
	return nil
}

// VerifyAll checks every proof and reports which verified. A value that
// cannot be canonicalized fails every proof.
func (sm *SignedMessage) VerifyAll(ctx context.Context) VerifyResult {
	var res VerifyResult
	digest, err := Digest(sm.Value)
	if err != nil {
		res.Invalid = append(res.Invalid, sm.Proofs...)
		return res
	}

	ok := make([]bool, len(sm.Proofs))
	g, _ := errgroup.WithContext(ctx)
	for i, p := range sm.Proofs {
		g.Go(func() error {
			ok[i] = verifyDigest(digest, p)
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range sm.Proofs {
		if ok[i] {
			res.Valid = append(res.Valid, p)
		} else {
			res.Invalid = append(res.Invalid, p)
		}
	}
	return res
}

// Signers returns the addresses of every proof whose ID parses.
func (sm *SignedMessage) Signers() []string {
	addrs := make([]string, 0, len(sm.Proofs))
	for _, p := range sm.Proofs {
		if addr, err := AddressFromSignerID(p.ID); err == nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
