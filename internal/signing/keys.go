package signing

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PrivateKeySize is the length of a secp256k1 private scalar.
const PrivateKeySize = 32

// KeyPair is a secp256k1 private scalar and its public point.
// The address is always derived from the public key, never stored.
type KeyPair struct {
	priv *btcec.PrivateKey
	pub  *btcec.PublicKey
}

// KeyPairFromBytes builds a key pair from a 32-byte private scalar.
// Rejects zero and scalars outside the curve order instead of reducing them.
func KeyPairFromBytes(b []byte) (*KeyPair, error) {
	if len(b) == 0 {
		return nil, &KeyError{Code: ErrCodeMissingKey, Message: "private key is empty"}
	}
	if len(b) != PrivateKeySize {
		return nil, &KeyError{Code: ErrCodeInvalidKey, Message: "private key must be 32 bytes"}
	}
	d := new(big.Int).SetBytes(b)
	if d.Sign() == 0 || d.Cmp(btcec.S256().N) >= 0 {
		return nil, &KeyError{Code: ErrCodeInvalidKey, Message: "private key out of range"}
	}
	priv, pub := btcec.PrivKeyFromBytes(b)
	return &KeyPair{priv: priv, pub: pub}, nil
}

// KeyPairFromHex parses a hex-encoded private scalar. A leading "0x" and
// surrounding whitespace are tolerated.
func KeyPairFromHex(s string) (*KeyPair, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, &KeyError{Code: ErrCodeMissingKey, Message: "private key is empty"}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &KeyError{Code: ErrCodeInvalidKey, Message: "private key is not hex", Err: err}
	}
	return KeyPairFromBytes(b)
}

// GenerateKeyPair creates a fresh random key pair.
// Key custody is the caller's concern; this exists for tests and tooling.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, &KeyError{Code: ErrCodeInvalidKey, Message: "generate key", Err: err}
	}
	return &KeyPair{priv: priv, pub: priv.PubKey()}, nil
}

// PrivateKeyHex exports the private scalar. Only tooling that hands a new
// key to its owner should call this.
func (k *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// SignerID returns the identity used in proofs: hex of the 64-byte
// uncompressed public point (X || Y) without the 0x04 prefix.
func (k *KeyPair) SignerID() string {
	return SignerIDFromPublicKey(k.pub)
}

// PublicKey returns the public point.
func (k *KeyPair) PublicKey() *btcec.PublicKey {
	return k.pub
}

// Address returns the ledger address derived from the public key.
func (k *KeyPair) Address() string {
	return Address(k.pub)
}

// SignerIDFromPublicKey encodes pub as a signer ID.
func SignerIDFromPublicKey(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeUncompressed()[1:])
}

// PublicKeyFromSignerID parses a signer ID back into a public point.
// Accepts the 128-char form as well as full SEC1 encodings (compressed or
// uncompressed, with prefix).
func PublicKeyFromSignerID(id string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(id, "0x"))
	if err != nil {
		return nil, &KeyError{Code: ErrCodeInvalidSignerID, Message: "signer id is not hex", Err: err}
	}
	if len(raw) == 64 {
		raw = append([]byte{0x04}, raw...)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, &KeyError{Code: ErrCodeInvalidSignerID, Message: "signer id is not a secp256k1 point", Err: err}
	}
	return pub, nil
}
