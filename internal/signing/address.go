package signing

import (
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"
)

// AddressPrefix starts every ledger address.
const AddressPrefix = "DAG"

// addressBodyLen is the number of trailing base58 characters kept.
const addressBodyLen = 36

// Address derives the ledger address for pub. It is a pure function of the
// public key: DAG + parity digit + last 36 chars of base58(sha256(X||Y)).
func Address(pub *btcec.PublicKey) string {
	sum := sha256.Sum256(pub.SerializeUncompressed()[1:])
	encoded := base58.Encode(sum[:])
	if len(encoded) > addressBodyLen {
		encoded = encoded[len(encoded)-addressBodyLen:]
	}
	return AddressPrefix + strconv.Itoa(parity(encoded)) + encoded
}

// AddressFromSignerID derives the address for a proof's signer.
func AddressFromSignerID(id string) (string, error) {
	pub, err := PublicKeyFromSignerID(id)
	if err != nil {
		return "", err
	}
	return Address(pub), nil
}

// ValidAddress checks prefix, length, alphabet and parity digit.
func ValidAddress(addr string) bool {
	if !strings.HasPrefix(addr, AddressPrefix) || len(addr) != len(AddressPrefix)+1+addressBodyLen {
		return false
	}
	body := addr[len(AddressPrefix)+1:]
	if _, err := base58.Decode(body); err != nil {
		return false
	}
	digit, err := strconv.Atoi(addr[len(AddressPrefix) : len(AddressPrefix)+1])
	if err != nil {
		return false
	}
	return digit == parity(body)
}

// parity sums the decimal digits appearing in s, modulo 9.
func parity(s string) int {
	sum := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			sum += int(c - '0')
		}
	}
	return sum % 9
}
