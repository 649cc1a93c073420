// Package signing produces and verifies secp256k1 proofs over canonical
// message bytes.
//
// Every digest is computed over a domain-separated preimage:
//
//	SHA256(Domain || 0x00 || uint64be(len(payload)) || payload)
//
// where payload is the RFC 8785 canonical encoding of the value being
// signed. The domain carries a version suffix so the preimage format can
// migrate without ambiguity, and the explicit length prevents a payload
// from being reinterpreted under a different prefix.
//
// Proofs are independent of one another: any number of parties can sign
// the same value concurrently and merge their proofs in any order.
package signing
