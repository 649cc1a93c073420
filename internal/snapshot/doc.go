// Package snapshot decodes the application-state part of ledger snapshots.
//
// A snapshot carries the data application's on-chain state at
// value.dataApplication.onChainState as the UTF-8 bytes of a JSON document
// with no further framing. Serializers disagree on how those bytes appear
// in the snapshot JSON: as an array of signed bytes (-128..127), an array
// of unsigned bytes, or a base64 string. All three are accepted.
//
// Log entries carry no discriminant tag. EventReceipt and OracleInvocation
// are told apart only by which fields are present:
//
//	EventReceipt:     eventName + success
//	OracleInvocation: method + result
//
// An entry carrying both field sets matches both filters; it is reported
// by Ambiguous rather than guessed at.
package snapshot
