// Package message defines the closed set of ledger transactions that drive
// fibers.
//
// Message is a sealed interface: only the five variants declared here
// implement it, and every switch over it is exhaustive. On the wire a
// message is externally tagged by its kind:
//
//	{"TransitionStateMachine": {"fiberId": "...", "eventName": "...", ...}}
//
// Definition, payload and script bodies are opaque JSON. This package
// transmits them verbatim and never interprets them.
package message
