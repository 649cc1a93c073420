// Package ledger is the HTTP transport to the ledger's submission endpoint,
// its read replica and the rejection indexer.
//
// Three distinct hosts are involved and they are NOT synchronized: the
// ledger accepts writes that the replica observes later, and the indexer
// reports post-hoc rejections later still. Callers must treat every read as
// potentially stale. The package performs no retries and keeps no state
// besides its configuration.
package ledger
