// Package rejection classifies asynchronous ledger rejections.
//
// The ledger can accept an envelope at submission time and invalidate it
// later when the snapshot containing it is validated. Those post-hoc
// failures are published as rejection records by an indexer. Some of them
// are expected outcomes of racing submitters (a stale sequence number, an
// event arriving after the state it targeted moved on) and are benign.
// Everything else is critical and must surface to the caller with every
// (code, message) pair attached.
//
// A record is benign only if EVERY error entry carries a benign code. A
// record with no error entries carries no evidence of a race and is
// classified critical.
package rejection
