// Package journal keeps a local SQLite record of submission attempts and
// observed rejections.
//
// The journal is an audit trail, nothing more. It never feeds the sequence
// coordinator: optimistic sequence state is process-local by design and a
// restart must re-derive it from the ledger.
//
// # Patterns
//
// Idempotent writes:
//   - submissions: UNIQUE(content_hash, status), ON CONFLICT DO NOTHING
//   - rejections: update_hash PRIMARY KEY, ON CONFLICT DO NOTHING
//
// Logical ordering:
//   - submissions are stamped with local_seq, the rowid alias, so SQLite
//     hands out MAX+1 per inserted row with no gaps; never wall-clock time
//   - every query has a total ORDER BY with a COLLATE BINARY tie-break
//
// JSON columns hold canonical JSON so identical data is byte-identical.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
package journal
