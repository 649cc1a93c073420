package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/fiberclient/internal/message"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/submit"
)

// Submission is a stored attempt.
type Submission struct {
	LocalSeq int64
	submit.Attempt
}

// StoredRejection is a stored rejection record.
type StoredRejection struct {
	rejection.Record
	Classification rejection.Classification
}

// Submissions returns fiberID's attempts in local order.
// Returns an empty slice (not nil) if there are none.
func (j *Journal) Submissions(ctx context.Context, fiberID string) ([]Submission, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT local_seq, content_hash, ledger_hash, fiber_id, kind, target_seq, status, error, signers
		FROM submissions
		WHERE fiber_id = ?
		ORDER BY local_seq ASC, content_hash COLLATE BINARY ASC
	`, fiberID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	return scanSubmissions(rows)
}

// RejectedSubmissions returns accepted submissions whose ledger hash later
// showed up in the rejections table.
func (j *Journal) RejectedSubmissions(ctx context.Context, fiberID string) ([]Submission, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.local_seq, s.content_hash, s.ledger_hash, s.fiber_id, s.kind, s.target_seq, s.status, s.error, s.signers
		FROM submissions s
		JOIN rejections r ON r.update_hash = s.ledger_hash
		WHERE s.fiber_id = ? AND s.status = 'accepted'
		ORDER BY s.local_seq ASC, s.content_hash COLLATE BINARY ASC
	`, fiberID)
	if err != nil {
		return nil, fmt.Errorf("query rejected submissions: %w", err)
	}
	return scanSubmissions(rows)
}

// Rejections returns fiberID's stored rejections ordered by ordinal.
// Returns an empty slice (not nil) if there are none.
func (j *Journal) Rejections(ctx context.Context, fiberID string) ([]StoredRejection, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT update_hash, fiber_id, update_type, ordinal, errors, signers, classification
		FROM rejections
		WHERE fiber_id = ?
		ORDER BY ordinal ASC, update_hash COLLATE BINARY ASC
	`, fiberID)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	out := []StoredRejection{}
	for rows.Next() {
		var (
			sr                     StoredRejection
			errorsJSON, signersRaw string
			class                  string
		)
		if err := rows.Scan(&sr.UpdateHash, &sr.FiberID, &sr.UpdateType, &sr.Ordinal, &errorsJSON, &signersRaw, &class); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &sr.Errors); err != nil {
			return nil, fmt.Errorf("decode rejection %s errors: %w", sr.UpdateHash, err)
		}
		if err := json.Unmarshal([]byte(signersRaw), &sr.Signers); err != nil {
			return nil, fmt.Errorf("decode rejection %s signers: %w", sr.UpdateHash, err)
		}
		sr.Classification = rejection.Classification(class)
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejections: %w", err)
	}
	return out, nil
}

func scanSubmissions(rows *sql.Rows) ([]Submission, error) {
	defer rows.Close()

	out := []Submission{}
	for rows.Next() {
		var (
			s       Submission
			kind    string
			status  string
			target  sql.NullInt64
			signers string
		)
		if err := rows.Scan(&s.LocalSeq, &s.ContentHash, &s.LedgerHash, &s.FiberID, &kind, &target, &status, &s.Error, &signers); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		s.Kind = message.Kind(kind)
		s.Status = submit.Status(status)
		if target.Valid {
			v := target.Int64
			s.TargetSeq = &v
		}
		if err := json.Unmarshal([]byte(signers), &s.Signers); err != nil {
			return nil, fmt.Errorf("decode submission %s signers: %w", s.ContentHash, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}
