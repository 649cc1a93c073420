package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/fiberclient/internal/canon"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/submit"
)

// RecordAttempt stores a submission attempt. Implements submit.Recorder.
// A second attempt with the same content hash and status is ignored.
func (j *Journal) RecordAttempt(ctx context.Context, a submit.Attempt) error {
	signers, err := marshalStrings(a.Signers)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	var target sql.NullInt64
	if a.TargetSeq != nil {
		target = sql.NullInt64{Int64: *a.TargetSeq, Valid: true}
	}

	// local_seq is the rowid alias; SQLite assigns MAX+1 only for rows that
	// are actually inserted, so duplicates leave no gap.
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO submissions
		(content_hash, ledger_hash, fiber_id, kind, target_seq, status, error, signers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		a.ContentHash,
		a.LedgerHash,
		a.FiberID,
		string(a.Kind),
		target,
		string(a.Status),
		a.Error,
		signers,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// RecordRejections stores rejection records with their classification and
// returns how many were new. Records without an update hash cannot be
// deduplicated and are skipped.
func (j *Journal) RecordRejections(ctx context.Context, records []rejection.Record, c *rejection.Classifier) (int, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("record rejections: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, r := range records {
		if r.UpdateHash == "" {
			continue
		}
		errorsJSON, err := marshalEntries(r.Errors)
		if err != nil {
			return 0, fmt.Errorf("record rejection %s: %w", r.UpdateHash, err)
		}
		signers, err := marshalStrings(r.Signers)
		if err != nil {
			return 0, fmt.Errorf("record rejection %s: %w", r.UpdateHash, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO rejections
			(update_hash, fiber_id, update_type, ordinal, errors, signers, classification)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(update_hash) DO NOTHING
		`,
			r.UpdateHash,
			r.FiberID,
			r.UpdateType,
			r.Ordinal,
			errorsJSON,
			signers,
			string(c.Classify(r)),
		)
		if err != nil {
			return 0, fmt.Errorf("record rejection %s: %w", r.UpdateHash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("record rejection %s: %w", r.UpdateHash, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("record rejections: %w", err)
	}
	return inserted, nil
}

func marshalStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	data, err := canon.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func marshalEntries(entries []rejection.ErrorEntry) (string, error) {
	if entries == nil {
		entries = []rejection.ErrorEntry{}
	}
	data, err := canon.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
