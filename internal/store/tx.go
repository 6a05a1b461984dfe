package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vitaliisemenov/execution-bridge/internal/apperrors"
)

// TxHandle is the transactional surface exposed to callers of WithTx. The
// only implementation is *TxStore, which cannot be constructed outside this
// package, so BulkUpdateSentTimestamp is unreachable outside an active
// transaction — the un-bypassable contract called for by the design notes.
type TxHandle interface {
	BulkUpdateSentTimestamp(ctx context.Context, ids []int64, instant time.Time) (int, error)
}

// TxStore is the concrete transactional handle backing TxHandle.
type TxStore struct {
	tx pgx.Tx
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any error (including a panic, which is re-raised after
// rollback).
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxHandle) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.ClassifyDatabaseError("with_tx_begin", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, &TxStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.ClassifyDatabaseError("with_tx_commit", err)
	}
	committed = true
	return nil
}

// BulkUpdateSentTimestamp sets sent_timestamp on every row in ids that does
// not already have one set, returning the number of rows updated. Must run
// inside a transaction (enforced by requiring a *TxStore, obtainable only
// via WithTx).
func (tx *TxStore) BulkUpdateSentTimestamp(ctx context.Context, ids []int64, instant time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	const q = `UPDATE execution SET sent_timestamp = $1
		WHERE id = ANY($2) AND sent_timestamp IS NULL`

	tag, err := tx.tx.Exec(ctx, q, instant, ids)
	if err != nil {
		return 0, apperrors.ClassifyDatabaseError("bulk_update_sent_timestamp", err)
	}
	return int(tag.RowsAffected()), nil
}

// ExecutionsByIDs loads id and sent_timestamp for the given ids within the
// same, still open transaction. It is not part of TxHandle, and the
// pipeline does not call it.
func (tx *TxStore) ExecutionsByIDs(ctx context.Context, ids []int64) (map[int64]*execRow, error) {
	if len(ids) == 0 {
		return map[int64]*execRow{}, nil
	}
	rows, err := tx.tx.Query(ctx, `SELECT id, sent_timestamp FROM execution WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, apperrors.ClassifyDatabaseError("executions_by_ids", err)
	}
	defer rows.Close()

	out := make(map[int64]*execRow, len(ids))
	for rows.Next() {
		var r execRow
		if err := rows.Scan(&r.ID, &r.SentTimestamp); err != nil {
			return nil, apperrors.ClassifyDatabaseError("executions_by_ids_scan", err)
		}
		out[r.ID] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ClassifyDatabaseError("executions_by_ids", err)
	}
	return out, nil
}

type execRow struct {
	ID            int64
	SentTimestamp *time.Time
}

// ErrBulkUpdateCountMismatch is returned by callers (the batch pipeline)
// when BulkUpdateSentTimestamp's affected-row count diverges from the
// expected count, signaling data divergence that must fail the batch.
func ErrBulkUpdateCountMismatch(expected, actual int) error {
	return fmt.Errorf("bulkUpdateSentTimestamp affected %d rows, expected %d: data diverged", actual, expected)
}
