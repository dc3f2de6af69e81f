package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	workUnitQueued  = "queued"
	workUnitClaimed = "claimed"
)

// EnqueueWorkUnit appends a serialized work unit for jobID to the queue.
func (s *Session) EnqueueWorkUnit(ctx context.Context, jobID int64, payload []byte) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO work_units (job_id, payload, state, enqueued_at) VALUES (?, ?, ?, ?)`,
		jobID, string(payload), workUnitQueued, formatTime(time.Now()))
	if err != nil {
		return 0, persistenceError("enqueue work unit", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, persistenceError("enqueue work unit", err)
	}
	return id, nil
}

// ClaimWorkUnit atomically claims the oldest queued work unit for owner. It
// returns nil when the queue is empty.
func (s *Session) ClaimWorkUnit(ctx context.Context, owner string) (*WorkUnitRecord, error) {
	ctx = ensureContext(ctx)
	var claimed *WorkUnitRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		row := tx.QueryRowContext(ctx,
			`UPDATE work_units
             SET state = ?, owner = ?, claimed_at = ?, last_heartbeat = ?, attempts = attempts + 1
             WHERE id = (SELECT id FROM work_units WHERE state = ? ORDER BY id LIMIT 1)
             RETURNING id, job_id, payload, attempts, enqueued_at`,
			workUnitClaimed, nullableString(owner), now, now, workUnitQueued)
		var (
			record      WorkUnitRecord
			payload     string
			enqueuedRaw sql.NullString
		)
		if err := row.Scan(&record.ID, &record.JobID, &payload, &record.Attempts, &enqueuedRaw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("claim work unit: %w", err)
		}
		record.Payload = []byte(payload)
		record.Owner = owner
		if enqueued, err := parseTimeString(enqueuedRaw.String); err == nil {
			record.EnqueuedAt = enqueued
		}
		claimed = &record
		return nil
	})
	if err != nil {
		return nil, persistenceError("claim work unit", err)
	}
	return claimed, nil
}

// AckWorkUnit removes a finished work unit.
func (s *Session) AckWorkUnit(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM work_units WHERE id = ?`, id); err != nil {
		return persistenceError("ack work unit", err)
	}
	return nil
}

// HeartbeatWorkUnit refreshes the lease on a claimed work unit.
func (s *Session) HeartbeatWorkUnit(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE work_units SET last_heartbeat = ? WHERE id = ? AND state = ?`,
		formatTime(time.Now()), id, workUnitClaimed); err != nil {
		return persistenceError("heartbeat work unit", err)
	}
	return nil
}

// ReclaimWorkUnits requeues claimed units whose last heartbeat is older than
// cutoff and returns how many were requeued.
func (s *Session) ReclaimWorkUnits(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE work_units
         SET state = ?, owner = NULL, claimed_at = NULL, last_heartbeat = NULL
         WHERE state = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		workUnitQueued, workUnitClaimed, formatTime(cutoff))
	if err != nil {
		return 0, persistenceError("reclaim work units", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, persistenceError("reclaim work units", err)
	}
	return affected, nil
}

// WorkUnitCounts returns the number of queued and claimed work units.
func (s *Session) WorkUnitCounts(ctx context.Context) (queued, claimed int, err error) {
	q, err := s.reader()
	if err != nil {
		return 0, 0, err
	}
	err = q.QueryRowContext(ensureContext(ctx),
		`SELECT
            COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0)
         FROM work_units`,
		workUnitQueued, workUnitClaimed).Scan(&queued, &claimed)
	if err != nil {
		return 0, 0, persistenceError("count work units", err)
	}
	return queued, claimed, nil
}
