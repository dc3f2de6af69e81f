package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediaforge/internal/services"
)

// CreateJob inserts a pending job for assetID. A nil params value stores the
// empty params of kind. An empty externalID is replaced with a fresh UUID.
func (s *Session) CreateJob(ctx context.Context, externalID string, assetID int64, kind Kind, params Params) (*Job, error) {
	ctx = ensureContext(ctx)
	if !kind.IsValid() {
		return nil, services.Wrap(services.ErrValidation, "store", "create job", fmt.Sprintf("unknown kind %q", kind), nil)
	}
	if params == nil {
		params, _ = ParamsForKind(kind)
	}
	if err := checkParams(kind, params); err != nil {
		return nil, services.Wrap(services.ErrValidation, "store", "create job", "", err)
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		externalID = uuid.NewString()
	}
	paramsJSON, err := EncodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	var created *Job
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := assetExists(ctx, tx, assetID)
		if err != nil {
			return err
		}
		if !exists {
			return services.Wrap(services.ErrNotFound, "store", "create job",
				fmt.Sprintf("asset %d", assetID), ErrReference)
		}
		now := formatTime(time.Now())
		res, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (external_id, asset_id, kind, status, params_json, result_json, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, '{}', ?, ?)`,
			externalID,
			assetID,
			kind,
			StatusPending,
			string(paramsJSON),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		created, err = getJob(ctx, tx, `id = ?`, id)
		return err
	})
	if err != nil {
		return nil, persistenceError("create job", err)
	}
	return created, nil
}

// GetJob fetches a job by internal id.
func (s *Session) GetJob(ctx context.Context, id int64) (*Job, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	job, err := getJob(ensureContext(ctx), q, `id = ?`, id)
	if err != nil {
		return nil, persistenceError("get job", err)
	}
	return job, nil
}

// GetJobByExternalID fetches a job by its public identifier.
func (s *Session) GetJobByExternalID(ctx context.Context, externalID string) (*Job, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	job, err := getJob(ensureContext(ctx), q, `external_id = ?`, strings.TrimSpace(externalID))
	if err != nil {
		return nil, persistenceError("get job", err)
	}
	return job, nil
}

// UpdateStatus moves a job to status and merges patch into its result, all in
// one transaction.
//
// A job already in a terminal status is returned unchanged. A live job may
// only move pending to processing and processing to completed or failed;
// anything else fails with ErrInvalidTransition. Repeating the current status
// is allowed so redelivered work can proceed. Both terminal statuses stamp
// CompletedAt.
func (s *Session) UpdateStatus(ctx context.Context, id int64, status Status, patch *Result) (*Job, error) {
	ctx = ensureContext(ctx)
	if !status.IsValid() {
		return nil, services.Wrap(services.ErrValidation, "store", "update status", fmt.Sprintf("unknown status %q", status), nil)
	}

	var updated *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJob(ctx, tx, `id = ?`, id)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			updated = current
			return nil
		}
		if !current.Status.CanTransition(status) {
			return fmt.Errorf("%w: job %d from %s to %s", ErrInvalidTransition, id, current.Status, status)
		}

		result := current.Result.merge(patch)
		resultJSON, err := encodeResult(result)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		var completedAt *time.Time
		if status.IsTerminal() {
			completedAt = &now
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, result_json = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
			status,
			resultJSON,
			formatTime(now),
			nullableTime(completedAt),
			id,
		); err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		updated, err = getJob(ctx, tx, `id = ?`, id)
		return err
	})
	if err != nil {
		return nil, persistenceError("update status", err)
	}
	return updated, nil
}

// DiscardPendingJob removes a job that never left pending, along with any
// work unit queued for it. It undoes a submission whose dispatch failed; a
// job that has started is left alone and reported as ErrInvalidTransition.
func (s *Session) DiscardPendingJob(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJob(ctx, tx, `id = ?`, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return fmt.Errorf("%w: job %d is %s, only pending jobs can be discarded", ErrInvalidTransition, id, current.Status)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM work_units WHERE job_id = ?`, id); err != nil {
			return fmt.Errorf("delete work units: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return nil
	})
	if err != nil {
		return persistenceError("discard job", err)
	}
	return nil
}

// ListJobs returns jobs matching filter, newest first.
func (s *Session) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.AssetID > 0 {
		clauses = append(clauses, `asset_id = ?`)
		args = append(args, filter.AssetID)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, persistenceError("list jobs", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, persistenceError("scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate jobs", err)
	}
	return jobs, nil
}

// JobCounts returns the number of jobs per status. Every status is present.
func (s *Session) JobCounts(ctx context.Context) (map[Status]int, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, persistenceError("count jobs", err)
	}
	defer rows.Close()

	counts := make(map[Status]int, len(nextStatuses))
	for _, status := range AllStatuses() {
		counts[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, persistenceError("scan job count", err)
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate job counts", err)
	}
	return counts, nil
}

func getJob(ctx context.Context, q queryer, where string, arg any) (*Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE `+where, arg)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "job", fmt.Sprintf("job %v", arg), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

func encodeResult(result Result) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
