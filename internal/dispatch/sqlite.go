package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"mediaforge/internal/config"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
)

// SQLiteQueue keeps work units in the job database.
type SQLiteQueue struct {
	store *store.Store
}

// NewSQLite returns a queue backed by st. Closing the queue leaves st open.
func NewSQLite(st *store.Store) *SQLiteQueue {
	return &SQLiteQueue{store: st}
}

// Backend names the backend for logs and status output.
func (q *SQLiteQueue) Backend() string { return config.DispatchSQLite }

// Enqueue stores unit for later delivery.
func (q *SQLiteQueue) Enqueue(ctx context.Context, unit WorkUnit) error {
	payload, err := json.Marshal(unit)
	if err != nil {
		return services.Wrap(services.ErrProcessing, "dispatch", "enqueue", "encode work unit", err)
	}
	_, err = q.store.EnqueueWorkUnit(ctx, unit.JobID, payload)
	return err
}

// Claim takes the oldest queued unit.
func (q *SQLiteQueue) Claim(ctx context.Context, owner string) (*Delivery, error) {
	record, err := q.store.ClaimWorkUnit(ctx, owner)
	if err != nil || record == nil {
		return nil, err
	}
	id := record.ID
	ack := func(ctx context.Context) error { return q.store.AckWorkUnit(ctx, id) }

	var unit WorkUnit
	if err := json.Unmarshal(record.Payload, &unit); err != nil {
		// An undecodable unit can never succeed; drop it instead of redelivering.
		_ = ack(ctx)
		return nil, services.Wrap(services.ErrProcessing, "dispatch", "claim", "decode work unit", err)
	}
	heartbeat := func(ctx context.Context) error { return q.store.HeartbeatWorkUnit(ctx, id) }
	return NewDelivery(unit, record.Attempts, ack, heartbeat), nil
}

// Reclaim requeues units whose worker stopped heart-beating.
func (q *SQLiteQueue) Reclaim(ctx context.Context, cutoff time.Time) (int64, error) {
	return q.store.ReclaimWorkUnits(ctx, cutoff)
}

// Stats reports queued and claimed units.
func (q *SQLiteQueue) Stats(ctx context.Context) (Stats, error) {
	queued, claimed, err := q.store.WorkUnitCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Queued: queued, Claimed: claimed}, nil
}

// Close is a no-op; the store is owned by the caller.
func (q *SQLiteQueue) Close() error { return nil }
