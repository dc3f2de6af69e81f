package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediaforge/internal/store"
)

// WorkUnit is the self-contained message a worker needs to execute a job.
type WorkUnit struct {
	JobID          int64           `json:"job_id"`
	ExternalID     string          `json:"external_id"`
	Kind           store.Kind      `json:"kind"`
	AssetID        int64           `json:"asset_id"`
	InputPath      string          `json:"input_path"`
	OutputPathHint string          `json:"output_path_hint,omitempty"`
	Params         json.RawMessage `json:"params"`
}

// NewWorkUnit builds the work unit for job against its input asset.
func NewWorkUnit(job *store.Job, asset *store.Asset, outputHint string) (WorkUnit, error) {
	if job == nil || asset == nil {
		return WorkUnit{}, fmt.Errorf("work unit requires a job and an asset")
	}
	params, err := store.EncodeParams(job.Params)
	if err != nil {
		return WorkUnit{}, fmt.Errorf("encode params: %w", err)
	}
	return WorkUnit{
		JobID:          job.ID,
		ExternalID:     job.ExternalID,
		Kind:           job.Kind,
		AssetID:        asset.ID,
		InputPath:      asset.Path,
		OutputPathHint: outputHint,
		Params:         params,
	}, nil
}

// DecodeParams returns the typed params carried by the unit.
func (u WorkUnit) DecodeParams() (store.Params, error) {
	return store.DecodeParams(u.Kind, u.Params)
}

// Dispatcher hands work units to the queue.
type Dispatcher interface {
	Enqueue(ctx context.Context, unit WorkUnit) error
}

// Consumer is the worker side of the queue.
type Consumer interface {
	// Claim returns the next unit for owner, or nil when the queue is empty.
	Claim(ctx context.Context, owner string) (*Delivery, error)
	// Reclaim requeues claimed units whose last heartbeat is before cutoff.
	Reclaim(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stats summarizes queue depth.
type Stats struct {
	Queued  int
	Claimed int
}

// Queue is a complete backend.
type Queue interface {
	Dispatcher
	Consumer
	Stats(ctx context.Context) (Stats, error)
	Backend() string
	Close() error
}

// Delivery is one claim of a work unit.
type Delivery struct {
	Unit    WorkUnit
	Attempt int

	ack       func(ctx context.Context) error
	heartbeat func(ctx context.Context) error
}

// NewDelivery wraps unit with backend callbacks. Nil callbacks are no-ops.
func NewDelivery(unit WorkUnit, attempt int, ack, heartbeat func(ctx context.Context) error) *Delivery {
	return &Delivery{Unit: unit, Attempt: attempt, ack: ack, heartbeat: heartbeat}
}

// Ack removes the unit from the queue.
func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Heartbeat extends the claim.
func (d *Delivery) Heartbeat(ctx context.Context) error {
	if d == nil || d.heartbeat == nil {
		return nil
	}
	return d.heartbeat(ctx)
}
