package store

import (
	"errors"
	"time"
)

var (
	// ErrReference reports a write that names an asset which does not exist.
	ErrReference = errors.New("referenced asset does not exist")
	// ErrInvalidTransition reports a status change that skips or reverses a
	// step of pending, processing, completed or failed.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// QualityOriginal marks an asset that was uploaded rather than re-encoded.
const QualityOriginal = "original"

// Asset is a stored media file.
type Asset struct {
	ID              int64
	Name            string
	OriginalName    string
	Path            string
	DurationSeconds float64
	SizeBytes       int64
	Ingested        bool
	Quality         string
	ParentID        *int64
	CreatedAt       time.Time
}

// IsDerived reports whether the asset was produced from another asset.
func (a Asset) IsDerived() bool {
	return a.ParentID != nil
}

// NewAsset describes an asset to insert. Metadata fields are optional; set
// Ingested when duration and size are already known.
type NewAsset struct {
	Name            string
	OriginalName    string
	Path            string
	DurationSeconds float64
	SizeBytes       int64
	Ingested        bool
	Quality         string
	ParentID        *int64
}

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// nextStatuses lists the moves allowed out of each live status. Repeating the
// current status is allowed so redelivered work can proceed; terminal
// statuses have no moves.
var nextStatuses = map[Status][]Status{
	StatusPending:    {StatusPending, StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
	StatusCompleted:  nil,
	StatusFailed:     nil,
}

// AllStatuses returns every job status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
}

// IsValid reports whether s names a known status.
func (s Status) IsValid() bool {
	_, ok := nextStatuses[s]
	return ok
}

// CanTransition reports whether a job in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range nextStatuses[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind names the operation a job performs.
type Kind string

const (
	KindIngest       Kind = "ingest"
	KindTrim         Kind = "trim"
	KindQuality      Kind = "quality"
	KindBRollOverlay Kind = "b_roll_overlay"
	KindImageOverlay Kind = "image_overlay"
	KindWatermark    Kind = "watermark"
)

// AllKinds lists every supported job kind.
func AllKinds() []Kind {
	return []Kind{KindIngest, KindTrim, KindQuality, KindBRollOverlay, KindImageOverlay, KindWatermark}
}

// IsValid reports whether k names a known kind.
func (k Kind) IsValid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ProducesAsset reports whether a successful job of this kind creates a derived asset.
func (k Kind) ProducesAsset() bool {
	return k.IsValid() && k != KindIngest
}

// Job is one requested operation on an asset.
type Job struct {
	ID          int64
	ExternalID  string
	AssetID     int64
	Kind        Kind
	Status      Status
	Params      Params
	Result      Result
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Parameters returns the flattened request parameters merged with the result
// record. Result keys win on collision.
func (j Job) Parameters() map[string]any {
	merged := map[string]any{}
	if j.Params != nil {
		for key, value := range j.Params.values() {
			merged[key] = value
		}
	}
	for key, value := range j.Result.values() {
		merged[key] = value
	}
	return merged
}

// Result is the outcome recorded on a job.
type Result struct {
	ProducedAssetID *int64 `json:"produced_asset_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

// merge overlays non-empty fields from patch.
func (r Result) merge(patch *Result) Result {
	if patch == nil {
		return r
	}
	if patch.ProducedAssetID != nil {
		id := *patch.ProducedAssetID
		r.ProducedAssetID = &id
	}
	if patch.Error != "" {
		r.Error = patch.Error
	}
	return r
}

func (r Result) values() map[string]any {
	out := map[string]any{}
	if r.ProducedAssetID != nil {
		out["produced_asset_id"] = *r.ProducedAssetID
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Statuses []Status
	AssetID  int64
	Limit    int
}

// WorkUnitRecord is a queued or claimed work unit row.
type WorkUnitRecord struct {
	ID         int64
	JobID      int64
	Payload    []byte
	Attempts   int
	Owner      string
	EnqueuedAt time.Time
}
