package submit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaforge/internal/fileutil"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
)

// JobView is the externally visible state of a job.
type JobView struct {
	JobID       string         `json:"job_id"`
	Kind        store.Kind     `json:"kind"`
	Status      store.Status   `json:"status"`
	AssetID     int64          `json:"asset_id"`
	Parameters  map[string]any `json:"parameters"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// NewJobView flattens a job for display.
func NewJobView(job *store.Job) JobView {
	return JobView{
		JobID:       job.ExternalID,
		Kind:        job.Kind,
		Status:      job.Status,
		AssetID:     job.AssetID,
		Parameters:  job.Parameters(),
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}

// AssetView is the externally visible state of an asset.
type AssetView struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	OriginalName    string    `json:"original_name"`
	Path            string    `json:"path"`
	DurationSeconds float64   `json:"duration_seconds"`
	SizeBytes       int64     `json:"size_bytes"`
	Ingested        bool      `json:"ingested"`
	Quality         string    `json:"quality"`
	ParentID        *int64    `json:"parent_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewAssetView converts a stored asset.
func NewAssetView(asset *store.Asset) AssetView {
	return AssetView{
		ID:              asset.ID,
		Name:            asset.Name,
		OriginalName:    asset.OriginalName,
		Path:            asset.Path,
		DurationSeconds: asset.DurationSeconds,
		SizeBytes:       asset.SizeBytes,
		Ingested:        asset.Ingested,
		Quality:         asset.Quality,
		ParentID:        asset.ParentID,
		CreatedAt:       asset.CreatedAt,
	}
}

// Status returns the job with the given external id.
func (s *Service) Status(ctx context.Context, externalID string) (JobView, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return JobView{}, services.Wrap(services.ErrValidation, "submit", "status", "job id is required", nil)
	}
	job, err := s.store.GetJobByExternalID(ctx, externalID)
	if err != nil {
		return JobView{}, err
	}
	return NewJobView(job), nil
}

// ListJobs returns jobs matching filter, newest first.
func (s *Service) ListJobs(ctx context.Context, filter store.JobFilter) ([]JobView, error) {
	jobs, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, NewJobView(job))
	}
	return views, nil
}

// GetAsset returns one asset.
func (s *Service) GetAsset(ctx context.Context, id int64) (AssetView, error) {
	asset, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return AssetView{}, err
	}
	return NewAssetView(asset), nil
}

// ListAssets returns assets in insertion order. A non-positive limit returns
// all assets from offset.
func (s *Service) ListAssets(ctx context.Context, offset, limit int) ([]AssetView, error) {
	assets, err := s.store.ListAssets(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return assetViews(assets), nil
}

// Children returns the direct derivatives of an asset.
func (s *Service) Children(ctx context.Context, id int64) ([]AssetView, error) {
	if _, err := s.store.GetAsset(ctx, id); err != nil {
		return nil, err
	}
	children, err := s.store.ListChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	return assetViews(children), nil
}

// ExportAsset copies the asset's media file into destDir under its display
// name and returns the written path.
func (s *Service) ExportAsset(ctx context.Context, id int64, destDir string) (string, error) {
	asset, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(destDir) == "" {
		destDir = "."
	}
	name := filepath.Base(asset.Name)
	if filepath.Ext(name) == "" {
		name += filepath.Ext(asset.Path)
	}
	dest := filepath.Join(destDir, name)
	if _, err := os.Stat(dest); err == nil {
		return "", services.Wrap(services.ErrPrecondition, "submit", "export", dest+" already exists", nil)
	}
	if _, err := fileutil.CopyNew(asset.Path, dest); err != nil {
		return "", services.Wrap(services.ErrProcessing, "submit", "export", "copy "+asset.Path, err)
	}
	return dest, nil
}

func assetViews(assets []*store.Asset) []AssetView {
	views := make([]AssetView, 0, len(assets))
	for _, asset := range assets {
		views = append(views, NewAssetView(asset))
	}
	return views
}
