package api

import (
	"encoding/json"
	"net/http"

	"mediaforge/internal/deps"
	"mediaforge/internal/dispatch"
	"mediaforge/internal/preflight"
	"mediaforge/internal/services"
	"mediaforge/internal/store"
	"mediaforge/internal/submit"
	"mediaforge/internal/worker"
)

// SubmitRequest asks for a job of Kind on AssetID. Params uses the stored
// parameter names of the kind (start_time, quality, overlay_path, ...).
type SubmitRequest struct {
	Kind    string          `json:"kind"`
	AssetID int64           `json:"asset_id"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// UploadRequest asks the daemon to upload a file it can read.
type UploadRequest struct {
	Path string `json:"path"`
}

// SubmitResponse identifies the accepted job.
type SubmitResponse struct {
	Job submit.Submission `json:"job"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job submit.JobView `json:"job"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []submit.JobView `json:"jobs"`
}

// AssetResponse wraps a single asset and its direct derivatives.
type AssetResponse struct {
	Asset    submit.AssetView   `json:"asset"`
	Children []submit.AssetView `json:"children"`
}

// AssetListResponse wraps a collection of assets.
type AssetListResponse struct {
	Assets []submit.AssetView `json:"assets"`
}

// OverlayListResponse wraps the overlay catalog.
type OverlayListResponse struct {
	Overlays []submit.Overlay `json:"overlays"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// PoolStatus mirrors worker pool activity.
type PoolStatus struct {
	Running   bool   `json:"running"`
	Workers   int    `json:"workers"`
	Busy      int    `json:"busy"`
	Executed  int64  `json:"executed"`
	LastError string `json:"last_error,omitempty"`
}

// QueueStatus reports dispatch queue depth.
type QueueStatus struct {
	Backend string `json:"backend"`
	Queued  int    `json:"queued"`
	Claimed int    `json:"claimed"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckStatus is the outcome of one environment check.
type CheckStatus struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// JobCount is the number of jobs in one status.
type JobCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"database_path"`
	LockFilePath string             `json:"lock_file_path"`
	Pool         PoolStatus         `json:"pool"`
	Queue        QueueStatus        `json:"queue"`
	Jobs         []JobCount         `json:"jobs"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckStatus      `json:"checks"`
}

// FromPoolStatus converts worker pool state.
func FromPoolStatus(status worker.PoolStatus) PoolStatus {
	return PoolStatus{
		Running:   status.Running,
		Workers:   status.Workers,
		Busy:      status.Busy,
		Executed:  status.Executed,
		LastError: status.LastError,
	}
}

// FromQueueStats converts dispatch queue depth.
func FromQueueStats(backend string, stats dispatch.Stats) QueueStatus {
	return QueueStatus{Backend: backend, Queued: stats.Queued, Claimed: stats.Claimed}
}

// FromDependencies converts preflight results.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus{
			Name:        status.Name,
			Command:     status.Command,
			Description: status.Description,
			Available:   status.Available,
			Detail:      status.Detail,
		})
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckStatus {
	out := make([]CheckStatus, 0, len(results))
	for _, result := range results {
		out = append(out, CheckStatus{Name: result.Name, Passed: result.Passed, Detail: result.Detail})
	}
	return out
}

// JobCounts lists per-status counts in lifecycle order.
func JobCounts(counts map[store.Status]int) []JobCount {
	out := make([]JobCount, 0, len(counts))
	for _, status := range store.AllStatuses() {
		out = append(out, JobCount{Status: string(status), Count: counts[status]})
	}
	return out
}

// HTTPStatus maps an error onto a response code.
func HTTPStatus(err error) int {
	switch services.Kind(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// markerFor maps a response code back onto an error marker.
func markerFor(code int) error {
	switch code {
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusConflict:
		return services.ErrPrecondition
	default:
		return services.ErrProcessing
	}
}
