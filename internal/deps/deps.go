package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mediaforge/internal/config"
)

// Requirement defines an external binary the pipeline runs.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the configured engine and prober need.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.Engine.FFmpegBinary, Description: "Transform engine for trim, quality, overlay and watermark jobs"},
		{Name: "FFprobe", Command: cfg.Engine.FFprobeBinary, Description: "Reads duration and size during ingest and after transforms"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

// Preflight fails when a required binary is missing.
func Preflight(cfg *config.Config) error {
	missing := Missing(CheckBinaries(Requirements(cfg)))
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, status := range missing {
		names = append(names, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
	}
	return fmt.Errorf("missing required dependencies: %s", strings.Join(names, ", "))
}
