package preflight

import (
	"context"

	"mediaforge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The Redis check only runs when Redis dispatch is selected.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckOverlayCatalog(cfg.Paths.OverlayDir),
	}
	if cfg.Dispatch.Backend == config.DispatchRedis {
		results = append(results, CheckRedis(ctx, cfg.Dispatch.RedisURL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}
