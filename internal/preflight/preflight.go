package preflight

import (
	"context"

	"batchcursor/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config and
// collections. Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config, collections ...string) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Log directory (always checked)
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	for _, collection := range collections {
		results = append(results, CheckCollectionAccess(collection))
	}

	if cfg.Iteration.Step == "exec" {
		results = append(results, CheckExecCommand(cfg.Iteration.ExecCommand))
	}
	if cfg.Iteration.Step == "save" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Save.OutputRoot))
	}

	if cfg.Scheduler.BaseURL != "" {
		results = append(results, CheckScheduler(ctx, cfg.Scheduler.BaseURL, cfg.Scheduler.Token))
	}

	if cfg.Tracing.Enabled() {
		results = append(results, CheckTraceCollector(ctx, cfg.Tracing.Endpoint))
	}

	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
