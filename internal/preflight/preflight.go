package preflight

import (
	"fmt"

	"simq/internal/config"
	"simq/internal/deps"
	"simq/internal/identity"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the daemon's preflight checks for cfg, as run by ident.
func RunAll(cfg *config.Config, ident identity.Identity) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckSuperuser(ident),
		CheckQueueDirectory(cfg.Queue.Dir),
	}

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Path
		}
		results = append(results, result)
	}

	if cfg.Logging.Dir != "" {
		results = append(results, CheckLogDirectory(cfg.Logging.Dir))
	}

	return results
}

// Failed returns an error describing the first failed result, or nil.
func Failed(results []Result) error {
	for _, result := range results {
		if !result.Passed {
			return fmt.Errorf("%s: %s", result.Name, result.Detail)
		}
	}
	return nil
}
