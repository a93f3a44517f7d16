// Package deps reports whether the external programs the daemon launches
// jobs through are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"simq/internal/config"
	"simq/internal/spawn"
)

// Requirement names an external program the daemon needs.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Requirements lists the programs the configured spawn mode relies on.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	reqs := []Requirement{{
		Name:        "Job shell",
		Command:     cfg.Daemon.Shell,
		Description: "interprets each job's command line",
	}}
	if cfg.Daemon.SpawnMode == config.SpawnModeSu {
		reqs = append(reqs, Requirement{
			Name:        "su",
			Command:     spawn.SuBinary,
			Description: "switches to the job owner's login environment",
		})
	}
	return reqs
}

// CheckBinaries resolves every requirement on PATH (or as given, when the
// command contains a slash).
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		status := Status{Requirement: req}
		if req.Command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(req.Command)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}
