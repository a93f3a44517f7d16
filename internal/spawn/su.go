package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"simq/internal/identity"
)

// SuBinary is the su executable SuSpawner invokes.
const SuBinary = "su"

// SuSpawner runs each job through a login shell of its owner:
//
//	su - <user> -c "(cd <dir>; <command>)"
type SuSpawner struct {
	Logger *slog.Logger
}

// SpawnAs implements Spawner.
func (s *SuSpawner) SpawnAs(ctx context.Context, ident identity.Identity, workDir, command string) (*Process, error) {
	args, err := SuArgs(ident, workDir, command)
	if err != nil {
		return nil, err
	}
	proc, err := start(ctx, s.Logger, exec.Command(SuBinary, args...))
	if err != nil {
		return nil, fmt.Errorf("launch as %s via su: %w", ident, err)
	}
	return proc, nil
}

// SuArgs returns the su argument vector for a job.
func SuArgs(ident identity.Identity, workDir, command string) ([]string, error) {
	if ident.Username == "" {
		return nil, errors.New("su requires a username")
	}
	if command == "" {
		return nil, errors.New("command is required")
	}
	script := fmt.Sprintf("(cd %s; %s)", shellQuote(workDir), command)
	return []string{"-", ident.Username, "-c", script}, nil
}
