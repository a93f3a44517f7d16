package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"

	"simq/internal/identity"
)

// CredentialSpawner runs "<Shell> -c <command>" with the owner's credentials
// applied to the child process. The calling process must be privileged
// unless the owner is the calling user.
type CredentialSpawner struct {
	Shell  string
	Logger *slog.Logger
}

// SpawnAs implements Spawner.
func (s *CredentialSpawner) SpawnAs(ctx context.Context, ident identity.Identity, workDir, command string) (*Process, error) {
	cmd, err := s.Command(ident, workDir, command)
	if err != nil {
		return nil, err
	}
	proc, err := start(ctx, s.Logger, cmd)
	if err != nil {
		return nil, fmt.Errorf("launch as %s: %w", ident, err)
	}
	return proc, nil
}

// Command builds the exec.Cmd SpawnAs would start.
func (s *CredentialSpawner) Command(ident identity.Identity, workDir, command string) (*exec.Cmd, error) {
	if s.Shell == "" {
		return nil, errors.New("shell is required")
	}
	if command == "" {
		return nil, errors.New("command is required")
	}

	cmd := exec.Command(s.Shell, "-c", command)
	cmd.Dir = workDir
	cmd.Env = loginEnv(ident, s.Shell)
	if !sameAsProcess(ident) {
		groups := ident.Groups
		if groups == nil {
			groups = []uint32{}
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{
				Uid:    ident.UID,
				Gid:    ident.GID,
				Groups: groups,
			},
		}
	}
	return cmd, nil
}

func loginEnv(ident identity.Identity, shell string) []string {
	env := []string{
		"PATH=" + DefaultPath,
		"SHELL=" + shell,
	}
	if ident.HomeDir != "" {
		env = append(env, "HOME="+ident.HomeDir)
	}
	if ident.Username != "" {
		env = append(env, "USER="+ident.Username, "LOGNAME="+ident.Username)
	}
	return env
}
