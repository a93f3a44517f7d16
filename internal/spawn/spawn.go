package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"

	"simq/internal/config"
	"simq/internal/identity"
	"simq/internal/logging"
)

// DefaultPath is the PATH given to jobs launched with credentials.
const DefaultPath = "/usr/local/bin:/usr/bin:/bin"

// Spawner starts a command line as ident in workDir.
type Spawner interface {
	SpawnAs(ctx context.Context, ident identity.Identity, workDir, command string) (*Process, error)
}

// Process is a launched job.
type Process struct {
	PID int

	exitCode atomic.Int64
	done     chan struct{}
}

func newProcess(pid int) *Process {
	p := &Process{PID: pid, done: make(chan struct{})}
	p.exitCode.Store(-1)
	return p
}

// NewExitedProcess returns a Process that has already finished with code.
// Fake spawners use it.
func NewExitedProcess(pid, code int) *Process {
	p := newProcess(pid)
	p.finish(code)
	return p
}

func (p *Process) finish(code int) {
	p.exitCode.Store(int64(code))
	close(p.done)
}

// Done returns a channel closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code, or -1 while the process is running or if
// it was killed by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// New returns the spawner selected by cfg.Daemon.SpawnMode.
func New(cfg *config.Config, logger *slog.Logger) (Spawner, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger = logging.NewComponentLogger(logger, "spawn")
	switch cfg.Daemon.SpawnMode {
	case config.SpawnModeCredential:
		return &CredentialSpawner{Shell: cfg.Daemon.Shell, Logger: logger}, nil
	case config.SpawnModeSu:
		return &SuSpawner{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported spawn mode %q", cfg.Daemon.SpawnMode)
	}
}

// start runs cmd detached in its own session and reaps it in the background.
func start(ctx context.Context, logger *slog.Logger, cmd *exec.Cmd) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	proc := newProcess(cmd.Process.Pid)
	go func() {
		err := cmd.Wait()
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		proc.finish(code)
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && logger != nil {
			logger.Debug("job process wait failed",
				logging.Int("pid", proc.PID),
				logging.Error(err),
			)
		}
	}()
	return proc, nil
}

func sameAsProcess(ident identity.Identity) bool {
	return ident.UID == uint32(os.Geteuid()) && ident.GID == uint32(os.Getegid())
}

// shellQuote wraps s in single quotes for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
