// Package daemonrun assembles and runs the simq daemon process: logging,
// the queue store, the executor and dispatch loop, and signal handling.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"simq/internal/clock"
	"simq/internal/config"
	"simq/internal/daemon"
	"simq/internal/dispatch"
	"simq/internal/executor"
	"simq/internal/identity"
	"simq/internal/logging"
	"simq/internal/queue"
	"simq/internal/spawn"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// SourceLocations adds the calling file and line to every log line.
	SourceLocations bool

	// Clock, Resolver and Spawner default to the real implementations.
	Clock    clock.Clock
	Resolver identity.Resolver
	Spawner  spawn.Spawner
	// Warnings receives problems that occur before the logger exists.
	// Defaults to stderr.
	Warnings io.Writer
}

// Run starts the simq daemon and blocks until it is signalled or the
// dispatch loop fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.RequireQueueDir(); err != nil {
		return err
	}
	warnings := opts.Warnings
	if warnings == nil {
		warnings = os.Stderr
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	logger, logPath, err := newDaemonLogger(cfg, opts, clk.Now(), warnings)
	if err != nil {
		return err
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	if cfg.Logging.Dir != "" {
		logging.CleanupOldLogs(logger, clk.Now(), cfg.Logging.RetentionDays,
			logging.RetentionTarget{Dir: cfg.Logging.Dir, Pattern: "simq-*.log", Exclude: []string{logPath}},
		)
		pidPath := filepath.Join(cfg.Logging.Dir, "simq.pid")
		if err := writePIDFile(pidPath); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer os.Remove(pidPath)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue directory", logging.Error(err))
		return err
	}

	d, err := build(cfg, store, logger, clk, opts, runID)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	select {
	case <-signalCtx.Done():
		logger.Info("simq daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	case <-d.Done():
	}
	d.Stop()
	return d.Err()
}

func build(cfg *config.Config, store *queue.Store, logger *slog.Logger, clk clock.Clock, opts Options, runID string) (*daemon.Daemon, error) {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = identity.System{}
	}
	spawner := opts.Spawner
	if spawner == nil {
		var err error
		if spawner, err = spawn.New(cfg, logger); err != nil {
			return nil, fmt.Errorf("create spawner: %w", err)
		}
	}

	exec, err := executor.New(store, resolver, spawner, clk, logger, executor.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	loop, err := dispatch.New(store, exec, clk, cfg.PollInterval(), logger)
	if err != nil {
		return nil, fmt.Errorf("create dispatch loop: %w", err)
	}
	d, err := daemon.New(cfg, store, loop, logger, runID)
	if err != nil {
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

// newDaemonLogger logs to stderr and, when a log directory is configured,
// to a per-run file there with simq.log pointing at it.
func newDaemonLogger(cfg *config.Config, opts Options, now time.Time, warnings io.Writer) (*slog.Logger, string, error) {
	outputs := []string{"stderr"}
	var logPath string
	if cfg.Logging.Dir != "" {
		if err := os.MkdirAll(cfg.Logging.Dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("create log directory: %w", err)
		}
		stamp := now.UTC().Format("20060102T150405.000Z")
		logPath = filepath.Join(cfg.Logging.Dir, fmt.Sprintf("simq-%s.log", stamp))
		outputs = append(outputs, logPath)
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:     level,
		Format:    cfg.Logging.Format,
		Outputs:   outputs,
		AddSource: opts.SourceLocations,
		Component: "daemon",
	})
	if err != nil {
		return nil, "", fmt.Errorf("init logger: %w", err)
	}
	if logPath != "" {
		if err := ensureCurrentLogPointer(cfg.Logging.Dir, logPath); err != nil {
			fmt.Fprintf(warnings, "Warning (simq) unable to update simq.log link: %v\n", err)
		}
	}
	return logger, logPath, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "simq.log")
	if err := os.Remove(current); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
