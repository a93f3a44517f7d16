// Package executor runs one queued job: it reads the descriptor, resolves
// the owner from the file's ownership, launches the command as that owner
// and retires the descriptor.
//
// Retiring means the descriptor leaves the queue. A launched job is removed
// immediately, whether or not the launch succeeded, and nothing about its
// outcome is kept. Descriptors that cannot be run (unparseable, unknown
// owner, refused superuser owner) follow the configured invalid policy:
// left in place, or moved to the quarantine directory once they are older
// than the grace period.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"simq/internal/clock"
	"simq/internal/config"
	"simq/internal/identity"
	"simq/internal/logging"
	"simq/internal/queue"
	"simq/internal/spawn"
)

// JobStore is the subset of queue.Store the executor needs.
type JobStore interface {
	Read(id int64) (*queue.Job, error)
	Stat(id int64) (queue.Entry, error)
	Remove(id int64) error
	Quarantine(id int64, quarantineDir string, now time.Time) (string, error)
}

// Outcome reports what happened to a descriptor.
type Outcome int

const (
	// OutcomeLaunched: the command started and the descriptor was removed.
	OutcomeLaunched Outcome = iota
	// OutcomeLaunchFailed: the command could not start; the descriptor was
	// removed anyway.
	OutcomeLaunchFailed
	// OutcomeVanished: the descriptor disappeared before it could be run.
	OutcomeVanished
	// OutcomeQuarantined: the descriptor could not be run and was moved aside.
	OutcomeQuarantined
	// OutcomeDeferred: the descriptor could not be run and was left in place.
	OutcomeDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLaunched:
		return "launched"
	case OutcomeLaunchFailed:
		return "launch_failed"
	case OutcomeVanished:
		return "vanished"
	case OutcomeQuarantined:
		return "quarantined"
	case OutcomeDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Retired reports whether the descriptor is no longer in the queue.
func (o Outcome) Retired() bool {
	return o != OutcomeDeferred
}

// Options tune how unrunnable descriptors are treated.
type Options struct {
	InvalidPolicy string
	InvalidGrace  time.Duration
	QuarantineDir string
	AllowRootJobs bool
}

// OptionsFromConfig extracts executor options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InvalidPolicy: cfg.Daemon.InvalidPolicy,
		InvalidGrace:  cfg.InvalidGrace(),
		QuarantineDir: cfg.QuarantinePath(),
		AllowRootJobs: cfg.Daemon.AllowRootJobs,
	}
}

// Executor launches queued jobs one at a time.
type Executor struct {
	store    JobStore
	resolver identity.Resolver
	spawner  spawn.Spawner
	clock    clock.Clock
	logger   *slog.Logger
	opts     Options
}

// New constructs an Executor. A nil clock uses the system clock.
func New(store JobStore, resolver identity.Resolver, spawner spawn.Spawner, clk clock.Clock, logger *slog.Logger, opts Options) (*Executor, error) {
	if store == nil || resolver == nil || spawner == nil {
		return nil, errors.New("executor requires store, resolver, and spawner")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if opts.InvalidPolicy == "" {
		opts.InvalidPolicy = config.InvalidPolicyQuarantine
	}
	return &Executor{
		store:    store,
		resolver: resolver,
		spawner:  spawner,
		clock:    clk,
		logger:   logging.NewComponentLogger(logger, "executor"),
		opts:     opts,
	}, nil
}

// Execute runs the job with the given id. The returned error is non-nil only
// when the queue can no longer be trusted to run each job once: the
// descriptor of a launched job could not be removed, or ctx was cancelled
// before launch.
func (e *Executor) Execute(ctx context.Context, id int64) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeDeferred, err
	}
	logger := e.logger.With(logging.JobID(id))

	job, err := e.store.Read(id)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		logger.Debug("job file vanished before dispatch", logging.String(logging.FieldEventType, "job_vanished"))
		return OutcomeVanished, nil
	case errors.Is(err, queue.ErrInvalidJob):
		return e.handleUnrunnable(logger, id, err.Error()), nil
	case err != nil:
		logging.WarnWithContext(logger, "job file unreadable", "job_unreadable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the queue directory"),
			logging.String(logging.FieldImpact, "job stays queued and is retried next poll"),
		)
		return OutcomeDeferred, nil
	}

	owner, err := e.resolver.LookupUID(job.UID)
	if err != nil {
		return e.handleUnrunnable(logger, id, fmt.Sprintf("owner uid %d cannot be resolved: %v", job.UID, err)), nil
	}
	if owner.IsSuperuser() && !e.opts.AllowRootJobs {
		return e.handleUnrunnable(logger, id, fmt.Sprintf("job file is owned by superuser %s", owner)), nil
	}

	if err := ctx.Err(); err != nil {
		return OutcomeDeferred, err
	}

	correlationID := uuid.NewString()
	logger = logger.With(
		logging.String(logging.FieldCorrelationID, correlationID),
		logging.String("owner", owner.Username),
	)

	outcome := OutcomeLaunched
	proc, spawnErr := e.spawner.SpawnAs(ctx, owner, job.WorkingDirectory, job.Command)
	if spawnErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return OutcomeDeferred, ctxErr
		}
		outcome = OutcomeLaunchFailed
		logging.ErrorWithContext(logger, "job launch failed", "job_launch_failed",
			logging.Error(spawnErr),
			logging.String("working_directory", job.WorkingDirectory),
			logging.String("command", job.Command),
			logging.String(logging.FieldErrorHint, "confirm the daemon runs as root and the working directory exists"),
		)
	}

	if err := e.store.Remove(id); err != nil {
		logging.ErrorWithContext(logger, "job file could not be removed after launch", "job_remove_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the job file by hand before restarting the daemon"),
		)
		return outcome, fmt.Errorf("retire job %d: %w", id, err)
	}

	if proc != nil {
		logger.Info("job launched",
			logging.String(logging.FieldEventType, "job_launched"),
			logging.Int("pid", proc.PID),
			logging.String("working_directory", job.WorkingDirectory),
			logging.String("command", job.Command),
		)
		go logExit(logger, proc)
	}
	return outcome, nil
}

// logExit records the launched job's exit status once it has been reaped.
func logExit(logger *slog.Logger, proc *spawn.Process) {
	<-proc.Done()
	logger.Debug("job process exited",
		logging.String(logging.FieldEventType, "job_exited"),
		logging.Int("pid", proc.PID),
		logging.Int("exit_code", proc.ExitCode()),
	)
}

// handleUnrunnable applies the invalid policy to a descriptor that cannot be
// launched.
func (e *Executor) handleUnrunnable(logger *slog.Logger, id int64, reason string) Outcome {
	if e.opts.InvalidPolicy == config.InvalidPolicyLeave {
		logging.WarnWithContext(logger, "job file cannot be run; left in place", "job_invalid",
			logging.String("reason", reason),
			logging.String(logging.FieldErrorHint, "fix or remove the job file by hand"),
			logging.String(logging.FieldImpact, "job blocks the queue until removed"),
		)
		return OutcomeDeferred
	}

	entry, err := e.store.Stat(id)
	if errors.Is(err, queue.ErrJobNotFound) {
		return OutcomeVanished
	}
	if err != nil {
		logging.WarnWithContext(logger, "job file cannot be run and cannot be inspected", "job_invalid",
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job stays queued and is retried next poll"),
		)
		return OutcomeDeferred
	}

	now := e.clock.Now()
	if age := now.Sub(entry.ModTime); age < e.opts.InvalidGrace {
		logging.WarnWithContext(logger, "job file cannot be run yet; waiting for it to settle", "job_invalid",
			logging.String("reason", reason),
			logging.Duration("age", age),
			logging.Duration("grace", e.opts.InvalidGrace),
			logging.String(logging.FieldErrorHint, "the file may still be being written"),
			logging.String(logging.FieldImpact, "job is quarantined if it is still unrunnable after the grace period"),
		)
		return OutcomeDeferred
	}

	target, err := e.store.Quarantine(id, e.opts.QuarantineDir, now)
	if errors.Is(err, queue.ErrJobNotFound) {
		return OutcomeVanished
	}
	if err != nil {
		logging.WarnWithContext(logger, "job file cannot be run and quarantine failed", "job_quarantine_failed",
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the quarantine directory"),
			logging.String(logging.FieldImpact, "job stays queued and is retried next poll"),
		)
		return OutcomeDeferred
	}
	logging.WarnWithContext(logger, "job file cannot be run; quarantined", "job_quarantined",
		logging.String("reason", reason),
		logging.String("quarantine_path", target),
		logging.String(logging.FieldErrorHint, "inspect the quarantined file and resubmit the job"),
		logging.String(logging.FieldImpact, "job was not run"),
	)
	return OutcomeQuarantined
}
