// Package submit adds jobs to a queue directory.
//
// A submission waits for the lock file to clear, takes the exclusive lock,
// scans the directory for the newest job ID, writes the new descriptor as
// newest+1 and releases the lock. The lock is released on every path out of
// the critical section.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"simq/internal/clock"
	"simq/internal/config"
	"simq/internal/lockfile"
	"simq/internal/logging"
	"simq/internal/queue"
)

// JobStore is the subset of queue.Store a submission needs.
type JobStore interface {
	Scan() (queue.ScanResult, error)
	Write(id int64, workingDirectory string, args []string) error
}

// Result describes an accepted submission.
type Result struct {
	ID int64
	// QueueLength counts queued jobs including the new one.
	QueueLength int
}

// Submitter serialises submissions to one queue directory.
type Submitter struct {
	store    JobStore
	lockPath string
	maxWait  int
	clock    clock.Clock
	logger   *slog.Logger
}

// New constructs a Submitter. maxWait is the number of one-second polls to
// spend waiting for the lock file to disappear.
func New(store JobStore, lockPath string, maxWait int, clk clock.Clock, logger *slog.Logger) (*Submitter, error) {
	if store == nil {
		return nil, errors.New("submit requires a job store")
	}
	if lockPath == "" {
		return nil, errors.New("submit requires a lock path")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Submitter{
		store:    store,
		lockPath: lockPath,
		maxWait:  maxWait,
		clock:    clk,
		logger:   logging.NewComponentLogger(logger, "submit"),
	}, nil
}

// NewFromConfig builds a Submitter for the configured queue.
func NewFromConfig(cfg *config.Config, store JobStore, clk clock.Clock, logger *slog.Logger) (*Submitter, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	return New(store, cfg.LockPath(), cfg.Submit.MaxWait, clk, logger)
}

// Submit queues args to run in workingDirectory.
func (s *Submitter) Submit(ctx context.Context, workingDirectory string, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{}, errors.New("no command to submit")
	}

	if err := lockfile.WaitAbsent(ctx, s.clock, s.lockPath, s.maxWait); err != nil {
		if errors.Is(err, lockfile.ErrLockNotClearing) {
			return Result{}, fmt.Errorf("cannot submit job: %w", err)
		}
		return Result{}, err
	}

	lock, err := lockfile.Acquire(s.lockPath)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.WarnWithContext(s.logger, "submission lock release incomplete", "lock_release_failed",
				logging.String("lock_path", s.lockPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the lock file by hand if later submissions time out"),
				logging.String(logging.FieldImpact, "later submissions may wait for the lock to clear"),
			)
		}
	}()

	scan, err := s.store.Scan()
	if err != nil {
		return Result{}, err
	}
	id := scan.NextID()
	if err := s.store.Write(id, workingDirectory, args); err != nil {
		return Result{}, err
	}

	s.logger.Debug("job queued",
		logging.JobID(id),
		logging.Int("queue_length", scan.Count+1),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return Result{ID: id, QueueLength: scan.Count + 1}, nil
}
