package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"simq/internal/config"
	"simq/internal/dispatch"
	"simq/internal/lockfile"
	"simq/internal/logging"
	"simq/internal/preflight"
	"simq/internal/queue"
)

// Daemon runs the dispatch loop and enforces single-instance execution per
// queue directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	loop   *dispatch.Loop
	runID  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	RunID          string
	QueueDir       string
	QueueLength    int
	OldestJob      int64
	LockFilePath   string
	DaemonLockPath string
	Dispatch       dispatch.Stats
	LastError      string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, loop *dispatch.Loop, logger *slog.Logger, runID string) (*Daemon, error) {
	if cfg == nil || store == nil || loop == nil {
		return nil, errors.New("daemon requires config, store, and dispatch loop")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.DaemonLockPath()
	done := make(chan struct{})
	close(done)
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		loop:     loop,
		runID:    runID,
		lockPath: lockPath,
		lock:     flock.New(lockPath, flock.SetPermissions(0o600)),
		done:     done,
	}, nil
}

// Start checks the queue directory, acquires the daemon lock, sweeps a
// stale submission lock and launches the dispatch loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	check := preflight.CheckQueueDirectory(d.cfg.Queue.Dir)
	if !check.Passed {
		return fmt.Errorf("queue directory not usable: %s", check.Detail)
	}
	d.logger.Debug("queue directory checked", logging.String("detail", check.Detail))

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another simq daemon is already serving %s", d.cfg.Queue.Dir)
	}

	swept, err := lockfile.SweepStale(d.cfg.LockPath())
	if err != nil {
		logging.WarnWithContext(d.logger, "stale submission lock check failed", "stale_lock_check_failed",
			logging.String("lock_path", d.cfg.LockPath()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "submissions may time out until the lock file is removed"),
		)
	} else if swept {
		logging.WarnWithContext(d.logger, "removed stale submission lock", "stale_lock_removed",
			logging.String("lock_path", d.cfg.LockPath()),
			logging.String(logging.FieldErrorHint, "a submitter exited while holding the lock"),
			logging.String(logging.FieldImpact, "none; submissions can proceed"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.runErr = nil
	d.mu.Unlock()

	d.running.Store(true)
	go d.run(runCtx, done)

	d.logger.Info("simq daemon started",
		logging.String(logging.FieldQueueDir, d.cfg.Queue.Dir),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldRunID, d.runID),
	)
	return nil
}

func (d *Daemon) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := d.loop.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	d.mu.Lock()
	d.runErr = err
	d.mu.Unlock()
	if err != nil {
		logging.ErrorWithContext(d.logger, "dispatch loop failed", "daemon_loop_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the queue directory and restart the daemon"),
		)
	}
}

// Done returns a channel closed when the dispatch loop has exited.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the error that ended the dispatch loop, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop stops the dispatch loop, waits for it and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("simq daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:        d.running.Load(),
		RunID:          d.runID,
		QueueDir:       d.cfg.Queue.Dir,
		OldestJob:      queue.NoJob,
		LockFilePath:   d.cfg.LockPath(),
		DaemonLockPath: d.lockPath,
		Dispatch:       d.loop.Stats(),
	}
	if scan, err := d.store.Scan(); err == nil {
		status.QueueLength = scan.Count
		status.OldestJob = scan.Oldest
	} else {
		status.LastError = err.Error()
	}
	if err := d.Err(); err != nil {
		status.LastError = err.Error()
	}
	return status
}

// LockHeld reports whether some process holds the daemon lock for cfg's
// queue directory.
func LockHeld(cfg *config.Config) (bool, error) {
	path := cfg.DaemonLockPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	other := flock.New(path, flock.SetPermissions(0o600))
	ok, err := other.TryLock()
	if err != nil {
		return false, fmt.Errorf("test daemon lock: %w", err)
	}
	if ok {
		_ = other.Unlock()
		return false, nil
	}
	return true, nil
}
