// Package lockfile serialises job submissions through an advisory lock file
// inside the queue directory.
//
// Submission is two-phase: a submitter first waits, polling once a second,
// for the lock path to disappear, and then takes a blocking exclusive flock
// on it. The holder removes the path before unlocking, and Acquire checks
// that the handle it locked is still the file at the path, so two
// submitters can never both believe they hold the lock.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"

	"simq/internal/clock"
)

// ErrLockNotClearing is returned when the lock path stays present for longer
// than the permitted wait.
var ErrLockNotClearing = errors.New("lock file is not clearing")

// PollInterval is the cadence of the pre-lock existence check.
const PollInterval = time.Second

// lock files must be openable by every submitter, whoever created them.
const lockPerm = 0o644

// Lock is a held submission lock.
type Lock struct {
	path     string
	fl       *flock.Flock
	released bool
}

// WaitAbsent polls path once per PollInterval until it no longer exists. It
// gives up with ErrLockNotClearing after maxWait polls have found the path
// still present.
func WaitAbsent(ctx context.Context, clk clock.Clock, path string, maxWait int) error {
	for waited := 0; ; waited++ {
		exists, err := pathExists(path)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		if waited >= maxWait {
			return fmt.Errorf("%s: %w", path, ErrLockNotClearing)
		}
		if err := clk.Sleep(ctx, PollInterval); err != nil {
			return err
		}
	}
}

// Acquire creates path if needed and blocks until an exclusive lock on it is
// granted. When the file was removed and recreated while waiting, the stale
// handle is dropped and the new file is locked instead. Every retry means
// another submitter got the lock and finished, so the loop has no cap.
func Acquire(path string) (*Lock, error) {
	fl := newFlock(path)
	for {
		if err := fl.Lock(); err != nil {
			return nil, fmt.Errorf("cannot create lock file %s: %w", path, err)
		}
		same, err := lockedPathMatches(fl)
		if err != nil {
			_ = fl.Unlock()
			return nil, err
		}
		if same {
			return &Lock{path: path, fl: fl}, nil
		}
		_ = fl.Unlock()
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock path and then unlocks the handle. Releasing twice
// is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true

	var errs []error
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove lock file: %w", err))
	}
	if err := l.fl.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("unlock lock file: %w", err))
	}
	return errors.Join(errs...)
}

// SweepStale removes path when no process holds a lock on it. It reports
// whether a stale file was removed; a held lock is left alone.
func SweepStale(path string) (bool, error) {
	exists, err := pathExists(path)
	if err != nil || !exists {
		return false, err
	}
	fl := newFlock(path)
	ok, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("test lock file %s: %w", path, err)
	}
	if !ok {
		return false, nil
	}
	lock := &Lock{path: path, fl: fl}
	same, err := lockedPathMatches(fl)
	if err != nil || !same {
		// Someone replaced it meanwhile; only unlock our handle.
		lock.released = true
		_ = fl.Unlock()
		return false, err
	}
	if err := lock.Release(); err != nil {
		return false, err
	}
	return true, nil
}

func newFlock(path string) *flock.Flock {
	return flock.New(path, flock.SetFlag(os.O_CREATE|os.O_RDONLY), flock.SetPermissions(lockPerm))
}

// lockedPathMatches reports whether the locked handle and the file now at
// the lock path are the same file. A missing path does not match.
func lockedPathMatches(fl *flock.Flock) (bool, error) {
	held, err := fl.Stat()
	if err != nil {
		return false, fmt.Errorf("stat locked handle: %w", err)
	}
	current, err := os.Stat(fl.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat lock file: %w", err)
	}
	return os.SameFile(held, current), nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("check lock file %s: %w", path, err)
}
