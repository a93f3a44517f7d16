// Package dispatch drives the daemon's poll, execute and retire cycle.
//
// Each pass scans the queue directory. An empty queue sleeps for the poll
// interval. Otherwise the oldest job (smallest ID) is handed to the
// executor and the next pass starts at once, so a backlog drains as fast as
// jobs can be launched one after another. A pass whose oldest job could not
// be retired also sleeps, so a stuck descriptor is retried once per poll
// interval rather than in a tight loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"simq/internal/clock"
	"simq/internal/executor"
	"simq/internal/logging"
	"simq/internal/queue"
)

// Scanner reports the jobs currently queued.
type Scanner interface {
	Scan() (queue.ScanResult, error)
}

// Runner executes a single job.
type Runner interface {
	Execute(ctx context.Context, id int64) (executor.Outcome, error)
}

// Step describes one pass of the loop.
type Step struct {
	Idle    bool
	JobID   int64
	Outcome executor.Outcome
}

// shouldSleep reports whether the loop waits before the next pass.
func (s Step) shouldSleep() bool {
	return s.Idle || !s.Outcome.Retired()
}

// Stats summarises loop activity since it was created.
type Stats struct {
	Passes      int64
	Launched    int64
	Failed      int64
	Quarantined int64
	Deferred    int64
	LastJobID   int64
	LastPass    time.Time
	LastError   string
}

// Loop is the dispatch loop.
type Loop struct {
	scanner      Scanner
	runner       Runner
	clock        clock.Clock
	pollInterval time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New constructs a Loop. A nil clock uses the system clock.
func New(scanner Scanner, runner Runner, clk clock.Clock, pollInterval time.Duration, logger *slog.Logger) (*Loop, error) {
	if scanner == nil || runner == nil {
		return nil, errors.New("dispatch requires a scanner and a runner")
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", pollInterval)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Loop{
		scanner:      scanner,
		runner:       runner,
		clock:        clk,
		pollInterval: pollInterval,
		logger:       logging.NewComponentLogger(logger, "dispatch"),
		stats:        Stats{LastJobID: queue.NoJob},
	}, nil
}

// Run loops until ctx is cancelled or a pass fails. Cancellation returns
// ctx.Err(); a failed directory scan or an unretirable launched job returns
// that error.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("dispatch loop started",
		logging.Duration("poll_interval", l.pollInterval),
		logging.String(logging.FieldEventType, "dispatch_started"),
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		step, err := l.Step(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			l.logger.Error("dispatch loop stopped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "dispatch_failed"),
				logging.String(logging.FieldErrorHint, "check that the queue directory is readable and writable"),
			)
			return err
		}
		if !step.shouldSleep() {
			continue
		}
		if err := l.clock.Sleep(ctx, l.pollInterval); err != nil {
			return err
		}
	}
}

// Step performs one pass without sleeping.
func (l *Loop) Step(ctx context.Context) (Step, error) {
	scan, err := l.scanner.Scan()
	if err != nil {
		l.recordError(err)
		return Step{}, err
	}
	if scan.Empty() {
		l.record(Step{Idle: true})
		return Step{Idle: true, JobID: queue.NoJob}, nil
	}

	l.logger.Debug("dispatching oldest job",
		logging.JobID(scan.Oldest),
		logging.Int("queue_length", scan.Count),
	)
	outcome, err := l.runner.Execute(ctx, scan.Oldest)
	step := Step{JobID: scan.Oldest, Outcome: outcome}
	if err != nil {
		l.recordError(err)
		return step, err
	}
	l.record(step)
	return step, nil
}

// Stats returns a snapshot of loop activity.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) record(step Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Passes++
	l.stats.LastPass = l.clock.Now()
	if step.Idle {
		return
	}
	l.stats.LastJobID = step.JobID
	switch step.Outcome {
	case executor.OutcomeLaunched:
		l.stats.Launched++
	case executor.OutcomeLaunchFailed:
		l.stats.Failed++
	case executor.OutcomeQuarantined:
		l.stats.Quarantined++
	case executor.OutcomeDeferred:
		l.stats.Deferred++
	}
}

func (l *Loop) recordError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Passes++
	l.stats.LastPass = l.clock.Now()
	l.stats.LastError = err.Error()
}
