package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"simq/internal/clock"
	"simq/internal/config"
	"simq/internal/daemonrun"
	"simq/internal/identity"
	"simq/internal/logging"
	"simq/internal/preflight"
	"simq/internal/queue"
	"simq/internal/submit"
)

const queuedTimeLayout = "2006-01-02 15:04:05"

func runDaemon(cmd *cobra.Command, ctx *commandContext, queueDir string, opts rootOptions) error {
	ident := currentIdentity()
	if !ident.IsSuperuser() {
		return errors.New("with --run, simq must be run as root")
	}
	cfg, err := ctx.queueConfig(queueDir)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("poll") {
		if opts.poll < 1 {
			return &usageError{err: fmt.Errorf("--poll must be at least 1 second, got %d", opts.poll)}
		}
		cfg.Daemon.PollInterval = opts.poll
	}
	if err := queue.EnsureDir(cfg.Queue.Dir); err != nil {
		return err
	}

	results := preflight.RunAll(cfg, ident)
	if opts.verbose > 0 {
		stderr := cmd.ErrOrStderr()
		colorize := shouldColorize(stderr)
		for _, result := range results {
			kind := statusOK
			if !result.Passed {
				kind = statusError
			}
			fmt.Fprintln(stderr, renderStatusLine(result.Name, kind, result.Detail, colorize))
		}
	}
	if err := preflight.Failed(results); err != nil {
		return err
	}

	return daemonrun.Run(cmd.Context(), cfg, daemonOptions(cfg, opts, cmd.ErrOrStderr()))
}

// sourceVerbosity is the -v count at which daemon log lines carry their
// source location.
const sourceVerbosity = 3

func daemonOptions(cfg *config.Config, opts rootOptions, warnings io.Writer) daemonrun.Options {
	return daemonrun.Options{
		LogLevel:        logging.LevelForVerbosity(cfg.Logging.Level, opts.verbose),
		SourceLocations: opts.verbose >= sourceVerbosity,
		Warnings:        warnings,
	}
}

func runList(cmd *cobra.Command, ctx *commandContext, queueDir string, opts rootOptions) error {
	cfg, err := ctx.queueConfig(queueDir)
	if err != nil {
		return err
	}
	if err := queue.EnsureDir(cfg.Queue.Dir); err != nil {
		return err
	}
	store := queue.New(cfg.Queue.Dir)

	out := cmd.OutOrStdout()
	if opts.verbose == 0 {
		scan, err := store.Scan()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Jobs waiting: %d\n", scan.Count)
		return nil
	}

	entries, err := store.List()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Jobs waiting: %d\n", len(entries))
	if len(entries) == 0 {
		return nil
	}
	rows := jobRows(store, entries, identity.System{})
	if len(rows) == 0 {
		return nil
	}
	fmt.Fprintln(out, renderTable([]tableColumn{
		{header: "ID", align: alignRight},
		{header: "Owner"},
		{header: "Queued"},
		{header: "Directory"},
		{header: "Command"},
	}, rows))
	return nil
}

// jobRows describes each entry. Jobs that are retired while the table is
// being built are dropped; unparsable descriptors are shown as such.
func jobRows(store *queue.Store, entries []queue.Entry, resolver identity.Resolver) [][]string {
	owners := make(map[uint32]string)
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		owner, ok := owners[entry.UID]
		if !ok {
			owner = strconv.FormatUint(uint64(entry.UID), 10)
			if ident, err := resolver.LookupUID(entry.UID); err == nil {
				owner = ident.String()
			}
			owners[entry.UID] = owner
		}

		directory, command := "", ""
		job, err := store.Read(entry.ID)
		switch {
		case errors.Is(err, queue.ErrJobNotFound):
			continue
		case err != nil:
			command = "(invalid descriptor)"
		default:
			directory = job.WorkingDirectory
			command = job.Command
		}

		rows = append(rows, []string{
			queue.FormatID(entry.ID),
			owner,
			entry.ModTime.Local().Format(queuedTimeLayout),
			directory,
			command,
		})
	}
	return rows
}

func runSubmit(cmd *cobra.Command, ctx *commandContext, queueDir string, args []string, opts rootOptions) error {
	if currentIdentity().IsSuperuser() {
		return errors.New("jobs may not be submitted by root")
	}
	cfg, err := ctx.queueConfig(queueDir)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("wait") {
		cfg.Submit.MaxWait = opts.wait
	}
	if err := queue.EnsureDir(cfg.Queue.Dir); err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	logger, err := newCLILogger(cfg, opts.verbose)
	if err != nil {
		return err
	}
	submitter, err := submit.NewFromConfig(cfg, queue.New(cfg.Queue.Dir), clock.Real(), logger)
	if err != nil {
		return err
	}
	result, err := submitter.Submit(cmd.Context(), workDir, args)
	if err != nil {
		return err
	}
	if opts.verbose > 0 {
		printInfo(cmd.ErrOrStderr(), "There are now %d jobs in the queue", result.QueueLength)
	}
	return nil
}

func newCLILogger(cfg *config.Config, verbose int) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  logging.LevelForVerbosity(cfg.Logging.Level, verbose),
		Format: cfg.Logging.Format,
	})
}
