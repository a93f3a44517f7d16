package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	run     bool
	list    bool
	poll    int
	wait    int
	verbose int
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var opts rootOptions
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:   "simq [flags] <queue-dir> [command [args...]]",
		Short: "Simple filesystem batch queue",
		Long: `simq queues commands in a shared directory and runs them one at a time.

  simq --run [--poll N] [-v] <queue-dir>    run the queue daemon (as root)
  simq --list [-v] <queue-dir>              report the number of waiting jobs
  simq [--wait N] [-v] <queue-dir> cmd...   submit cmd, run later in the
                                            current directory as the caller`,
		Example: `  sudo simq --run -v /var/spool/simq
  simq /var/spool/simq make -j4 all
  simq --list -v /var/spool/simq`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(args); err != nil {
				return err
			}
			switch {
			case opts.run:
				return runDaemon(cmd, ctx, args[0], opts)
			case opts.list:
				return runList(cmd, ctx, args[0], opts)
			default:
				return runSubmit(cmd, ctx, args[0], args[1:], opts)
			}
		},
	}

	flags := rootCmd.Flags()
	flags.SetInterspersed(false)
	flags.BoolVarP(&opts.run, "run", "r", false, "Run the queue daemon for <queue-dir>")
	flags.BoolVarP(&opts.list, "list", "l", false, "Report how many jobs are waiting")
	flags.IntVarP(&opts.poll, "poll", "p", 0, "Seconds the daemon sleeps when the queue is idle (overrides daemon.poll_interval)")
	flags.IntVarP(&opts.wait, "wait", "w", 0, "Seconds a submitter waits for the lock file to clear (overrides submit.max_wait)")
	flags.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))

	return rootCmd
}

func (o rootOptions) validate(args []string) error {
	if o.run && o.list {
		return &usageError{err: errors.New("--run and --list are mutually exclusive")}
	}
	if o.poll < 0 {
		return &usageError{err: fmt.Errorf("--poll must be >= 0, got %d", o.poll)}
	}
	if o.wait < 0 {
		return &usageError{err: fmt.Errorf("--wait must be >= 0, got %d", o.wait)}
	}
	switch {
	case len(args) == 0:
		return &usageError{err: errors.New("queue directory is required")}
	case (o.run || o.list) && len(args) != 1:
		return &usageError{err: fmt.Errorf("unexpected arguments after queue directory: %q", args[1:])}
	case !o.run && !o.list && len(args) < 2:
		return &usageError{err: errors.New("no command given to submit")}
	}
	return nil
}
