package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"simq/internal/config"
	"simq/internal/daemon"
	"simq/internal/preflight"
	"simq/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <queue-dir>",
		Short: "Show queue directory, lock and daemon state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.queueConfig(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range statusLines(cfg) {
				fmt.Fprintln(out, renderStatusLine(line.label, line.kind, line.message, colorize))
			}
			return nil
		},
	}
}

type statusEntry struct {
	label   string
	kind    statusKind
	message string
}

// statusLines inspects cfg's queue without modifying it.
func statusLines(cfg *config.Config) []statusEntry {
	dirCheck := preflight.CheckQueueDirectory(cfg.Queue.Dir)
	if !dirCheck.Passed {
		return []statusEntry{{label: dirCheck.Name, kind: statusError, message: dirCheck.Detail}}
	}
	lines := []statusEntry{{label: dirCheck.Name, kind: statusOK, message: dirCheck.Detail}}

	store := queue.New(cfg.Queue.Dir)
	if scan, err := store.Scan(); err != nil {
		lines = append(lines, statusEntry{label: "Jobs waiting", kind: statusError, message: err.Error()})
	} else if scan.Empty() {
		lines = append(lines, statusEntry{label: "Jobs waiting", kind: statusInfo, message: "0"})
	} else {
		lines = append(lines, statusEntry{
			label:   "Jobs waiting",
			kind:    statusInfo,
			message: fmt.Sprintf("%d (next to run: %s)", scan.Count, queue.FormatID(scan.Oldest)),
		})
	}

	if exists, err := pathExists(cfg.LockPath()); err != nil {
		lines = append(lines, statusEntry{label: "Submission lock", kind: statusError, message: err.Error()})
	} else if exists {
		lines = append(lines, statusEntry{label: "Submission lock", kind: statusWarn, message: "present (" + cfg.LockPath() + ")"})
	} else {
		lines = append(lines, statusEntry{label: "Submission lock", kind: statusOK, message: "clear"})
	}

	if held, err := daemon.LockHeld(cfg); err != nil {
		lines = append(lines, statusEntry{label: "Daemon", kind: statusError, message: err.Error()})
	} else if held {
		lines = append(lines, statusEntry{label: "Daemon", kind: statusOK, message: "running"})
	} else {
		lines = append(lines, statusEntry{label: "Daemon", kind: statusWarn, message: "not running"})
	}

	if entries, err := os.ReadDir(cfg.QuarantinePath()); err == nil && len(entries) > 0 {
		lines = append(lines, statusEntry{
			label:   "Quarantined",
			kind:    statusWarn,
			message: fmt.Sprintf("%d descriptor(s) in %s", len(entries), cfg.QuarantinePath()),
		})
	}
	return lines
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
