// Package main hosts the simq CLI entrypoint.
//
// One binary covers the three roles of the queue. With --run it becomes the
// daemon for a queue directory, with --list it reports how many jobs are
// waiting, and otherwise it submits the remaining arguments as a job that
// will run in the caller's current directory under the caller's identity.
// The config and status subcommands are operator conveniences.
//
// Keep this package thin: queue semantics live in internal packages and are
// only wired together here.
package main
