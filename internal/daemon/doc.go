// Package daemon coordinates the long-running simq process.
//
// It wraps the dispatch loop in a single lifecycle: a flock on the queue's
// daemon lock file keeps a second daemon off the same directory, a stale
// submission lock left by a crashed submitter is swept on start, and the
// loop runs in a goroutine until Stop or a fatal loop error.
//
// Keep orchestration here. Job selection lives in dispatch and launching in
// executor; the daemon only owns startup, shutdown and status.
package daemon
