// Package preflight provides readiness checks the daemon runs before it
// starts dispatching jobs.
//
// Failures are reported as Results rather than errors so the CLI can print
// every problem at once; Failed turns the first failure into an error.
package preflight
