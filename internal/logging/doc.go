// Package logging assembles the structured slog loggers used by the simq
// CLI and daemon.
//
// It owns the console and JSON handlers, maps verbosity onto levels, and
// exposes typed attribute helpers plus WarnWithContext/ErrorWithContext so
// recoverable problems are always logged with an event type, a hint for the
// operator, and the impact on the queue.
//
// Prefer these constructors over hand-rolled slog setup so the submitter and
// the daemon emit lines of the same shape.
package logging
