// Package config loads, normalizes, and validates simq configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts),
// reads TOML files, and honours the SIMQ_QUEUE_DIR environment fallback.
// Command-line flags are applied on top by the CLI, so a config file is
// optional for every mode.
//
// Always obtain settings through this package so the submitter and daemon
// agree on lock and quarantine names and see clear validation errors.
package config
