package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateSubmit(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireQueueDir reports an error when no queue directory has been configured.
func (c *Config) RequireQueueDir() error {
	if strings.TrimSpace(c.Queue.Dir) == "" {
		return errors.New("queue directory is required (pass it on the command line, set queue.dir, or SIMQ_QUEUE_DIR)")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Dir != "" && !filepath.IsAbs(c.Queue.Dir) {
		return fmt.Errorf("queue.dir must be an absolute path, got %q", c.Queue.Dir)
	}
	for _, entry := range []struct {
		key   string
		value string
	}{
		{"queue.lock_name", c.Queue.LockName},
		{"queue.daemon_lock_name", c.Queue.DaemonLockName},
		{"queue.quarantine_dir", c.Queue.QuarantineDir},
	} {
		if !strings.HasPrefix(entry.value, ReservedPrefix) {
			return fmt.Errorf("%s must start with %q so it is never mistaken for a job, got %q", entry.key, ReservedPrefix, entry.value)
		}
		if strings.ContainsRune(entry.value, filepath.Separator) {
			return fmt.Errorf("%s must be a plain name, got %q", entry.key, entry.value)
		}
	}
	if c.Queue.LockName == c.Queue.DaemonLockName {
		return errors.New("queue.lock_name and queue.daemon_lock_name must differ")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.PollInterval <= 0 {
		return errors.New("daemon.poll_interval must be positive")
	}
	switch c.Daemon.SpawnMode {
	case SpawnModeCredential, SpawnModeSu:
	default:
		return fmt.Errorf("daemon.spawn_mode: unsupported value %q (want %q or %q)", c.Daemon.SpawnMode, SpawnModeCredential, SpawnModeSu)
	}
	switch c.Daemon.InvalidPolicy {
	case InvalidPolicyQuarantine, InvalidPolicyLeave:
	default:
		return fmt.Errorf("daemon.invalid_policy: unsupported value %q (want %q or %q)", c.Daemon.InvalidPolicy, InvalidPolicyQuarantine, InvalidPolicyLeave)
	}
	if c.Daemon.InvalidGrace < 0 {
		return errors.New("daemon.invalid_grace must be >= 0")
	}
	if !filepath.IsAbs(c.Daemon.Shell) {
		return fmt.Errorf("daemon.shell must be an absolute path, got %q", c.Daemon.Shell)
	}
	return nil
}

func (c *Config) validateSubmit() error {
	if c.Submit.MaxWait < 0 {
		return errors.New("submit.max_wait must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
