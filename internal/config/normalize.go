package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	c.normalizeDaemon()
	return c.normalizeLogging()
}

func (c *Config) normalizeQueue() error {
	if strings.TrimSpace(c.Queue.Dir) == "" {
		if value, ok := os.LookupEnv("SIMQ_QUEUE_DIR"); ok {
			c.Queue.Dir = strings.TrimSpace(value)
		}
	}
	if c.Queue.Dir != "" {
		var err error
		if c.Queue.Dir, err = expandPath(c.Queue.Dir); err != nil {
			return fmt.Errorf("queue.dir: %w", err)
		}
	}
	c.Queue.LockName = strings.TrimSpace(c.Queue.LockName)
	if c.Queue.LockName == "" {
		c.Queue.LockName = defaultLockName
	}
	c.Queue.DaemonLockName = strings.TrimSpace(c.Queue.DaemonLockName)
	if c.Queue.DaemonLockName == "" {
		c.Queue.DaemonLockName = defaultDaemonLockName
	}
	c.Queue.QuarantineDir = strings.TrimSpace(c.Queue.QuarantineDir)
	if c.Queue.QuarantineDir == "" {
		c.Queue.QuarantineDir = defaultQuarantineDir
	}
	return nil
}

func (c *Config) normalizeDaemon() {
	c.Daemon.SpawnMode = strings.ToLower(strings.TrimSpace(c.Daemon.SpawnMode))
	if c.Daemon.SpawnMode == "" {
		c.Daemon.SpawnMode = defaultSpawnMode
	}
	c.Daemon.InvalidPolicy = strings.ToLower(strings.TrimSpace(c.Daemon.InvalidPolicy))
	if c.Daemon.InvalidPolicy == "" {
		c.Daemon.InvalidPolicy = defaultInvalidPolicy
	}
	c.Daemon.Shell = strings.TrimSpace(c.Daemon.Shell)
	if c.Daemon.Shell == "" {
		c.Daemon.Shell = defaultShell
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Dir != "" {
		var err error
		if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
			return fmt.Errorf("logging.dir: %w", err)
		}
	}
	return nil
}
