package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Queue locates the queue directory and its reserved control entries.
type Queue struct {
	Dir            string `toml:"dir"`
	LockName       string `toml:"lock_name"`
	DaemonLockName string `toml:"daemon_lock_name"`
	QuarantineDir  string `toml:"quarantine_dir"`
}

// Daemon contains dispatch loop and execution settings.
type Daemon struct {
	PollInterval  int    `toml:"poll_interval"`
	AllowRootJobs bool   `toml:"allow_root_jobs"`
	SpawnMode     string `toml:"spawn_mode"`
	Shell         string `toml:"shell"`
	InvalidPolicy string `toml:"invalid_policy"`
	InvalidGrace  int    `toml:"invalid_grace"`
}

// Submit contains submission settings.
type Submit struct {
	MaxWait int `toml:"max_wait"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for simq.
//
// Sections:
//   - Queue: queue directory and reserved control names
//   - Daemon: poll cadence, identity switching, invalid descriptor policy
//   - Submit: how long a submitter waits for the lock file to clear
//   - Logging: log format, level, optional daemon log directory and retention
type Config struct {
	Queue   Queue   `toml:"queue"`
	Daemon  Daemon  `toml:"daemon"`
	Submit  Submit  `toml:"submit"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/simq/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file. A
// missing file is not an error; defaults apply. The queue directory may
// still be empty afterwards because the CLI usually supplies it. Load
// returns the path it consulted and whether a file was found there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		if err := cfg.decodeFile(resolved); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// decodeFile overlays the TOML file at path onto c. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func (c *Config) decodeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// locate resolves an explicit path, or else searches the user config
// directory and then ./simq.toml.
func locate(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		return expanded, exists, err
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("simq.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// SetQueueDir overrides the queue directory, typically from the command
// line. The path must already be absolute.
func (c *Config) SetQueueDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("queue directory %q must be an absolute path", dir)
	}
	c.Queue.Dir = filepath.Clean(dir)
	return nil
}

// LockPath returns the submission lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Queue.Dir, c.Queue.LockName)
}

// DaemonLockPath returns the single-instance daemon lock path.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Queue.Dir, c.Queue.DaemonLockName)
}

// QuarantinePath returns the directory invalid descriptors are moved into.
func (c *Config) QuarantinePath() string {
	return filepath.Join(c.Queue.Dir, c.Queue.QuarantineDir)
}

// PollInterval returns the dispatch loop's idle sleep.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Daemon.PollInterval) * time.Second
}

// InvalidGrace returns how old an invalid descriptor must be before it is quarantined.
func (c *Config) InvalidGrace() time.Duration {
	return time.Duration(c.Daemon.InvalidGrace) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = home + strings.TrimPrefix(pathValue, "~")
	}
	absolute, err := filepath.Abs(pathValue)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the commented sample configuration to path,
// creating parent directories as needed.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
