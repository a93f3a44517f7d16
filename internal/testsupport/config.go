package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"simq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose queue directory is a fresh temp
// directory per test. Intervals are shortened so loop tests stay quick
// under a fake clock.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Queue.Dir = filepath.Join(base, "queue")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.Daemon.PollInterval = 1
	cfgVal.Submit.MaxWait = 3

	if err := os.MkdirAll(cfgVal.Queue.Dir, 0o755); err != nil {
		t.Fatalf("mkdir queue dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithInvalidPolicy sets the invalid descriptor policy and grace period.
func WithInvalidPolicy(policy string, graceSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.InvalidPolicy = policy
		b.cfg.Daemon.InvalidGrace = graceSeconds
	}
}

// WithAllowRootJobs toggles execution of superuser-owned descriptors.
func WithAllowRootJobs(allow bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.AllowRootJobs = allow
	}
}

// WithMaxWait overrides how long submitters wait for the lock to clear.
func WithMaxWait(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Submit.MaxWait = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Queue.Dir)
}
