package config

const (
	defaultLockName         = ".lock"
	defaultDaemonLockName   = ".daemon.lock"
	defaultQuarantineDir    = ".invalid"
	defaultPollInterval     = 10
	defaultMaxWait          = 60
	defaultShell            = "/bin/sh"
	defaultSpawnMode        = SpawnModeCredential
	defaultInvalidPolicy    = InvalidPolicyQuarantine
	defaultInvalidGrace     = 60
	defaultLogFormat        = "console"
	defaultLogLevel         = "warn"
	defaultLogRetentionDays = 30

	// ReservedPrefix marks control entries in the queue directory. Entries
	// starting with it are never treated as jobs.
	ReservedPrefix = "."
)

// Spawn modes select how the daemon switches identity for a job.
const (
	SpawnModeCredential = "credential"
	SpawnModeSu         = "su"
)

// Invalid policies select what happens to descriptors that cannot be run.
const (
	InvalidPolicyQuarantine = "quarantine"
	InvalidPolicyLeave      = "leave"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Queue: Queue{
			LockName:       defaultLockName,
			DaemonLockName: defaultDaemonLockName,
			QuarantineDir:  defaultQuarantineDir,
		},
		Daemon: Daemon{
			PollInterval:  defaultPollInterval,
			Shell:         defaultShell,
			SpawnMode:     defaultSpawnMode,
			InvalidPolicy: defaultInvalidPolicy,
			InvalidGrace:  defaultInvalidGrace,
		},
		Submit: Submit{
			MaxWait: defaultMaxWait,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
