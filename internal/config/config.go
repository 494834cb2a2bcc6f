package config

import "time"

// Config holds all application configuration, loaded from
// <cwd>/.ralph-tui/config.{toml|yaml|yml} plus environment overrides.
type Config struct {
	ConfigVersion int `mapstructure:"configVersion"`

	Agent          string `mapstructure:"agent"`
	Command        string `mapstructure:"command"`
	MaxIterations  int    `mapstructure:"maxIterations"`
	IterationDelay string `mapstructure:"iterationDelay"`
	AutoCommit     bool   `mapstructure:"autoCommit"`

	Tracker        string               `mapstructure:"tracker"`
	TrackerOptions TrackerOptionsConfig `mapstructure:"trackerOptions"`

	Parallel int    `mapstructure:"parallel"`
	Worktree string `mapstructure:"worktree"`

	ErrorHandling      ErrorHandlingConfig      `mapstructure:"errorHandling"`
	ConflictResolution ConflictResolutionConfig `mapstructure:"conflictResolution"`
	AgentOptions       AgentOptionsConfig       `mapstructure:"agentOptions"`
	Sandbox            SandboxConfig            `mapstructure:"sandbox"`

	// Log is ambient stack, not part of the recognized domain key list, but
	// every command needs somewhere to configure it.
	Log LogConfig `mapstructure:"log"`
}

// TrackerOptionsConfig configures the resolved tracker adapter.
type TrackerOptionsConfig struct {
	Path   string `mapstructure:"path"`
	EpicID string `mapstructure:"epicId"`
}

// ErrorHandlingConfig configures the Iteration Engine's failure policy (§4.6).
type ErrorHandlingConfig struct {
	Strategy              string `mapstructure:"strategy"`
	MaxRetries            int    `mapstructure:"maxRetries"`
	RetryDelayMs          int    `mapstructure:"retryDelayMs"`
	ContinueOnNonZeroExit bool   `mapstructure:"continueOnNonZeroExit"`
}

// RetryDelay returns RetryDelayMs as a time.Duration.
func (c ErrorHandlingConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// ConflictResolutionConfig configures the Conflict Resolver (§4.4).
type ConflictResolutionConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	ConfidenceThreshold float64 `mapstructure:"confidenceThreshold"`
	TimeoutMs           int     `mapstructure:"timeoutMs"`
	MaxFiles            int     `mapstructure:"maxFiles"`
}

// Timeout returns TimeoutMs as a time.Duration.
func (c ConflictResolutionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// AgentOptionsConfig configures how the agent adapter is invoked (§4.2).
type AgentOptionsConfig struct {
	Model          string   `mapstructure:"model"`
	Timeout        string   `mapstructure:"timeout"`
	EnvExclude     []string `mapstructure:"envExclude"`
	EnvPassthrough []string `mapstructure:"envPassthrough"`
	DefaultFlags   []string `mapstructure:"defaultFlags"`
}

// TimeoutDuration parses Timeout, falling back to def when empty or invalid.
func (c AgentOptionsConfig) TimeoutDuration(def time.Duration) time.Duration {
	if c.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return def
	}
	return d
}

// SandboxConfig configures the execution sandbox around the agent process.
type SandboxConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Mode          string   `mapstructure:"mode"`
	AllowPaths    []string `mapstructure:"allowPaths"`
	ReadOnlyPaths []string `mapstructure:"readOnlyPaths"`
	Network       bool     `mapstructure:"network"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// IterationDelayDuration parses IterationDelay, falling back to def when
// empty or invalid.
func (c Config) IterationDelayDuration(def time.Duration) time.Duration {
	if c.IterationDelay == "" {
		return def
	}
	d, err := time.ParseDuration(c.IterationDelay)
	if err != nil {
		return def
	}
	return d
}
